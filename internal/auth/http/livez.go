package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
)

// LivenessHandler godoc
//
//	@Summary		Auth Server Liveness
//	@Description	Reports that the auth server process is up, with its build version and uptime in whole seconds
//	@Description	Touches neither the user store nor the revocation list; use /readyz for those
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version"
//	@Router			/livez [get].
func LivenessHandler(started time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(started).Round(time.Second).String(),
			Version: version,
		})
	}
}
