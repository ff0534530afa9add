package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
)

// MFAHandler serves code verification and second-factor settings.
type MFAHandler struct {
	AuthService *service.AuthService
	MFAService  *service.MFAService
}

// HandleVerify godoc
//
//	@Summary		Complete a login with a one-time code
//	@Description	Identify the account by userId from the login response, or by email (plus orgId when ambiguous).
//	@Description	Accepts the emailed code or, once enrolled, an authenticator code.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyMFARequest	true	"Code"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid or expired OTP"
//	@Router			/mfa/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyMFARequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.OTP) == "" {
		authsdk.NewAPIError(http.StatusBadRequest, "otp is required").WriteError(w)
		return
	}

	var (
		res service.LoginResult
		err error
	)
	switch {
	case strings.TrimSpace(req.UserID) != "":
		res, err = h.AuthService.VerifyMFA(r.Context(), strings.TrimSpace(req.UserID), req.OTP)
	case strings.TrimSpace(req.Email) != "":
		res, err = h.AuthService.VerifyMFAByEmail(r.Context(), req.Email, req.OrgID, req.OTP)
	default:
		authsdk.NewAPIError(http.StatusBadRequest, "userId or email is required").WriteError(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res, mfaSentMessage))
}

// HandleToggle godoc
//
//	@Summary		Switch emailed MFA for the caller
//	@Description	Omit enabled to flip the current setting.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.ToggleMFARequest	false	"Desired state"
//	@Success		200		{object}	authsdk.ToggleMFAResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Router			/mfa/toggle [post].
func (h *MFAHandler) HandleToggle(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ToggleMFARequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.MFAService.ToggleMFA(r.Context(), principalFrom(r.Context()), req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.ToggleMFAResponse{Status: "success", User: toUser(u)})
}

// HandleEnrollTOTP godoc
//
//	@Summary		Start authenticator app enrollment
//	@Description	Returns a new secret and otpauth URL. Enrollment completes on confirm.
//	@Tags			MFA
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.TOTPEnrollResponse
//	@Failure		400	{object}	authsdk.ErrorResponse	"Already enrolled"
//	@Failure		401	{object}	authsdk.ErrorResponse
//	@Router			/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnrollTOTP(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.MFAService.EnrollTOTP(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Success: true,
		Secret:  enrollment.Secret,
		URL:     enrollment.URL,
		Issuer:  enrollment.Issuer,
		Account: enrollment.Account,
	})
}

// HandleConfirmTOTP godoc
//
//	@Summary	Confirm authenticator app enrollment
//	@Tags		MFA
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.TOTPConfirmRequest	true	"Current code"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Router		/mfa/totp/confirm [post].
func (h *MFAHandler) HandleConfirmTOTP(w http.ResponseWriter, r *http.Request) {
	var req authsdk.TOTPConfirmRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.MFAService.ConfirmTOTP(r.Context(), principalFrom(r.Context()), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{Success: true, User: toUser(u)})
}
