package http

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
	"github.com/aussiebroadwan/tenantauth/pkg/slogx"
)

// AdminHandler serves the administrator endpoints. Everything except login
// sits behind the admin role check in the router.
type AdminHandler struct {
	AuthService         *service.AuthService
	AdminService        *service.AdminService
	OrganizationService *service.OrganizationService
}

// HandleLogin godoc
//
//	@Summary		Administrator login
//	@Description	Like /user/login but only for admins. A successful session also returns the organization.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Router			/admin/login [post].
func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.AuthService.AdminLogin(r.Context(), service.LoginRequest{
		Email:          req.Email,
		Password:       req.Password,
		OrganizationID: req.OrgID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := loginResponse(res, mfaSentMessage)
	if res.User != nil {
		p := domain.Principal{
			UserID:         res.User.ID,
			OrganizationID: res.User.OrganizationID,
			Email:          res.User.Email,
			Role:           res.User.Role,
		}
		org, err := h.OrganizationService.Get(r.Context(), p, "")
		if err != nil {
			slogx.FromContext(r.Context()).Warn("admin login: organization lookup failed", "err", err)
		} else {
			o := toOrganization(org)
			out.Organization = &o
		}
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleCreateUser godoc
//
//	@Summary	Create a user in the caller's organization
//	@Tags		Admin
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.CreateUserRequest	true	"New user"
//	@Success	201		{object}	authsdk.UserResponse
//	@Failure	400		{object}	authsdk.ErrorResponse	"Validation failed or email taken"
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Failure	403		{object}	authsdk.ErrorResponse
//	@Router		/admin/create-users [post].
func (h *AdminHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p := principalFrom(r.Context())
	if orgID := strings.TrimSpace(req.OrgID); orgID != "" && orgID != p.OrganizationID {
		writeError(w, r, service.ErrOrganizationMismatch)
		return
	}

	u, err := h.AdminService.CreateUser(r.Context(), p, domain.NewUser{
		Email:      req.Email,
		Name:       req.Name,
		Password:   req.Password,
		Role:       domain.Role(req.Role),
		Access:     req.Access,
		MFAEnabled: req.MFAEnabled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{Success: true, User: toUser(u)})
}

// HandleListUsers godoc
//
//	@Summary	List the users of the caller's organization
//	@Tags		Admin
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	authsdk.UsersResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Failure	403	{object}	authsdk.ErrorResponse
//	@Router		/admin/get-users [get].
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.AdminService.ListUsers(r.Context(), principalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UsersResponse{Success: true, Data: toUsers(users)})
}

// HandleDeleteUser godoc
//
//	@Summary		Delete a user
//	@Description	The last admin of an organization cannot be deleted.
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"User ID"
//	@Success		200	{object}	authsdk.MessageResponse
//	@Failure		400	{object}	authsdk.ErrorResponse	"Last admin"
//	@Failure		403	{object}	authsdk.ErrorResponse
//	@Failure		404	{object}	authsdk.ErrorResponse
//	@Router			/admin/delete-users/{id} [delete].
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.AdminService.DeleteUser(r.Context(), principalFrom(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "User deleted successfully"})
}

// HandleToggleMFA godoc
//
//	@Summary		Switch emailed MFA for a user
//	@Description	Omit enabled to flip the current setting.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.AdminToggleMFARequest	true	"Target"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Router			/admin/toggle-mfa [post].
func (h *AdminHandler) HandleToggleMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AdminToggleMFARequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.AdminService.SetUserMFA(r.Context(), principalFrom(r.Context()), req.UserID, req.Enabled)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{Success: true, Message: "MFA setting updated successfully", User: toUser(u)})
}

// HandleUpdateRole godoc
//
//	@Summary		Change a user's role
//	@Description	Demoting the last admin is refused.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.UpdateRoleRequest	true	"Target and role"
//	@Success		200		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Failure		404		{object}	authsdk.ErrorResponse
//	@Router			/admin/update-role [put].
func (h *AdminHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.AdminService.UpdateRole(r.Context(), principalFrom(r.Context()), req.UserID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{Success: true, Message: "Role updated successfully", User: toUser(u)})
}

// HandleUpdateAccess godoc
//
//	@Summary	Replace a user's access list
//	@Tags		Admin
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.UpdateAccessRequest	true	"Target and access"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	403		{object}	authsdk.ErrorResponse
//	@Failure	404		{object}	authsdk.ErrorResponse
//	@Router		/admin/update-access [put].
func (h *AdminHandler) HandleUpdateAccess(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateAccessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.AdminService.UpdateAccess(r.Context(), principalFrom(r.Context()), req.UserID, req.Access)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{Success: true, Message: "Access updated successfully", User: toUser(u)})
}
