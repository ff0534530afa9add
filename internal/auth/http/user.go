package http

import (
	"net/http"

	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
)

const mfaSentMessage = "MFA code has been sent to your email"

// UserHandler serves the end-user credential and self-service endpoints.
type UserHandler struct {
	AuthService *service.AuthService
}

// HandleLogin godoc
//
//	@Summary		Log in with email and password
//	@Description	Returns a session token, or requireMFA with the user id when a code was emailed instead.
//	@Description	orgId is only needed when the same email exists in several organizations.
//	@Tags			User
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		429		{object}	authsdk.ErrorResponse
//	@Router			/user/login [post].
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.AuthService.Login(r.Context(), service.LoginRequest{
		Email:          req.Email,
		Password:       req.Password,
		OrganizationID: req.OrgID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res, mfaSentMessage))
}

// HandleFederatedLogin godoc
//
//	@Summary		Log in with a Google ID token
//	@Description	The verified email must belong to an existing user. MFA still applies.
//	@Tags			User
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.FederatedLoginRequest	true	"ID token"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		401		{object}	authsdk.ErrorResponse
//	@Router			/user/federated-login [post].
func (h *UserHandler) HandleFederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.FederatedLoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.IDToken == "" {
		authsdk.NewAPIError(http.StatusBadRequest, "idToken is required").WriteError(w)
		return
	}

	res, err := h.AuthService.FederatedLoginWithToken(r.Context(), req.IDToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res, mfaSentMessage))
}

// HandleUpdate godoc
//
//	@Summary	Update own profile
//	@Tags		User
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.UpdateProfileRequest	true	"Profile"
//	@Success	200		{object}	authsdk.UserResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Router		/user/update [put].
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.AuthService.UpdateProfile(r.Context(), principalFrom(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.UserResponse{Success: true, User: toUser(u)})
}

// HandleLogout godoc
//
//	@Summary	Revoke the presented session token
//	@Tags		User
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	authsdk.MessageResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Router		/user/logout [post].
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.AuthService.Logout(r.Context(), principalFrom(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "Logged out"})
}

// HandleForgotPassword godoc
//
//	@Summary		Email a password reset code
//	@Description	Always answers the same way for unknown emails.
//	@Tags			User
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ForgotPasswordRequest	true	"Account"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Router			/user/forgot-password [post].
func (h *UserHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.AuthService.RequestPasswordReset(r.Context(), req.Email, req.OrgID); err != nil {
		writeResetError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{
		Success: true,
		Message: "Password reset OTP sent to your email",
	})
}

// HandleVerifyResetCode godoc
//
//	@Summary		Check a password reset code
//	@Description	The code stays valid for the reset itself.
//	@Tags			User
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyResetCodeRequest	true	"Code"
//	@Success		200		{object}	authsdk.MessageResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid or expired OTP"
//	@Router			/user/verify-otp [post].
func (h *UserHandler) HandleVerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyResetCodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.AuthService.VerifyResetCode(r.Context(), req.Email, req.OrgID, req.OTP); err != nil {
		writeResetError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "OTP verified successfully"})
}

// HandleResetPassword godoc
//
//	@Summary	Set a new password with a reset code
//	@Tags		User
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.ResetPasswordRequest	true	"Code and new password"
//	@Success	200		{object}	authsdk.MessageResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Router		/user/reset-password [post].
func (h *UserHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.AuthService.ResetPassword(r.Context(), service.ResetPasswordRequest{
		Email:          req.Email,
		OrganizationID: req.OrgID,
		Code:           req.OTP,
		NewPassword:    req.NewPassword,
	})
	if err != nil {
		writeResetError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MessageResponse{Success: true, Message: "Password reset successful"})
}
