package http

import (
	"net/http"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
	"github.com/aussiebroadwan/tenantauth/pkg/httpx"
)

// OrganizationHandler serves organization creation and domain management.
type OrganizationHandler struct {
	OrganizationService *service.OrganizationService
}

// HandleCreate godoc
//
//	@Summary		Create an organization
//	@Description	domains may be an object or an array of single-entry objects.
//	@Description	When admin is given, that user is created as the organization's first administrator.
//	@Tags			Organization
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.CreateOrganizationRequest	true	"Organization"
//	@Success		201		{object}	authsdk.OrganizationResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Router			/organization/create [post].
func (h *OrganizationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateOrganizationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in := domain.NewOrganization{Name: req.Name, Domains: req.Domains}
	if req.Admin != nil {
		in.Admin = &domain.NewUser{
			Email:      req.Admin.Email,
			Name:       req.Admin.Name,
			Password:   req.Admin.Password,
			MFAEnabled: req.Admin.MFAEnabled,
		}
	}

	org, admin, err := h.OrganizationService.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := authsdk.OrganizationResponse{Success: true, Data: toOrganization(org)}
	if admin != nil {
		u := toUser(*admin)
		out.Admin = &u
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

// HandleAddDomain godoc
//
//	@Summary		Add or replace a domain
//	@Description	Sets name to domain on the caller's organization.
//	@Tags			Organization
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.AddDomainRequest	true	"Domain"
//	@Success		200		{object}	authsdk.OrganizationResponse
//	@Failure		400		{object}	authsdk.ErrorResponse
//	@Failure		403		{object}	authsdk.ErrorResponse
//	@Router			/organization/domain/add [post].
func (h *OrganizationHandler) HandleAddDomain(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AddDomainRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	org, err := h.OrganizationService.AddDomain(r.Context(), principalFrom(r.Context()), req.OrgID, req.Name, req.Domain)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.OrganizationResponse{Success: true, Data: toOrganization(org)})
}

// HandleRemoveDomain godoc
//
//	@Summary	Remove a domain
//	@Tags		Organization
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.RemoveDomainRequest	true	"Domain label"
//	@Success	200		{object}	authsdk.OrganizationResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Failure	403		{object}	authsdk.ErrorResponse
//	@Failure	404		{object}	authsdk.ErrorResponse	"Domain not found"
//	@Router		/organization/domain/remove [delete].
func (h *OrganizationHandler) HandleRemoveDomain(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RemoveDomainRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	org, err := h.OrganizationService.RemoveDomain(r.Context(), principalFrom(r.Context()), req.OrgID, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.OrganizationResponse{Success: true, Data: toOrganization(org)})
}
