package http

import (
	"context"

	"github.com/aussiebroadwan/tenantauth/internal/auth/domain"
	"github.com/aussiebroadwan/tenantauth/internal/auth/service"
	"github.com/aussiebroadwan/tenantauth/pkg/authsdk"
)

func toUser(u domain.PublicUser) authsdk.User {
	out := authsdk.User{
		ID:          u.ID,
		OrgID:       u.OrganizationID,
		Email:       u.Email,
		Name:        u.Name,
		Role:        u.Role.String(),
		Access:      u.Access,
		MFAEnabled:  u.MFAEnabled,
		TOTPEnabled: u.TOTPEnabled,
		CreatedAt:   u.CreatedAt,
	}
	if out.Access == nil {
		out.Access = []string{}
	}
	for _, ev := range u.LoginHistory {
		out.LoginHistory = append(out.LoginHistory, authsdk.LoginEvent{Timestamp: ev.At})
	}
	return out
}

func toUsers(in []domain.PublicUser) []authsdk.User {
	out := make([]authsdk.User, 0, len(in))
	for _, u := range in {
		out = append(out, toUser(u))
	}
	return out
}

func toOrganization(o domain.Organization) authsdk.Organization {
	domains := o.Domains
	if domains == nil {
		domains = map[string]string{}
	}
	return authsdk.Organization{
		ID:        o.ID,
		Name:      o.Name,
		Domains:   domains,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// loginResponse renders either branch of a LoginResult.
func loginResponse(res service.LoginResult, mfaMessage string) authsdk.LoginResponse {
	if res.MFARequired {
		return authsdk.LoginResponse{
			Success:    true,
			RequireMFA: true,
			UserID:     res.UserID,
			Message:    mfaMessage,
		}
	}

	out := authsdk.LoginResponse{Success: true, Token: res.Token}
	if !res.ExpiresAt.IsZero() {
		exp := res.ExpiresAt
		out.ExpiresAt = &exp
	}
	if res.User != nil {
		u := toUser(*res.User)
		out.User = &u
	}
	return out
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the principal stored by the authentication
// middleware. Handlers behind it can rely on it being present.
func principalFrom(ctx context.Context) domain.Principal {
	p, _ := ctx.Value(principalKey{}).(domain.Principal)
	return p
}
