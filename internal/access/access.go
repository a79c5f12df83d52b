// Package access implements request-time authentication, role checks and
// tenant isolation as pure stages over a Request value. The gin adapter in
// internal/middleware builds the Request and applies the result.
package access

import (
	"slices"
	"strings"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/security"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
	GymIDParam         = "gymId"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	GymID  string
	Role   models.Role
}

// Request is the subset of an inbound HTTP request the gate looks at.
type Request struct {
	CookieToken string
	BearerToken string
	PathGymID   string
	QueryGymID  string
	BodyGymID   string
	Identity    *Identity
}

// Stage inspects a request and either returns it (possibly with an identity
// attached) or fails with an *apperr.Error.
type Stage func(Request) (Request, error)

// Chain runs stages in order and stops at the first error.
func Chain(stages ...Stage) Stage {
	return func(req Request) (Request, error) {
		var err error
		for _, stage := range stages {
			req, err = stage(req)
			if err != nil {
				return req, err
			}
		}
		return req, nil
	}
}

type AccessVerifier interface {
	VerifyAccessToken(token string) (security.AccessClaims, error)
}

// Authenticate resolves the caller from the access token. The cookie wins
// over the Authorization header. Verification failures are reported with
// one message regardless of cause.
func Authenticate(verifier AccessVerifier) Stage {
	return func(req Request) (Request, error) {
		token := strings.TrimSpace(req.CookieToken)
		if token == "" {
			token = strings.TrimSpace(req.BearerToken)
		}
		if token == "" {
			return req, apperr.Unauthorized("no token supplied")
		}

		claims, err := verifier.VerifyAccessToken(token)
		if err != nil {
			return req, apperr.Unauthorized("invalid or expired token")
		}

		req.Identity = &Identity{
			UserID: claims.UserID(),
			GymID:  claims.GymID,
			Role:   claims.Role,
		}
		return req, nil
	}
}

// Authorize admits only the listed roles.
func Authorize(allowed ...models.Role) Stage {
	names := make([]string, 0, len(allowed))
	for _, role := range models.Roles {
		if slices.Contains(allowed, role) {
			names = append(names, string(role))
		}
	}
	denied := "access denied: requires one of " + strings.Join(names, ", ")

	return func(req Request) (Request, error) {
		if req.Identity == nil {
			return req, apperr.Unauthorized("authentication required")
		}
		if !slices.Contains(allowed, req.Identity.Role) {
			return req, apperr.Forbidden(denied)
		}
		return req, nil
	}
}

// TenantScope rejects requests that name a gym other than the caller's.
// The gym is taken from the path, then the query, then the JSON body.
// A request that names no gym passes.
func TenantScope() Stage {
	return func(req Request) (Request, error) {
		if req.Identity == nil || strings.TrimSpace(req.Identity.GymID) == "" {
			return req, apperr.Unauthorized("authentication required")
		}

		requested := firstNonEmpty(req.PathGymID, req.QueryGymID, req.BodyGymID)
		if requested == "" {
			return req, nil
		}
		if requested != req.Identity.GymID {
			return req, apperr.Forbidden("cross-tenant access denied")
		}
		return req, nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
