package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/models"
)

// Authenticated only requires a valid access token.
func Authenticated(verifier access.AccessVerifier) gin.HandlerFunc {
	return Gate(access.Authenticate(verifier))
}

// RequireRoles authenticates, checks the role and confines the request to
// the caller's gym.
func RequireRoles(verifier access.AccessVerifier, roles ...models.Role) gin.HandlerFunc {
	return Gate(
		access.Authenticate(verifier),
		access.Authorize(roles...),
		access.TenantScope(),
	)
}
