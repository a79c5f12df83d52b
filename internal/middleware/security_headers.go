package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders sets conservative defaults for a JSON API. Responses are
// never cached because many carry tokens or personal data.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
