package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/response"
)

// Errors renders the last error attached with c.Error as the response
// envelope. It is the only place errors become HTTP responses.
func Errors(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err

		appErr, ok := apperr.As(err)
		if !ok || appErr.Kind == apperr.KindUnexpected {
			log.Error().
				Err(err).
				Str("method", c.Request.Method).
				Str("path", c.Request.URL.Path).
				Str("request_id", c.Writer.Header().Get(requestIDHeader)).
				Msg("request failed")
		} else {
			log.Debug().
				Str("kind", string(appErr.Kind)).
				Str("message", appErr.Message).
				Str("path", c.Request.URL.Path).
				Msg("request rejected")
		}

		response.Error(c, err)
	}
}
