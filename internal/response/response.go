// Package response renders the uniform JSON envelope every endpoint uses.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{Status: StatusSuccess, Data: data})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Envelope{Status: StatusSuccess, Data: data})
}

// Message sends a 200 with a message and no data.
func Message(c *gin.Context, message string) {
	c.JSON(http.StatusOK, Envelope{Status: StatusSuccess, Message: message})
}

// Error writes err using its kind. Anything that is not an *apperr.Error is
// reported as a generic 500.
func Error(c *gin.Context, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		appErr = apperr.Unexpected(err)
	}
	c.AbortWithStatusJSON(appErr.Status(), Envelope{Status: StatusError, Message: appErr.Message})
}
