package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/response"
)

type checkInRequest struct {
	UserID string `json:"userId"`
}

// CreateCheckIn records attendance. Without a userId the caller is checked in.
func (h HandlerSet) CreateCheckIn(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req checkInRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, bindError(err))
			return
		}
	}

	checkIn, err := h.checkIns.Create(c.Request.Context(), id, c.Param(access.GymIDParam), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Created(c, gin.H{"checkIn": checkIn})
}

func (h HandlerSet) ListCheckIns(c *gin.Context) {
	checkIns, err := h.checkIns.ListForGym(c.Request.Context(), c.Param(access.GymIDParam))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"checkIns": checkIns})
}

func (h HandlerSet) ListUserCheckIns(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	checkIns, err := h.checkIns.ListForUser(c.Request.Context(), id, c.Param(access.GymIDParam), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"checkIns": checkIns})
}
