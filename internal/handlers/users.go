package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/response"
	"github.com/lucasfragadev/gym-dev/internal/service"
)

type updateProfileRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=120"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	BirthDate *string `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8,max=128"`
}

type adminUpdateRequest struct {
	Name       *string `json:"name" binding:"omitempty,min=1,max=120"`
	Email      *string `json:"email" binding:"omitempty,email"`
	Role       *string `json:"role" binding:"omitempty,role"`
	NationalID *string `json:"nationalId" binding:"omitempty,max=32"`
	Phone      *string `json:"phone" binding:"omitempty,max=32"`
	BirthDate  *string `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
}

func (h HandlerSet) UpdateOwnProfile(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	birthDate, err := parseDate(req.BirthDate)
	if err != nil {
		fail(c, err)
		return
	}

	profile, err := h.users.UpdateOwnProfile(c.Request.Context(), id.UserID, service.ProfileUpdate{
		Name:      req.Name,
		Phone:     req.Phone,
		BirthDate: birthDate,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": profile})
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	if err := h.users.ChangePassword(c.Request.Context(), id.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	response.Message(c, "password updated")
}

func (h HandlerSet) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), c.Param(access.GymIDParam))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"users": users})
}

func (h HandlerSet) GetUser(c *gin.Context) {
	profile, err := h.users.Get(c.Request.Context(), c.Param(access.GymIDParam), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": profile})
}

func (h HandlerSet) UpdateUser(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	var req adminUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}
	role, err := parseRole(req.Role)
	if err != nil {
		fail(c, err)
		return
	}
	birthDate, err := parseDate(req.BirthDate)
	if err != nil {
		fail(c, err)
		return
	}

	profile, err := h.users.AdminUpdate(c.Request.Context(), id, c.Param(access.GymIDParam), c.Param("userId"), service.UserUpdate{
		Name:       req.Name,
		Email:      req.Email,
		Role:       role,
		NationalID: req.NationalID,
		Phone:      req.Phone,
		BirthDate:  birthDate,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": profile})
}

func (h HandlerSet) DeactivateUser(c *gin.Context) {
	h.changeActive(c, h.users.Deactivate)
}

func (h HandlerSet) ActivateUser(c *gin.Context) {
	h.changeActive(c, h.users.Activate)
}

type activationFunc func(ctx context.Context, actor access.Identity, gymID string, userID string) (models.Profile, error)

func (h HandlerSet) changeActive(c *gin.Context, change activationFunc) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	profile, err := change(c.Request.Context(), id, c.Param(access.GymIDParam), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": profile})
}

func (h HandlerSet) DeleteUser(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.users.Delete(c.Request.Context(), id, c.Param(access.GymIDParam), c.Param("userId")); err != nil {
		fail(c, err)
		return
	}
	response.Message(c, "user deleted")
}
