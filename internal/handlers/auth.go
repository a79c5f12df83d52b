package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/response"
	"github.com/lucasfragadev/gym-dev/internal/service"
)

type registerRequest struct {
	Name       string  `json:"name" binding:"required,max=120"`
	Email      string  `json:"email" binding:"required,email"`
	Password   string  `json:"password" binding:"required,min=8,max=128"`
	GymID      string  `json:"gymId" binding:"required"`
	Role       *string `json:"role" binding:"omitempty,role"`
	NationalID *string `json:"nationalId" binding:"omitempty,max=32"`
	Phone      *string `json:"phone" binding:"omitempty,max=32"`
	BirthDate  *string `json:"birthDate" binding:"omitempty,datetime=2006-01-02"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	GymID    string `json:"gymId" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authResponse struct {
	User         models.Profile `json:"user"`
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
}

func (h HandlerSet) Register(c *gin.Context) {
	var req registerRequest
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

	input := service.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		GymID:      req.GymID,
		NationalID: req.NationalID,
		Phone:      req.Phone,
		BirthDate:  birthDate,
	}
	if role != nil {
		input.Role = *role
	}

	result, err := h.auth.Register(c.Request.Context(), input)
	if err != nil {
		fail(c, err)
		return
	}

	h.setAccessCookie(c, result.AccessToken)
	h.setRefreshCookie(c, result.RefreshToken)
	response.Created(c, authResponse{
		User:         result.Profile,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, bindError(err))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		GymID:    req.GymID,
	})
	if err != nil {
		fail(c, err)
		return
	}

	h.setAccessCookie(c, result.AccessToken)
	h.setRefreshCookie(c, result.RefreshToken)
	response.OK(c, authResponse{
		User:         result.Profile,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
	})
}

// Refresh takes the refresh token from its cookie, or from the JSON body
// for clients that do not keep cookies.
func (h HandlerSet) Refresh(c *gin.Context) {
	token, _ := c.Cookie(access.RefreshTokenCookie)
	if strings.TrimSpace(token) == "" {
		var req refreshRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, bindError(err))
				return
			}
		}
		token = req.RefreshToken
	}
	if strings.TrimSpace(token) == "" {
		fail(c, apperr.Unauthorized("refresh token required"))
		return
	}

	accessToken, err := h.auth.RefreshAccessToken(c.Request.Context(), token)
	if err != nil {
		fail(c, err)
		return
	}

	h.setAccessCookie(c, accessToken)
	response.OK(c, gin.H{"accessToken": accessToken})
}

// Logout clears both cookies. Tokens stay valid until they expire.
func (h HandlerSet) Logout(c *gin.Context) {
	token, _ := c.Cookie(access.AccessTokenCookie)
	if token == "" {
		token, _ = c.Cookie(access.RefreshTokenCookie)
	}
	if claims := h.codec.DecodeUnsafe(token); claims != nil {
		h.log.Info().Str("user_id", claims.Subject).Str("gym_id", claims.GymID).Msg("user logged out")
	}

	h.clearCookie(c, access.AccessTokenCookie)
	h.clearCookie(c, access.RefreshTokenCookie)
	response.Message(c, "logged out")
}

func (h HandlerSet) Me(c *gin.Context) {
	id, err := caller(c)
	if err != nil {
		fail(c, err)
		return
	}
	profile, err := h.auth.GetProfile(c.Request.Context(), id.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.OK(c, gin.H{"user": profile})
}

func (h HandlerSet) setAccessCookie(c *gin.Context, token string) {
	h.setCookie(c, access.AccessTokenCookie, token, h.codec.AccessTTL())
}

func (h HandlerSet) setRefreshCookie(c *gin.Context, token string) {
	h.setCookie(c, access.RefreshTokenCookie, token, h.cfg.Security.RefreshCookieTTL)
}

func (h HandlerSet) clearCookie(c *gin.Context, name string) {
	h.setCookie(c, name, "", -time.Second)
}

// setCookie issues HttpOnly cookies that are Secure and SameSite=Strict
// everywhere except development, where they are Lax over plain HTTP.
func (h HandlerSet) setCookie(c *gin.Context, name string, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.Security.CookieDomain,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
	if h.cfg.IsDevelopment() {
		cookie.Secure = false
		cookie.SameSite = http.SameSiteLaxMode
	}
	if ttl < 0 {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0)
	} else {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(c.Writer, cookie)
}
