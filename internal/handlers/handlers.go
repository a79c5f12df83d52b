package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/config"
	"github.com/lucasfragadev/gym-dev/internal/metrics"
	"github.com/lucasfragadev/gym-dev/internal/middleware"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/security"
	"github.com/lucasfragadev/gym-dev/internal/service"
)

// Pinger is a dependency the health endpoint checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Deps struct {
	Config   *config.AppConfig
	Log      zerolog.Logger
	Codec    *security.TokenCodec
	Auth     *service.AuthService
	Users    *service.UserService
	CheckIns *service.CheckInService
	Photos   *service.PhotoService
	Metrics  *metrics.Metrics
	Checks   map[string]Pinger
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	codec    *security.TokenCodec
	auth     *service.AuthService
	users    *service.UserService
	checkIns *service.CheckInService
	photos   *service.PhotoService
	metrics  *metrics.Metrics
	checks   map[string]Pinger
}

func NewHandlerSet(deps Deps) HandlerSet {
	registerValidators()
	return HandlerSet{
		log:      deps.Log,
		cfg:      deps.Config,
		codec:    deps.Codec,
		auth:     deps.Auth,
		users:    deps.Users,
		checkIns: deps.CheckIns,
		photos:   deps.Photos,
		metrics:  deps.Metrics,
		checks:   deps.Checks,
	}
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	authenticated := middleware.Authenticated(h.codec)
	staff := middleware.RequireRoles(h.codec, models.RoleAdmin, models.RoleInstructor)
	admin := middleware.RequireRoles(h.codec, models.RoleAdmin)
	anyRole := middleware.RequireRoles(h.codec, models.Roles...)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", authenticated, h.Me)

		me := v1.Group("/users/me", authenticated)
		me.PATCH("", h.UpdateOwnProfile)
		me.PUT("/password", h.ChangePassword)
		me.PUT("/photo", h.UploadPhoto)

		gym := v1.Group("/gyms/:gymId")
		gym.GET("/users", staff, h.ListUsers)
		gym.GET("/users/:userId", staff, h.GetUser)
		gym.PATCH("/users/:userId", admin, h.UpdateUser)
		gym.PATCH("/users/:userId/deactivate", admin, h.DeactivateUser)
		gym.PATCH("/users/:userId/activate", admin, h.ActivateUser)
		gym.DELETE("/users/:userId", admin, h.DeleteUser)
		gym.GET("/users/:userId/checkins", anyRole, h.ListUserCheckIns)

		gym.POST("/checkins", anyRole, h.CreateCheckIn)
		gym.GET("/checkins", staff, h.ListCheckIns)
	}
}

// fail hands err to the Errors middleware and stops the chain.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// caller returns the identity the gate attached to the request.
func caller(c *gin.Context) (access.Identity, error) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		return access.Identity{}, apperr.Unauthorized("")
	}
	return id, nil
}
