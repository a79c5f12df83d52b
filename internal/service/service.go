// Package service holds the business operations behind the HTTP handlers.
// Every error a service returns to a handler is an *apperr.Error.
package service

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/events"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/repository"
	"github.com/lucasfragadev/gym-dev/internal/security"
)

// CredentialStore is the part of the user store the auth flows need.
type CredentialStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, gymID string, email string) (models.User, error)
	FindByNationalID(ctx context.Context, nationalID string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
}

// UserStore adds the administrative writes.
type UserStore interface {
	CredentialStore
	ListByGym(ctx context.Context, gymID string) ([]models.User, error)
	Update(ctx context.Context, user models.User) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdatePassword(ctx context.Context, id string, hash []byte) error
	UpdatePhoto(ctx context.Context, id string, key string) error
	Delete(ctx context.Context, id string) error
}

type CheckInStore interface {
	Create(ctx context.Context, checkIn models.CheckIn) error
	ListByGym(ctx context.Context, gymID string) ([]models.CheckIn, error)
	ListByUser(ctx context.Context, gymID string, userID string) ([]models.CheckIn, error)
}

type PasswordHasher interface {
	Hash(password string) ([]byte, error)
	Verify(password string, digest []byte) bool
}

type TokenIssuer interface {
	IssueAccessToken(userID string, gymID string, role models.Role) (string, error)
	IssueRefreshToken(userID string) (string, error)
	VerifyRefreshToken(token string) (security.RefreshClaims, error)
}

// ObjectPutter stores uploaded objects and resolves their public URL.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	PublicURL(key string) string
}

var (
	_ UserStore      = (*repository.UserRepository)(nil)
	_ CheckInStore   = (*repository.CheckInRepository)(nil)
	_ PasswordHasher = (*security.PasswordHasher)(nil)
	_ TokenIssuer    = (*security.TokenCodec)(nil)
)

// auditor publishes audit events on a best-effort basis. A failed publish is
// logged and never fails the operation that triggered it.
type auditor struct {
	publisher events.Publisher
	log       zerolog.Logger
}

func (a auditor) record(ctx context.Context, event models.AuditEvent, gymID string, userID string, meta map[string]string) {
	if a.publisher == nil {
		return
	}
	err := a.publisher.Publish(ctx, events.Event{
		Type:       string(event),
		GymID:      gymID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Meta:       meta,
	})
	if err != nil {
		a.log.Warn().Err(err).
			Str("event", string(event)).
			Str("gym_id", gymID).
			Str("user_id", userID).
			Msg("publish audit event failed")
	}
}

// loadInGym fetches a user and hides users of other gyms behind NotFound.
func loadInGym(ctx context.Context, users CredentialStore, gymID string, userID string) (models.User, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, apperr.Unexpected(err)
	}
	if user.GymID != gymID {
		return models.User{}, apperr.NotFound("user not found")
	}
	return user, nil
}

// loadActive fetches a user by id and rejects deactivated accounts.
func loadActive(ctx context.Context, users CredentialStore, userID string) (models.User, error) {
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, apperr.Unexpected(err)
	}
	if !user.Active {
		return models.User{}, inactive()
	}
	return user, nil
}

func inactive() error { return apperr.Forbidden("account is inactive") }

// conflictFrom maps a store-level duplicate onto the caller-facing message.
func conflictFrom(err error) error {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) && dup.Constraint == repository.ConstraintNationalID {
		return apperr.Conflict(msgNationalIDTaken)
	}
	return apperr.Conflict(msgEmailTaken)
}

const (
	msgEmailTaken      = "email already registered for this gym"
	msgNationalIDTaken = "national id already registered"
)

func profiles(users []models.User) []models.Profile {
	out := make([]models.Profile, 0, len(users))
	for _, u := range users {
		out = append(out, u.Profile())
	}
	return out
}
