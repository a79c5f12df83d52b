package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/events"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/repository"
)

const MinPasswordLength = 8

// UserService covers administration inside one gym and self-service profile
// edits. Callers pass the gym the gate already scoped the request to.
type UserService struct {
	users  UserStore
	hasher PasswordHasher
	audit  auditor
	log    zerolog.Logger
}

func NewUserService(users UserStore, hasher PasswordHasher, publisher events.Publisher, log zerolog.Logger) *UserService {
	return &UserService{
		users:  users,
		hasher: hasher,
		audit:  auditor{publisher: publisher, log: log},
		log:    log,
	}
}

func (s *UserService) List(ctx context.Context, gymID string) ([]models.Profile, error) {
	users, err := s.users.ListByGym(ctx, gymID)
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	return profiles(users), nil
}

func (s *UserService) Get(ctx context.Context, gymID string, userID string) (models.Profile, error) {
	user, err := loadInGym(ctx, s.users, gymID, userID)
	if err != nil {
		return models.Profile{}, err
	}
	return user.Profile(), nil
}

// UserUpdate holds the fields an admin may change. Nil leaves a field as is.
type UserUpdate struct {
	Name       *string
	Email      *string
	Role       *models.Role
	NationalID *string
	Phone      *string
	BirthDate  *time.Time
}

func (s *UserService) AdminUpdate(ctx context.Context, actor access.Identity, gymID string, userID string, update UserUpdate) (models.Profile, error) {
	user, err := loadInGym(ctx, s.users, gymID, userID)
	if err != nil {
		return models.Profile{}, err
	}

	changed := map[string]string{}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Profile{}, apperr.Invalid("name must not be empty")
		}
		user.Name = name
		changed["name"] = "true"
	}

	if update.Email != nil {
		email := normalizeEmail(*update.Email)
		if email == "" {
			return models.Profile{}, apperr.Invalid("email must not be empty")
		}
		if email != user.Email {
			if err := s.ensureEmailFree(ctx, gymID, email, user.ID); err != nil {
				return models.Profile{}, err
			}
			user.Email = email
			changed["email"] = "true"
		}
	}

	if update.Role != nil {
		role := *update.Role
		if !role.Valid() {
			return models.Profile{}, apperr.Invalid("unknown role")
		}
		if user.ID == actor.UserID && role != user.Role {
			return models.Profile{}, apperr.Forbidden("cannot change your own role")
		}
		if role != user.Role {
			changed["role"] = string(role)
		}
		user.Role = role
	}

	if update.NationalID != nil {
		nationalID := strings.TrimSpace(*update.NationalID)
		if nationalID == "" {
			user.NationalID = nil
		} else {
			if user.NationalID == nil || *user.NationalID != nationalID {
				if err := s.ensureNationalIDFree(ctx, nationalID, user.ID); err != nil {
					return models.Profile{}, err
				}
			}
			user.NationalID = &nationalID
		}
		changed["nationalId"] = "true"
	}

	if update.Phone != nil {
		user.Phone = optional(*update.Phone)
		changed["phone"] = "true"
	}
	if update.BirthDate != nil {
		user.BirthDate = update.BirthDate
		changed["birthDate"] = "true"
	}

	if err := s.users.Update(ctx, user); err != nil {
		return models.Profile{}, s.writeError(err)
	}
	user.UpdatedAt = time.Now().UTC()

	changed["by"] = actor.UserID
	s.audit.record(ctx, models.EventUserUpdated, gymID, user.ID, changed)
	return user.Profile(), nil
}

func (s *UserService) Deactivate(ctx context.Context, actor access.Identity, gymID string, userID string) (models.Profile, error) {
	if actor.UserID == userID {
		return models.Profile{}, apperr.Forbidden("cannot deactivate your own account")
	}
	return s.setActive(ctx, actor, gymID, userID, false)
}

func (s *UserService) Activate(ctx context.Context, actor access.Identity, gymID string, userID string) (models.Profile, error) {
	return s.setActive(ctx, actor, gymID, userID, true)
}

func (s *UserService) setActive(ctx context.Context, actor access.Identity, gymID string, userID string, active bool) (models.Profile, error) {
	user, err := loadInGym(ctx, s.users, gymID, userID)
	if err != nil {
		return models.Profile{}, err
	}
	if err := s.users.SetActive(ctx, user.ID, active); err != nil {
		return models.Profile{}, s.writeError(err)
	}
	user.Active = active

	event := models.EventUserDeactivated
	if active {
		event = models.EventUserActivated
	}
	s.log.Info().Str("user_id", user.ID).Str("gym_id", gymID).Str("by", actor.UserID).Bool("active", active).Msg("user activation changed")
	s.audit.record(ctx, event, gymID, user.ID, map[string]string{"by": actor.UserID})
	return user.Profile(), nil
}

func (s *UserService) Delete(ctx context.Context, actor access.Identity, gymID string, userID string) error {
	if actor.UserID == userID {
		return apperr.Forbidden("cannot delete your own account")
	}
	user, err := loadInGym(ctx, s.users, gymID, userID)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return s.writeError(err)
	}
	s.log.Info().Str("user_id", user.ID).Str("gym_id", gymID).Str("by", actor.UserID).Msg("user deleted")
	s.audit.record(ctx, models.EventUserDeleted, gymID, user.ID, map[string]string{"by": actor.UserID})
	return nil
}

// ProfileUpdate is what a user may change about themselves. Role, gym and
// email are not part of it.
type ProfileUpdate struct {
	Name      *string
	Phone     *string
	BirthDate *time.Time
}

func (s *UserService) UpdateOwnProfile(ctx context.Context, userID string, update ProfileUpdate) (models.Profile, error) {
	user, err := loadActive(ctx, s.users, userID)
	if err != nil {
		return models.Profile{}, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return models.Profile{}, apperr.Invalid("name must not be empty")
		}
		user.Name = name
	}
	if update.Phone != nil {
		user.Phone = optional(*update.Phone)
	}
	if update.BirthDate != nil {
		user.BirthDate = update.BirthDate
	}

	if err := s.users.Update(ctx, user); err != nil {
		return models.Profile{}, s.writeError(err)
	}
	user.UpdatedAt = time.Now().UTC()

	s.audit.record(ctx, models.EventUserUpdated, user.GymID, user.ID, map[string]string{"by": user.ID})
	return user.Profile(), nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID string, current string, next string) error {
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return apperr.Invalid("new password must be at least 8 characters")
	}
	user, err := loadActive(ctx, s.users, userID)
	if err != nil {
		return err
	}
	if !s.hasher.Verify(current, user.PasswordHash) {
		return apperr.Unauthorized("current password is incorrect")
	}

	digest, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Unexpected(err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, digest); err != nil {
		return s.writeError(err)
	}

	s.audit.record(ctx, models.EventUserUpdated, user.GymID, user.ID, map[string]string{"password": "true", "by": user.ID})
	return nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, gymID string, email string, selfID string) error {
	existing, err := s.users.FindByEmail(ctx, gymID, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return nil
	case err != nil:
		return apperr.Unexpected(err)
	case existing.ID != selfID:
		return apperr.Conflict(msgEmailTaken)
	}
	return nil
}

func (s *UserService) ensureNationalIDFree(ctx context.Context, nationalID string, selfID string) error {
	existing, err := s.users.FindByNationalID(ctx, nationalID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return nil
	case err != nil:
		return apperr.Unexpected(err)
	case existing.ID != selfID:
		return apperr.Conflict(msgNationalIDTaken)
	}
	return nil
}

func (s *UserService) writeError(err error) error {
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return conflictFrom(err)
	case errors.Is(err, repository.ErrUserNotFound):
		return apperr.NotFound("user not found")
	}
	return apperr.Unexpected(err)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
