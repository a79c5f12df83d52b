package service

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/access"
	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/ids"
	"github.com/lucasfragadev/gym-dev/internal/models"
)

type CheckInService struct {
	checkIns CheckInStore
	users    CredentialStore
	log      zerolog.Logger
}

func NewCheckInService(checkIns CheckInStore, users CredentialStore, log zerolog.Logger) *CheckInService {
	return &CheckInService{checkIns: checkIns, users: users, log: log}
}

// Create records a check-in for targetUserID, or for the actor when it is
// empty. Members may only check themselves in.
func (s *CheckInService) Create(ctx context.Context, actor access.Identity, gymID string, targetUserID string) (models.CheckIn, error) {
	target := strings.TrimSpace(targetUserID)
	if target == "" {
		target = actor.UserID
	}
	if actor.Role == models.RoleMember && target != actor.UserID {
		return models.CheckIn{}, apperr.Forbidden("members can only check themselves in")
	}

	user, err := loadInGym(ctx, s.users, gymID, target)
	if err != nil {
		return models.CheckIn{}, err
	}
	if !user.Active {
		return models.CheckIn{}, inactive()
	}

	checkIn := models.CheckIn{
		ID:          ids.New(),
		GymID:       gymID,
		UserID:      user.ID,
		CreatedBy:   actor.UserID,
		CheckedInAt: time.Now().UTC(),
	}
	if err := s.checkIns.Create(ctx, checkIn); err != nil {
		return models.CheckIn{}, apperr.Unexpected(err)
	}

	s.log.Debug().Str("user_id", user.ID).Str("gym_id", gymID).Str("by", actor.UserID).Msg("check-in recorded")
	return checkIn, nil
}

func (s *CheckInService) ListForGym(ctx context.Context, gymID string) ([]models.CheckIn, error) {
	checkIns, err := s.checkIns.ListByGym(ctx, gymID)
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	return nonNil(checkIns), nil
}

// ListForUser returns one user's check-ins. Members only see their own.
func (s *CheckInService) ListForUser(ctx context.Context, actor access.Identity, gymID string, userID string) ([]models.CheckIn, error) {
	if actor.Role == models.RoleMember && userID != actor.UserID {
		return nil, apperr.Forbidden("members can only view their own check-ins")
	}
	if _, err := loadInGym(ctx, s.users, gymID, userID); err != nil {
		return nil, err
	}
	checkIns, err := s.checkIns.ListByUser(ctx, gymID, userID)
	if err != nil {
		return nil, apperr.Unexpected(err)
	}
	return nonNil(checkIns), nil
}

func nonNil(checkIns []models.CheckIn) []models.CheckIn {
	if checkIns == nil {
		return []models.CheckIn{}
	}
	return checkIns
}
