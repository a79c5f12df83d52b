package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucasfragadev/gym-dev/internal/apperr"
	"github.com/lucasfragadev/gym-dev/internal/events"
	"github.com/lucasfragadev/gym-dev/internal/ids"
	"github.com/lucasfragadev/gym-dev/internal/metrics"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/repository"
)

// Login reports unknown emails and wrong passwords with the same message.
const msgInvalidCredentials = "invalid credentials"

type AuthService struct {
	users   CredentialStore
	hasher  PasswordHasher
	tokens  TokenIssuer
	audit   auditor
	metrics *metrics.Metrics
	log     zerolog.Logger

	decoyOnce   sync.Once
	decoyDigest []byte
}

func NewAuthService(
	users CredentialStore,
	hasher PasswordHasher,
	tokens TokenIssuer,
	publisher events.Publisher,
	m *metrics.Metrics,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		audit:   auditor{publisher: publisher, log: log},
		metrics: m,
		log:     log,
	}
}

type RegisterInput struct {
	Name       string
	Email      string
	Password   string
	GymID      string
	Role       models.Role
	NationalID *string
	Phone      *string
	BirthDate  *time.Time
}

type AuthResult struct {
	Profile      models.Profile
	AccessToken  string
	RefreshToken string
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a member (or the given role) in a gym and signs them in.
// A duplicate email is reported as a conflict, which does reveal that the
// address is registered in that gym.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (result AuthResult, err error) {
	defer func() { s.metrics.ObserveAuth("register", err) }()

	input.Email = normalizeEmail(input.Email)
	input.Name = strings.TrimSpace(input.Name)
	input.GymID = strings.TrimSpace(input.GymID)
	if input.Email == "" || input.Password == "" || input.GymID == "" || input.Name == "" {
		return AuthResult{}, apperr.Invalid("name, email, password and gymId are required")
	}
	if input.Role == "" {
		input.Role = models.RoleMember
	}
	if !input.Role.Valid() {
		return AuthResult{}, apperr.Invalid("unknown role")
	}
	if input.NationalID != nil {
		trimmed := strings.TrimSpace(*input.NationalID)
		input.NationalID = &trimmed
		if trimmed == "" {
			input.NationalID = nil
		}
	}

	if _, err := s.users.FindByEmail(ctx, input.GymID, input.Email); err == nil {
		return AuthResult{}, apperr.Conflict(msgEmailTaken)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return AuthResult{}, apperr.Unexpected(err)
	}

	if input.NationalID != nil {
		if _, err := s.users.FindByNationalID(ctx, *input.NationalID); err == nil {
			return AuthResult{}, apperr.Conflict(msgNationalIDTaken)
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return AuthResult{}, apperr.Unexpected(err)
		}
	}

	digest, err := s.hasher.Hash(input.Password)
	if err != nil {
		return AuthResult{}, apperr.Unexpected(err)
	}

	now := time.Now().UTC()
	user := models.User{
		ID:           ids.New(),
		GymID:        input.GymID,
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: digest,
		Role:         input.Role,
		NationalID:   input.NationalID,
		Phone:        input.Phone,
		BirthDate:    input.BirthDate,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return AuthResult{}, conflictFrom(err)
		case errors.Is(err, repository.ErrUnknownGym):
			return AuthResult{}, apperr.NotFound("gym not found")
		}
		return AuthResult{}, apperr.Unexpected(err)
	}

	result, err = s.issuePair(user)
	if err != nil {
		return AuthResult{}, err
	}

	s.log.Info().Str("user_id", user.ID).Str("gym_id", user.GymID).Str("role", string(user.Role)).Msg("user registered")
	s.audit.record(ctx, models.EventUserRegistered, user.GymID, user.ID, map[string]string{"role": string(user.Role)})
	return result, nil
}

type LoginInput struct {
	Email    string
	Password string
	GymID    string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (result AuthResult, err error) {
	defer func() { s.metrics.ObserveAuth("login", err) }()

	email := normalizeEmail(input.Email)
	user, err := s.users.FindByEmail(ctx, strings.TrimSpace(input.GymID), email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			s.verifyDecoy(input.Password)
			return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
		}
		return AuthResult{}, apperr.Unexpected(err)
	}

	if !user.Active {
		s.audit.record(ctx, models.EventUserLoginFailed, user.GymID, user.ID, map[string]string{"reason": "inactive"})
		return AuthResult{}, inactive()
	}

	if !s.hasher.Verify(input.Password, user.PasswordHash) {
		s.audit.record(ctx, models.EventUserLoginFailed, user.GymID, user.ID, map[string]string{"reason": "password"})
		return AuthResult{}, apperr.Unauthorized(msgInvalidCredentials)
	}

	result, err = s.issuePair(user)
	if err != nil {
		return AuthResult{}, err
	}

	s.audit.record(ctx, models.EventUserLogin, user.GymID, user.ID, nil)
	return result, nil
}

// RefreshAccessToken mints a new access token from the live user record, so
// role and gym changes take effect on the next refresh. The refresh token
// itself is neither rotated nor revoked.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (token string, err error) {
	defer func() { s.metrics.ObserveAuth("refresh", err) }()

	if strings.TrimSpace(refreshToken) == "" {
		return "", apperr.Unauthorized("refresh token required")
	}
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", apperr.Unauthorized("invalid refresh token")
	}

	user, err := loadActive(ctx, s.users, claims.UserID())
	if err != nil {
		return "", err
	}

	token, err = s.tokens.IssueAccessToken(user.ID, user.GymID, user.Role)
	if err != nil {
		return "", apperr.Unexpected(err)
	}

	s.audit.record(ctx, models.EventTokenRefreshed, user.GymID, user.ID, nil)
	return token, nil
}

func (s *AuthService) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	user, err := loadActive(ctx, s.users, userID)
	if err != nil {
		return models.Profile{}, err
	}
	return user.Profile(), nil
}

// verifyDecoy runs one password verification against a throwaway digest so
// an unknown email takes as long as a wrong password.
func (s *AuthService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		digest, err := s.hasher.Hash(ids.New())
		if err != nil {
			s.log.Warn().Err(err).Msg("decoy digest unavailable")
			return
		}
		s.decoyDigest = digest
	})
	if s.decoyDigest != nil {
		s.hasher.Verify(password, s.decoyDigest)
	}
}

func (s *AuthService) issuePair(user models.User) (AuthResult, error) {
	access, err := s.tokens.IssueAccessToken(user.ID, user.GymID, user.Role)
	if err != nil {
		return AuthResult{}, apperr.Unexpected(err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return AuthResult{}, apperr.Unexpected(err)
	}
	return AuthResult{
		Profile:      user.Profile(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}
