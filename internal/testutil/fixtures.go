package testutil

import (
	"testing"
	"time"

	"github.com/lucasfragadev/gym-dev/internal/config"
	"github.com/lucasfragadev/gym-dev/internal/models"
	"github.com/lucasfragadev/gym-dev/internal/security"
)

// FastArgon2 keeps hashing cheap in tests; the digest format is unchanged.
var FastArgon2 = security.Argon2Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func Hasher() *security.PasswordHasher {
	return security.NewPasswordHasher(FastArgon2)
}

func SecurityConfig() config.SecurityConfig {
	return config.SecurityConfig{
		JWTAccessSecret:  "test-access-secret",
		JWTRefreshSecret: "test-refresh-secret",
		JWTAccessTTL:     15 * time.Minute,
		JWTRefreshTTL:    7 * 24 * time.Hour,
		JWTIssuer:        "gym-dev-api",
		JWTAudience:      "gym-dev-clients",
		RefreshCookieTTL: 7 * 24 * time.Hour,
	}
}

// Clock is a settable time source for security.WithClock.
type Clock struct {
	T time.Time
}

func NewClock() *Clock {
	return &Clock{T: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

func Codec(t testing.TB, opts ...security.CodecOption) *security.TokenCodec {
	t.Helper()
	codec, err := security.NewTokenCodec(SecurityConfig(), opts...)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

// SeedUser stores an active user with the given password hashed by Hasher.
func SeedUser(t testing.TB, users *Users, id string, gymID string, email string, role models.Role, password string) models.User {
	t.Helper()
	digest, err := Hasher().Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	now := time.Now().UTC()
	user := models.User{
		ID:           id,
		GymID:        gymID,
		Name:         id,
		Email:        email,
		PasswordHash: digest,
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	users.Put(user)
	return user
}
