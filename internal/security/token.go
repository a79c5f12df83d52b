package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lucasfragadev/gym-dev/internal/config"
	"github.com/lucasfragadev/gym-dev/internal/models"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// refreshAudienceSuffix binds refresh tokens to their own audience so a
// token of one class never verifies as the other, whatever the secrets.
const refreshAudienceSuffix = ":refresh"

// AccessClaims identify the caller for every protected request.
type AccessClaims struct {
	GymID string      `json:"gym_id"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c AccessClaims) UserID() string { return c.Subject }

// RefreshClaims carry only the subject.
type RefreshClaims struct {
	jwt.RegisteredClaims
}

func (c RefreshClaims) UserID() string { return c.Subject }

// UnverifiedClaims is what DecodeUnsafe can recover from either token class.
// Nothing in it has been checked.
type UnverifiedClaims struct {
	GymID string `json:"gym_id,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type TokenCodec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	audience      string
	now           func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock replaces the time source used for issuing and verifying.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec fails when either signing secret is missing or both are
// the same.
func NewTokenCodec(cfg config.SecurityConfig, opts ...CodecOption) (*TokenCodec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &TokenCodec{
		accessSecret:  []byte(cfg.JWTAccessSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.JWTAccessTTL,
		refreshTTL:    cfg.JWTRefreshTTL,
		issuer:        cfg.JWTIssuer,
		audience:      cfg.JWTAudience,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *TokenCodec) AccessTTL() time.Duration { return c.accessTTL }

func (c *TokenCodec) IssueAccessToken(userID string, gymID string, role models.Role) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("issue access token: subject required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("issue access token: invalid role %q", role)
	}
	claims := AccessClaims{
		GymID:            gymID,
		Role:             role,
		RegisteredClaims: c.registered(userID, c.audience, c.accessTTL),
	}
	return c.sign(claims, c.accessSecret)
}

func (c *TokenCodec) IssueRefreshToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("issue refresh token: subject required")
	}
	claims := RefreshClaims{RegisteredClaims: c.registered(userID, c.refreshAudience(), c.refreshTTL)}
	return c.sign(claims, c.refreshSecret)
}

func (c *TokenCodec) VerifyAccessToken(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := c.parse(token, &claims, c.accessSecret, c.audience); err != nil {
		return AccessClaims{}, err
	}
	if !claims.Role.Valid() {
		return AccessClaims{}, ErrTokenInvalid
	}
	return claims, nil
}

func (c *TokenCodec) VerifyRefreshToken(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := c.parse(token, &claims, c.refreshSecret, c.refreshAudience()); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

// DecodeUnsafe reads claims without checking signature or expiry. It is for
// logging and diagnostics only; never authorize on its output.
func (c *TokenCodec) DecodeUnsafe(token string) *UnverifiedClaims {
	claims := &UnverifiedClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return nil
	}
	return claims
}

func (c *TokenCodec) refreshAudience() string { return c.audience + refreshAudienceSuffix }

func (c *TokenCodec) registered(subject string, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := c.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    c.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (c *TokenCodec) sign(claims jwt.Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

func (c *TokenCodec) parse(token string, claims jwt.Claims, secret []byte, audience string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenInvalid
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	)

	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return ErrTokenInvalid
	}
	return nil
}
