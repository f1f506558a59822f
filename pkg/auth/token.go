package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/pkg/app"
	"github.com/phrazzld/apptest/pkg/config"
)

// MinSecretLength is the shortest signing secret NewTokenService accepts.
const MinSecretLength = 32

// DefaultClockSkew is the leeway allowed when validating time claims.
const DefaultClockSkew = 2 * time.Minute

// TokenService issues and validates bearer tokens for identities.
type TokenService interface {
	// GenerateToken creates a signed token for identity.
	GenerateToken(ctx context.Context, identity *app.Identity) (string, error)

	// ValidateToken checks the signature and time claims of token and
	// returns its claims.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// Claims are the validated contents of a token.
type Claims struct {
	Subject   string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string
}

// Identity converts the claims back into an identity carrying token.
func (c *Claims) Identity(token string) *app.Identity {
	return &app.Identity{ID: c.Subject, Roles: c.Roles, Token: token}
}

type tokenClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type hmacTokenService struct {
	signingKey []byte
	lifetime   time.Duration
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

var _ TokenService = (*hmacTokenService)(nil)

// TokenOption customizes NewTokenService.
type TokenOption func(*hmacTokenService)

// WithTimeFunc replaces the clock used for issuing and validating tokens.
func WithTimeFunc(fn func() time.Time) TokenOption {
	return func(s *hmacTokenService) { s.timeFunc = fn }
}

// WithClockSkew sets the leeway for time claims.
func WithClockSkew(d time.Duration) TokenOption {
	return func(s *hmacTokenService) { s.clockSkew = d }
}

// NewTokenService creates an HMAC-SHA256 token service from cfg.
func NewTokenService(cfg config.AuthConfig, opts ...TokenOption) (TokenService, error) {
	if len(cfg.JWTSecret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrSecretTooShort, MinSecretLength)
	}
	lifetime := time.Duration(cfg.TokenLifetimeMinutes) * time.Minute
	if lifetime <= 0 {
		lifetime = time.Duration(config.DefaultTokenLifetime) * time.Minute
	}

	s := &hmacTokenService{
		signingKey: []byte(cfg.JWTSecret),
		lifetime:   lifetime,
		timeFunc:   time.Now,
		clockSkew:  DefaultClockSkew,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *hmacTokenService) GenerateToken(ctx context.Context, identity *app.Identity) (string, error) {
	if identity == nil || identity.ID == "" {
		return "", fmt.Errorf("generate token: identity without id")
	}
	now := s.timeFunc()

	claims := tokenClaims{
		Roles: identity.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sign token",
			"error", err,
			"subject", identity.ID,
			"signing_method", jwt.SigningMethodHS256.Name)
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *hmacTokenService) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	parsed, err := jwt.ParseWithClaims(
		token,
		&tokenClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			log.Debug("token validation failed: expired", "error", err)
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			log.Debug("token validation failed: not yet valid", "error", err)
			return nil, ErrTokenNotYetValid
		default:
			log.Debug("token validation failed", "error", err, "error_type", fmt.Sprintf("%T", err))
			return nil, ErrInvalidToken
		}
	}

	tc, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid || tc.Subject == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		Subject: tc.Subject,
		Roles:   tc.Roles,
		ID:      tc.ID,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims, nil
}
