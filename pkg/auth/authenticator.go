package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/pkg/app"
)

// PasswordAuthenticator checks credentials against a UserProvider and,
// when it has a TokenService, issues a bearer token for the identity.
type PasswordAuthenticator struct {
	users    UserProvider
	verifier PasswordVerifier
	tokens   TokenService
}

var _ app.Authenticator = (*PasswordAuthenticator)(nil)

// NewPasswordAuthenticator creates an authenticator. tokens may be nil.
func NewPasswordAuthenticator(users UserProvider, verifier PasswordVerifier, tokens TokenService) *PasswordAuthenticator {
	if verifier == nil {
		verifier = NewBcryptVerifier()
	}
	return &PasswordAuthenticator{users: users, verifier: verifier, tokens: tokens}
}

// Authenticate implements app.Authenticator. Unknown users and wrong
// passwords both fail with ErrInvalidCredentials.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, creds app.Credentials) (*app.Identity, error) {
	log := logger.FromContext(ctx)

	rec, err := a.users.FindByUsername(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			log.Debug("authentication failed: unknown user", "username", creds.Username)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := a.verifier.Compare(rec.PasswordHash, creds.Password); err != nil {
		log.Debug("authentication failed: password mismatch", "username", creds.Username)
		return nil, ErrInvalidCredentials
	}

	identity := &app.Identity{ID: rec.ID, Roles: rec.Roles, Data: rec.Data}
	if a.tokens != nil {
		token, err := a.tokens.GenerateToken(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("issue token for %q: %w", creds.Username, err)
		}
		identity.Token = token
	}
	return identity, nil
}
