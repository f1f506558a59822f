package app

import "context"

// Credentials is a username and password pair.
type Credentials struct {
	Username string
	Password string
}

// Authenticator turns credentials into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, creds Credentials) (*Identity, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	return f(ctx, creds)
}
