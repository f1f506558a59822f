package app

import (
	"context"
	"slices"
)

// Identity is an authenticated principal.
type Identity struct {
	ID    string
	Roles []string
	Data  map[string]any
	// Token is a bearer token for the identity, if the authenticator issued
	// one. HandlerPresenter forwards it in the Authorization header.
	Token string
}

// IsInRole reports whether the identity has role.
func (i *Identity) IsInRole(role string) bool {
	return i != nil && slices.Contains(i.Roles, role)
}

// User is the session of one presenter.
type User struct {
	identity *Identity
}

// Login makes identity the logged in identity.
func (u *User) Login(identity *Identity) {
	u.identity = identity
}

// Logout forgets the identity.
func (u *User) Logout() {
	u.identity = nil
}

// IsLoggedIn reports whether an identity is logged in.
func (u *User) IsLoggedIn() bool {
	return u.identity != nil
}

// Identity returns the logged in identity, or nil.
func (u *User) Identity() *Identity {
	return u.identity
}

// IsInRole reports whether the logged in identity has role.
func (u *User) IsInRole(role string) bool {
	return u.identity.IsInRole(role)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
