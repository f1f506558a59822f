package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/internal/redact"
	"github.com/phrazzld/apptest/pkg/app"
)

// Middleware authenticates HTTP requests by bearer token.
type Middleware struct {
	tokens TokenService
}

// NewMiddleware creates a Middleware validating tokens with tokens.
func NewMiddleware(tokens TokenService) *Middleware {
	return &Middleware{tokens: tokens}
}

// Authenticate validates the bearer token in the Authorization header and
// stores the identity it names in the request context. A request whose
// context already carries an identity passes through unchanged.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := app.IdentityFromContext(r.Context()); ok && r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := m.tokens.ValidateToken(r.Context(), parts[1])
		if err != nil {
			switch {
			case errors.Is(err, ErrExpiredToken):
				http.Error(w, "Token expired", http.StatusUnauthorized)
			case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenNotYetValid), errors.Is(err, ErrMissingToken):
				http.Error(w, "Invalid token", http.StatusUnauthorized)
			default:
				logger.FromContext(r.Context()).Error("failed to validate token", "error", redact.Error(err))
				http.Error(w, "Authentication error", http.StatusInternalServerError)
			}
			return
		}

		ctx := app.WithIdentity(r.Context(), claims.Identity(parts[1]))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose identity lacks role with 403. It must
// run after Authenticate.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := app.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if !id.IsInRole(role) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
