package auth

import "errors"

var (
	// ErrInvalidToken indicates the token format is invalid or its signature doesn't match.
	ErrInvalidToken = errors.New("invalid authentication token")

	// ErrExpiredToken indicates the token has expired.
	ErrExpiredToken = errors.New("authentication token has expired")

	// ErrTokenNotYetValid indicates the token is not yet valid.
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")

	// ErrMissingToken indicates a token was expected but not provided.
	ErrMissingToken = errors.New("authentication token is missing")

	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound is returned by a UserProvider for unknown usernames.
	ErrUserNotFound = errors.New("user not found")

	// ErrSecretTooShort is returned for signing secrets under MinSecretLength.
	ErrSecretTooShort = errors.New("jwt secret is too short")
)
