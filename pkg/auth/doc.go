// Package auth provides the authentication pieces test cases log in with:
// an HMAC JWT token service, a bcrypt password verifier, a user provider
// reading a database table, an app.Authenticator combining them, and
// middleware that validates bearer tokens for HTTP routes.
package auth
