package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"
)

var (
	// ErrPresenterNotFound is returned by a factory for unknown names.
	ErrPresenterNotFound = errors.New("presenter not found")

	// ErrActionNotFound is returned when a presenter has no such action.
	ErrActionNotFound = errors.New("action not found")
)

// Presenter handles requests for one named unit of the application.
type Presenter interface {
	Run(ctx context.Context, req *Request) (Response, error)
	User() *User
	SetAutoCanonicalize(enabled bool)
}

// Base carries the state every presenter shares. Embed it to get User and
// SetAutoCanonicalize. Auto canonicalization is on by default.
type Base struct {
	user               User
	noAutoCanonicalize bool
}

// User returns the presenter's session.
func (b *Base) User() *User { return &b.user }

// SetAutoCanonicalize enables or disables redirects to the canonical
// action spelling.
func (b *Base) SetAutoCanonicalize(enabled bool) { b.noAutoCanonicalize = !enabled }

// AutoCanonicalize reports whether auto canonicalization is on.
func (b *Base) AutoCanonicalize() bool { return !b.noAutoCanonicalize }

// canonicalRedirect returns the redirect to the canonical spelling of the
// request's action, or nil when no redirect applies.
func (b *Base) canonicalRedirect(prefix string, req *Request) *RedirectResponse {
	action := req.Action()
	canonical := CanonicalAction(action)
	if !b.AutoCanonicalize() || !req.IsMethod(MethodGet) || action == canonical {
		return nil
	}
	return &RedirectResponse{URL: ActionPath(prefix, action), Code: http.StatusMovedPermanently}
}

// CanonicalAction returns the canonical spelling of an action: camel case
// becomes lower-case kebab case ("showDetail" → "show-detail").
func CanonicalAction(action string) string {
	var b strings.Builder
	for i, r := range action {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ActionPath returns the URL path of action under prefix. The default
// action is the prefix itself.
func ActionPath(prefix, action string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	canonical := CanonicalAction(action)
	if canonical == DefaultAction || canonical == "" {
		return prefix
	}
	if prefix == "/" {
		return "/" + canonical
	}
	return prefix + "/" + canonical
}

// HTTPError is returned by presenters for requests the application
// answered with a 4xx or 5xx status.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("presenter responded with status %d", e.Status)
	}
	return fmt.Sprintf("presenter responded with status %d: %s", e.Status, body)
}
