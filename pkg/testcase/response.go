package testcase

import (
	"testing"

	"github.com/phrazzld/apptest/pkg/app"
	"github.com/stretchr/testify/require"
)

// Response wraps the outcome of one simulated request.
type Response struct {
	t       testing.TB
	outcome app.Response

	html   string
	cached bool
}

// NewResponse wraps outcome.
func NewResponse(t testing.TB, outcome app.Response) *Response {
	return &Response{t: t, outcome: outcome}
}

// AppResponse returns the wrapped outcome.
func (r *Response) AppResponse() app.Response { return r.outcome }

// AssertTextResponse fails the test unless the outcome is a text response.
func (r *Response) AssertTextResponse() *Response {
	r.t.Helper()
	require.IsType(r.t, &app.TextResponse{}, r.outcome)
	return r
}

// AssertRedirectResponse fails the test unless the outcome is a redirect.
func (r *Response) AssertRedirectResponse() *Response {
	r.t.Helper()
	require.IsType(r.t, &app.RedirectResponse{}, r.outcome)
	return r
}

// AssertJSONResponse fails the test unless the outcome is a JSON response.
func (r *Response) AssertJSONResponse() *Response {
	r.t.Helper()
	require.IsType(r.t, &app.JSONResponse{}, r.outcome)
	return r
}

// AssertRedirectTo fails the test unless the outcome redirects to url.
func (r *Response) AssertRedirectTo(url string) *Response {
	r.t.Helper()
	redirect, ok := r.outcome.(*app.RedirectResponse)
	if !ok {
		require.Failf(r.t, "not a redirect", "outcome is %T", r.outcome)
		return r
	}
	require.Equal(r.t, url, redirect.URL)
	return r
}

// HTML returns the body of a text response. It fails the test for any
// other outcome. The body is rendered once and cached.
func (r *Response) HTML() string {
	r.t.Helper()
	if r.cached {
		return r.html
	}
	text, ok := r.outcome.(*app.TextResponse)
	if !ok {
		require.Failf(r.t, "not a text response", "outcome is %T", r.outcome)
		return ""
	}
	body, err := text.Body()
	require.NoError(r.t, err)
	r.html, r.cached = body, true
	return r.html
}

// AssertContains fails the test unless the text body contains s.
func (r *Response) AssertContains(s string) *Response {
	r.t.Helper()
	if html := r.HTML(); r.cached {
		require.Contains(r.t, html, s)
	}
	return r
}

// JSON decodes the payload of a JSON response into v.
func (r *Response) JSON(v any) *Response {
	r.t.Helper()
	jr, ok := r.outcome.(*app.JSONResponse)
	if !ok {
		require.Failf(r.t, "not a JSON response", "outcome is %T", r.outcome)
		return r
	}
	require.NoError(r.t, jr.Decode(v))
	return r
}
