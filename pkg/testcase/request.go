package testcase

import (
	"fmt"
	"maps"

	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/pkg/app"
	"github.com/phrazzld/apptest/pkg/container"
	"github.com/stretchr/testify/require"
)

// LogAs records credentials for the requests that follow. It does not
// authenticate by itself.
func (c *Case) LogAs(username, password string) *Case {
	c.credentials = &app.Credentials{Username: username, Password: password}
	return c
}

// LogOut drops the credentials recorded by LogAs.
func (c *Case) LogOut() *Case {
	c.credentials = nil
	return c
}

// Authenticator returns the authenticator set with WithAuthenticator, or
// else the only app.Authenticator registered in the container. Several
// registered authenticators are reported as container.ErrAmbiguousService.
func (c *Case) Authenticator() (app.Authenticator, error) {
	if c.authenticator != nil {
		return c.authenticator, nil
	}
	if len(container.FindByType[app.Authenticator](c.container)) == 0 {
		return nil, ErrAuthenticatorNotSet
	}
	return container.Resolve[app.Authenticator](c.container)
}

// Get runs action of presenter as a GET request.
func (c *Case) Get(presenter, action string, params map[string]any) *Response {
	c.t.Helper()
	res, err := c.Dispatch(presenter, action, app.MethodGet, params, nil, nil)
	require.NoError(c.t, err)
	return res
}

// Post runs action of presenter as a POST request with form data and
// uploaded files.
func (c *Case) Post(presenter, action string, params, post map[string]any, files map[string]app.FileUpload) *Response {
	c.t.Helper()
	res, err := c.Dispatch(presenter, action, app.MethodPost, params, post, files)
	require.NoError(c.t, err)
	return res
}

// Dispatch is Get and Post without failing the test, for tests that expect
// the presenter to fail (e.g. with *app.HTTPError).
//
// The presenter factory is resolved from the container and the presenter
// is created per request, with auto canonicalization off. Credentials from
// LogAs are authenticated before the request runs and the identity is
// logged into the presenter's user.
func (c *Case) Dispatch(presenter, action, method string, params, post map[string]any, files map[string]app.FileUpload) (*Response, error) {
	c.t.Helper()

	factory, err := container.Resolve[app.PresenterFactory](c.container)
	if err != nil {
		return nil, err
	}
	name := factory.Unformat(presenter)
	p, err := factory.CreatePresenter(name)
	if err != nil {
		return nil, err
	}
	p.SetAutoCanonicalize(false)

	if c.credentials != nil {
		auth, err := c.Authenticator()
		if err != nil {
			return nil, err
		}
		identity, err := auth.Authenticate(c.ctx, *c.credentials)
		if err != nil {
			return nil, fmt.Errorf("log in as %q: %w", c.credentials.Username, err)
		}
		p.User().Login(identity)
	}

	// Parameters win over the action argument.
	merged := map[string]any{app.ActionKey: action}
	maps.Copy(merged, params)
	req := app.NewRequest(name, method, merged, post, files)

	logger.FromContext(c.ctx).Debug("dispatching request",
		"presenter", name,
		"action", req.Action(),
		"method", method,
		"logged_in", p.User().IsLoggedIn())

	outcome, err := p.Run(c.ctx, req)
	if err != nil {
		return nil, err
	}
	return NewResponse(c.t, outcome), nil
}
