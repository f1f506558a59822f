package app_test

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/apptest/pkg/app"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringer struct{}

func (stringer) String() string { return "from stringer" }

type failingWriterTo struct{}

func (failingWriterTo) WriteTo(io.Writer) (int64, error) { return 0, errors.New("template failed") }

func TestTextResponse_Body(t *testing.T) {
	tests := []struct {
		name     string
		source   any
		expected string
	}{
		{"nil", nil, ""},
		{"string", "<p>hi</p>", "<p>hi</p>"},
		{"bytes", []byte("raw"), "raw"},
		{"stringer", stringer{}, "from stringer"},
		{"writer to", bytes.NewBufferString("buffered"), "buffered"},
		{"other", 42, "42"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, err := (&app.TextResponse{Source: tc.source}).Body()
			require.NoError(t, err)
			assert.Equal(t, tc.expected, body)
		})
	}

	_, err := (&app.TextResponse{Source: failingWriterTo{}}).Body()
	assert.Error(t, err)
}

func TestResponses_Send(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	require.NoError(t, (&app.TextResponse{Source: "hello"}).Send(rec, req))
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	require.NoError(t, (&app.RedirectResponse{URL: "/login"}).Send(rec, req))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	require.NoError(t, (&app.JSONResponse{Payload: map[string]int{"n": 1}}).Send(rec, req))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestJSONResponse_Decode(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, (&app.JSONResponse{Payload: []byte(`{"name":"ann"}`)}).Decode(&out))
	assert.Equal(t, "ann", out.Name)

	require.NoError(t, (&app.JSONResponse{Payload: map[string]string{"name": "bob"}}).Decode(&out))
	assert.Equal(t, "bob", out.Name)

	_, err := (&app.JSONResponse{Payload: func() {}}).Bytes()
	assert.Error(t, err)
}

func TestRequest(t *testing.T) {
	params := map[string]any{"id": 3}
	req := app.NewRequest("Home", app.MethodGet, params, nil, nil)
	params["id"] = 4

	assert.Equal(t, 3, req.Param("id"), "params are copied")
	assert.Nil(t, req.Param("missing"))
	assert.Equal(t, app.DefaultAction, req.Action())
	assert.True(t, req.IsMethod(app.MethodGet))

	req.Params[app.ActionKey] = "detail"
	assert.Equal(t, "detail", req.Action())
}

func TestUser(t *testing.T) {
	var u app.User
	assert.False(t, u.IsLoggedIn())
	assert.False(t, u.IsInRole("admin"))

	u.Login(&app.Identity{ID: "1", Roles: []string{"admin"}})
	assert.True(t, u.IsLoggedIn())
	assert.True(t, u.IsInRole("admin"))
	assert.Equal(t, "1", u.Identity().ID)

	u.Logout()
	assert.False(t, u.IsLoggedIn())
	assert.Nil(t, u.Identity())
}
