package testcase_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/apptest/internal/testdb"
	"github.com/phrazzld/apptest/pkg/app"
	"github.com/phrazzld/apptest/pkg/auth"
	"github.com/phrazzld/apptest/pkg/config"
	"github.com/phrazzld/apptest/pkg/container"
	"github.com/phrazzld/apptest/pkg/database"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	migrationsDir = "testdata/migrations"
	seedsDir      = "testdata/seeds"
	jwtSecret     = "test-jwt-secret-that-is-32-chars-long"
)

// Mailer is an application service the tests replace with doubles.
type Mailer interface {
	Send(to, subject string) error
}

type logMailer struct{}

func (logMailer) Send(string, string) error { return nil }

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(to, subject string) error {
	return m.Called(to, subject).Error(0)
}

type mockAuthenticator struct {
	mock.Mock
}

func (m *mockAuthenticator) Authenticate(ctx context.Context, creds app.Credentials) (*app.Identity, error) {
	args := m.Called(ctx, creds)
	id, _ := args.Get(0).(*app.Identity)
	return id, args.Error(1)
}

// spyT records failures instead of stopping the test, so tests can check
// that an assertion fails.
type spyT struct {
	testing.TB
	failed   bool
	messages []string
}

func (s *spyT) Helper() {}

func (s *spyT) Errorf(format string, args ...any) {
	s.failed = true
	s.messages = append(s.messages, fmt.Sprintf(format, args...))
}

func (s *spyT) Fail()    { s.failed = true }
func (s *spyT) FailNow() { s.failed = true }

func (s *spyT) reset() {
	s.failed = false
	s.messages = nil
}

// newApp wires the application under test: a real SQLite connection, a
// mailer, JWT auth and two presenters.
func newApp(t *testing.T) (*container.Container, *database.Conn) {
	t.Helper()
	ctx := context.Background()

	conn := database.NewConn("sqlite", testdb.MemoryDSN, nil)
	require.NoError(t, conn.Connect(ctx))
	t.Cleanup(func() { require.NoError(t, conn.Close()) })

	tokens, err := auth.NewTokenService(config.AuthConfig{JWTSecret: jwtSecret, TokenLifetimeMinutes: 5})
	require.NoError(t, err)

	c := container.New()
	require.NoError(t, container.Register[database.Connection](c, config.DefaultConnectionService, conn))
	require.NoError(t, container.Register[Mailer](c, "mailer", logMailer{}))
	require.NoError(t, container.Register[auth.TokenService](c, "auth.tokens", tokens))

	factory := app.NewFactory(c)
	factory.Register("HomePresenter", homePresenter)
	factory.Register("UsersPresenter", usersPresenter)
	require.NoError(t, container.Register[app.PresenterFactory](c, "application.presenterFactory", factory))
	return c, conn
}

// registerPasswordAuth adds an authenticator reading the users table. It
// is built on first use, so it reads through whatever connection the
// container holds by then.
func registerPasswordAuth(t *testing.T, c *container.Container) {
	t.Helper()
	require.NoError(t, container.RegisterFactory(c, "auth.authenticator", func(c *container.Container) (app.Authenticator, error) {
		conn, err := container.Resolve[database.Connection](c)
		if err != nil {
			return nil, err
		}
		tokens, err := container.Resolve[auth.TokenService](c)
		if err != nil {
			return nil, err
		}
		return auth.NewPasswordAuthenticator(auth.NewTableUserProvider(conn), nil, tokens), nil
	}))
}

func homePresenter(*container.Container) (app.Presenter, error) {
	return app.NewActionPresenter("home", map[string]app.ActionFunc{
		"default": func(_ context.Context, _ *app.Request, user *app.User) (app.Response, error) {
			name := "guest"
			if user.IsLoggedIn() {
				name = user.Identity().ID
			}
			return &app.TextResponse{Source: "<h1>Welcome " + name + "</h1>"}, nil
		},
		"profile": func(_ context.Context, _ *app.Request, user *app.User) (app.Response, error) {
			if !user.IsLoggedIn() {
				return &app.RedirectResponse{URL: "/sign/in"}, nil
			}
			return &app.JSONResponse{Payload: map[string]any{
				"id":    user.Identity().ID,
				"admin": user.IsInRole("admin"),
			}}, nil
		},
		"showDetail": func(_ context.Context, req *app.Request, _ *app.User) (app.Response, error) {
			return &app.TextResponse{Source: fmt.Sprintf("detail %v", req.Param("id"))}, nil
		},
	}), nil
}

func usersPresenter(c *container.Container) (app.Presenter, error) {
	conn, err := container.Resolve[database.Connection](c)
	if err != nil {
		return nil, err
	}
	mailer, err := container.Resolve[Mailer](c)
	if err != nil {
		return nil, err
	}
	tokens, err := container.Resolve[auth.TokenService](c)
	if err != nil {
		return nil, err
	}

	return app.NewRouterPresenter("/users", func(r chi.Router) {
		r.Get("/users", func(w http.ResponseWriter, r *http.Request) {
			rows, err := conn.Table("users").Order("username").FetchAll(r.Context())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			names := make([]string, 0, len(rows))
			for _, row := range rows {
				v, _ := row.Get("username")
				names = append(names, fmt.Sprint(v))
			}
			_ = (&app.JSONResponse{Payload: names}).Send(w, r)
		})

		r.Post("/users/create", func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			username, email := r.PostForm.Get("username"), r.PostForm.Get("email")
			if username == "" || email == "" {
				http.Error(w, "username and email are required", http.StatusUnprocessableEntity)
				return
			}
			hash, err := auth.HashPassword(r.PostForm.Get("password"), bcrypt.MinCost)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if _, err := conn.Table("users").Insert(r.Context(), map[string]any{
				"username": username,
				"email":    email,
				"password": hash,
			}); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err := mailer.Send(email, "Welcome"); err != nil {
				http.Error(w, err.Error(), http.StatusBadGateway)
				return
			}
			http.Redirect(w, r, "/users", http.StatusFound)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.NewMiddleware(tokens).Authenticate)
			r.Get("/users/me", func(w http.ResponseWriter, r *http.Request) {
				id, _ := app.IdentityFromContext(r.Context())
				_ = (&app.JSONResponse{Payload: map[string]any{
					"id":     id.ID,
					"bearer": r.Header.Get("Authorization") != "",
				}}).Send(w, r)
			})
		})
	}), nil
}
