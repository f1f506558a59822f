package testcase_test

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/phrazzld/apptest/internal/fixtures"
	"github.com/phrazzld/apptest/pkg/app"
	"github.com/phrazzld/apptest/pkg/config"
	"github.com/phrazzld/apptest/pkg/container"
	"github.com/phrazzld/apptest/pkg/database"
	"github.com/phrazzld/apptest/pkg/migrate"
	"github.com/phrazzld/apptest/pkg/testcase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMigrate_SwapsConnectionForShim(t *testing.T) {
	c, conn := newApp(t)
	ctx := context.Background()
	original, err := conn.Handle(ctx)
	require.NoError(t, err)

	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()

	swapped, err := container.Get[database.Connection](c, config.DefaultConnectionService)
	require.NoError(t, err)
	fake, ok := swapped.(*database.FakeConn)
	require.True(t, ok, "connection service is %T", swapped)
	assert.Same(t, tc.Shim(), fake)
	assert.Equal(t, testcase.ShimDSN, fake.DSN())
	assert.Equal(t, testcase.ShimUser, fake.User())

	handle, err := fake.Handle(ctx)
	require.NoError(t, err)
	assert.Same(t, original.(*sql.DB), handle.(*sql.DB))
}

func TestMigrate_AppliesSchemaWithAliasedTypes(t *testing.T) {
	c, conn := newApp(t)
	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()
	ctx := context.Background()

	id, err := tc.Connection().Table("users").Insert(ctx, map[string]any{
		"username": "ann",
		"email":    "ann@example.com",
		"password": "x",
		"role":     "admin",
		"balance":  12.75,
	})
	require.NoError(t, err)
	_, err = tc.Connection().Table("posts").Insert(ctx, map[string]any{"user_id": id, "title": "Hello"})
	require.NoError(t, err)

	// The application connection sees the same database.
	balance, err := conn.FetchField(ctx, "SELECT balance FROM users WHERE username = ?", "ann")
	require.NoError(t, err)
	assert.InDelta(t, 12.75, balance, 0.001)

	status, err := conn.FetchField(ctx, "SELECT status FROM posts WHERE title = ?", "Hello")
	require.NoError(t, err)
	assert.Equal(t, "draft", status)

	version, err := tc.Migrator().Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestMigrate_ResolvesUniqueConnectionByType(t *testing.T) {
	c, _ := newApp(t)
	cfg := config.Default()
	cfg.Database.ConnectionService = "db.main"

	tc := testcase.New(t, c, testcase.WithConfig(cfg), testcase.WithMigrationPaths(migrationsDir)).Migrate()

	svc, err := c.GetService(config.DefaultConnectionService)
	require.NoError(t, err)
	assert.IsType(t, &database.FakeConn{}, svc)
	tc.AssertDatabaseEmpty("users")
}

func TestMigrate_IsIdempotent(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir))

	tc.Migrate()
	shim := tc.Shim()
	tc.Migrate()
	assert.Same(t, shim, tc.Shim())
}

func TestSeed(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c,
		testcase.WithMigrationPaths(migrationsDir),
		testcase.WithSeedPath(seedsDir),
		testcase.WithSeeder("posts", func(ctx context.Context, db *sql.DB) error {
			_, err := db.ExecContext(ctx,
				"INSERT INTO posts (user_id, title, status) SELECT id, 'Admin post', 'published' FROM users WHERE username = 'admin'")
			return err
		}),
	).Migrate()

	tc.Seed("users").
		AssertDatabaseCount("users", 2, nil).
		AssertDatabaseHas("users", map[string]any{"username": "admin", "role": "admin"})

	tc.Seed("posts").
		AssertDatabaseHas("posts", map[string]any{"title": "Admin post", "status": "published"})

	err := tc.Migrator().Seed(tc.Context(), tc.Config().Migrations.Environment, "missing")
	assert.ErrorIs(t, err, migrate.ErrSeederNotFound)
}

func TestAssertDatabase(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()
	spy := &spyT{TB: t}
	watched := testcase.New(spy, c)

	watched.AssertDatabaseCount("users", 0, nil)
	watched.AssertDatabaseEmpty("users")
	watched.AssertDatabaseMissing("users", map[string]any{"username": "ann"})
	require.False(t, spy.failed, "assertions on an empty table: %v", spy.messages)

	ann := fixtures.InsertUser(t, tc.Connection(), fixtures.NewUser(t, fixtures.WithUsername("ann")))

	watched.AssertDatabaseCount("users", 0, nil)
	assert.True(t, spy.failed, "count 0 must fail on a non-empty table")
	spy.reset()

	watched.AssertDatabaseEmpty("users")
	assert.True(t, spy.failed)
	spy.reset()

	watched.AssertDatabaseHas("users", map[string]any{"username": "bob"})
	assert.True(t, spy.failed, "no row matches bob")
	spy.reset()

	watched.AssertDatabaseMissing("users", map[string]any{"username": "ann"})
	assert.True(t, spy.failed)
	spy.reset()

	watched.
		AssertDatabaseCount("users", 1, nil).
		AssertDatabaseHas("users", map[string]any{"username": "ann", "email": ann.Email}).
		AssertDatabaseHas("users", map[string]any{"username": []string{"bob", "ann"}}).
		AssertDatabaseMissing("users", map[string]any{"username": "ann", "role": "admin"})
	assert.False(t, spy.failed, "%v", spy.messages)
}

func TestMock_ReplacesServiceInContainer(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c)

	double := &mockMailer{}
	double.On("Send", "ann@example.com", "Welcome").Return(nil).Once()

	got := testcase.Mock[Mailer](tc, double)
	assert.Same(t, double, got)

	resolved := testcase.GetByType[Mailer](tc)
	assert.Same(t, double, resolved)
	require.NoError(t, resolved.Send("ann@example.com", "Welcome"))
}

func TestSwap_NotFoundLeavesContainerUntouched(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c)

	type unregistered interface{ Nothing() }
	before := c.Names()
	mailer, err := c.GetService("mailer")
	require.NoError(t, err)

	_, err = testcase.Swap[unregistered](tc, nil)
	assert.ErrorIs(t, err, container.ErrServiceNotFound)

	assert.Equal(t, before, c.Names())
	after, err := c.GetService("mailer")
	require.NoError(t, err)
	assert.Equal(t, mailer, after)
}

func TestSwap_AmbiguousType(t *testing.T) {
	c, _ := newApp(t)
	require.NoError(t, container.Register[Mailer](c, "mailer.backup", logMailer{}))
	tc := testcase.New(t, c)

	_, err := testcase.Swap[Mailer](tc, &mockMailer{})
	assert.ErrorIs(t, err, container.ErrAmbiguousService)

	svc, err := c.GetService("mailer")
	require.NoError(t, err)
	assert.Equal(t, logMailer{}, svc)
}

func TestMock_DoubleUsedByPresenter(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()

	mailer := testcase.Mock[Mailer](tc, &mockMailer{}).(*mockMailer)
	mailer.On("Send", "ann@example.com", "Welcome").Return(nil).Once()

	tc.Post("Users", "create", nil, map[string]any{
		"username": "ann",
		"email":    "ann@example.com",
		"password": "secret",
	}, nil).AssertRedirectTo("/users")

	tc.AssertDatabaseHas("users", map[string]any{"username": "ann"})

	var names []string
	tc.Get("Users", "default", nil).AssertJSONResponse().JSON(&names)
	assert.Equal(t, []string{"ann"}, names)
}

func TestLogAs_AuthenticatesWithSuppliedCredentials(t *testing.T) {
	c, _ := newApp(t)
	authenticator := &mockAuthenticator{}
	authenticator.
		On("Authenticate", mock.Anything, app.Credentials{Username: "ann", Password: "pw"}).
		Return(&app.Identity{ID: "ann", Roles: []string{"admin"}}, nil).
		Once()
	tc := testcase.New(t, c, testcase.WithAuthenticator(authenticator))

	tc.Get("Home", "default", nil).AssertContains("Welcome guest")
	authenticator.AssertNotCalled(t, "Authenticate", mock.Anything, mock.Anything)

	var profile map[string]any
	tc.LogAs("ann", "pw").Get("Home", "profile", nil).JSON(&profile)
	assert.Equal(t, map[string]any{"id": "ann", "admin": true}, profile)
	authenticator.AssertExpectations(t)
}

func TestLogAs_AuthenticatorNotSet(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c).LogAs("ann", "pw")

	_, err := tc.Authenticator()
	assert.ErrorIs(t, err, testcase.ErrAuthenticatorNotSet)

	_, err = tc.Dispatch("Home", "default", app.MethodGet, nil, nil, nil)
	assert.ErrorIs(t, err, testcase.ErrAuthenticatorNotSet)
}

func TestLogAs_FailedLogin(t *testing.T) {
	c, _ := newApp(t)
	authenticator := &mockAuthenticator{}
	denied := errors.New("denied")
	authenticator.On("Authenticate", mock.Anything, mock.Anything).Return(nil, denied)
	tc := testcase.New(t, c, testcase.WithAuthenticator(authenticator)).LogAs("ann", "wrong")

	_, err := tc.Dispatch("Home", "default", app.MethodGet, nil, nil, nil)
	assert.ErrorIs(t, err, denied)
}

func TestLogAs_PasswordAuthenticatorFromContainer(t *testing.T) {
	c, _ := newApp(t)
	registerPasswordAuth(t, c)
	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()

	user := fixtures.InsertUser(t, tc.Connection(), fixtures.NewUser(t, fixtures.WithPassword("open sesame")))

	var me map[string]any
	tc.LogAs(user.Username, "open sesame").Get("Users", "me", nil).JSON(&me)
	assert.Equal(t, true, me["bearer"])
	assert.NotEmpty(t, me["id"])

	_, err := tc.LogOut().Dispatch("Users", "me", app.MethodGet, nil, nil, nil)
	var httpErr *app.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 401, httpErr.Status)
}

func TestGet_DisablesCanonicalization(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c)

	tc.Get("HomePresenter", "showDetail", map[string]any{"id": 7}).
		AssertTextResponse().
		AssertContains("detail 7")
}

func TestGet_UnknownPresenter(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c)

	_, err := tc.Dispatch("Missing", "default", app.MethodGet, nil, nil, nil)
	assert.ErrorIs(t, err, app.ErrPresenterNotFound)
}

func TestPost_ValidationError(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()

	_, err := tc.Dispatch("Users", "create", app.MethodPost, nil, map[string]any{"username": "ann"}, nil)
	var httpErr *app.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 422, httpErr.Status)
	tc.AssertDatabaseEmpty("users")
}

func TestMigrate_RunsInsideOpenTransaction(t *testing.T) {
	c, conn := newApp(t)
	ctx := context.Background()
	require.NoError(t, conn.Begin(ctx))

	tc := testcase.New(t, c, testcase.WithMigrationPaths(migrationsDir)).Migrate()
	tc.AssertDatabaseEmpty("users")

	_, err := tc.Connection().Table("users").Insert(ctx, map[string]any{
		"username": "ann",
		"email":    "ann@example.com",
		"password": "x",
	})
	require.NoError(t, err)

	n, err := conn.FetchField(ctx, "SELECT COUNT(*) FROM users")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "the application transaction sees the shim's writes")

	require.NoError(t, conn.Rollback(ctx))
	tables, err := conn.FetchField(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'users'")
	require.NoError(t, err)
	assert.EqualValues(t, 0, tables, "migrations are rolled back with the transaction")
}

func TestMigrate_OpensConfiguredDatabaseWhenContainerHasNone(t *testing.T) {
	c := container.New()
	tc := testcase.New(t, c,
		testcase.WithConfig(config.Default()),
		testcase.WithMigrationPaths(migrationsDir),
		testcase.WithSeedPath(seedsDir),
	).Migrate().Seed("users")

	tc.AssertDatabaseCount("users", 2, nil)

	svc, err := c.GetService(config.DefaultConnectionService)
	require.NoError(t, err)
	assert.Same(t, tc.Shim(), svc)
}

func TestNew_LoadsConfigurationFromEnvironment(t *testing.T) {
	t.Setenv("APPTEST_MIGRATIONS_TABLE", "goose_versions")
	t.Setenv("APPTEST_MIGRATIONS_SEED_PATH", "db/seeds")
	t.Setenv("APPTEST_LOG_LEVEL", "debug")

	tc := testcase.New(t, container.New(), testcase.WithSeedPath(seedsDir))

	cfg := tc.Config()
	assert.Equal(t, "goose_versions", cfg.Migrations.Table)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, seedsDir, cfg.Migrations.SeedPath, "options apply on top of the loaded configuration")
}

func TestMock_ServiceAddedByConcreteType(t *testing.T) {
	c := container.New()
	require.NoError(t, c.AddService("mailer", logMailer{}))
	tc := testcase.New(t, c)

	double := &mockMailer{}
	double.On("Send", "ann@example.com", "Welcome").Return(nil).Once()

	name, err := testcase.Swap[Mailer](tc, double)
	require.NoError(t, err)
	assert.Equal(t, "mailer", name)

	typ, err := c.Type("mailer")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeFor[Mailer](), typ, "the slot is declared again with the mocked type")

	resolved := testcase.GetByType[Mailer](tc)
	assert.Same(t, double, resolved)
	require.NoError(t, resolved.Send("ann@example.com", "Welcome"))
}

func TestGet_ParamsOverrideAction(t *testing.T) {
	c, _ := newApp(t)
	tc := testcase.New(t, c)

	tc.Get("Home", "default", map[string]any{app.ActionKey: "profile"}).
		AssertRedirectResponse().
		AssertRedirectTo("/sign/in")
}

func TestLogAs_AmbiguousAuthenticator(t *testing.T) {
	c, _ := newApp(t)
	require.NoError(t, container.Register[app.Authenticator](c, "auth.primary", &mockAuthenticator{}))
	require.NoError(t, container.Register[app.Authenticator](c, "auth.backup", &mockAuthenticator{}))
	tc := testcase.New(t, c).LogAs("ann", "pw")

	_, err := tc.Authenticator()
	assert.ErrorIs(t, err, container.ErrAmbiguousService)
	assert.NotErrorIs(t, err, testcase.ErrAuthenticatorNotSet)

	_, err = tc.Dispatch("Home", "default", app.MethodGet, nil, nil, nil)
	assert.ErrorIs(t, err, container.ErrAmbiguousService)
}
