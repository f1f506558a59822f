package testcase

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"testing"

	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/pkg/app"
	"github.com/phrazzld/apptest/pkg/config"
	"github.com/phrazzld/apptest/pkg/container"
	"github.com/phrazzld/apptest/pkg/database"
	"github.com/phrazzld/apptest/pkg/migrate"
	"github.com/stretchr/testify/require"
)

// ErrAuthenticatorNotSet is returned by Authenticator when LogAs was used
// but no authenticator is configured.
var ErrAuthenticatorNotSet = errors.New("authenticator not set: use WithAuthenticator or register an app.Authenticator")

// Case binds a test to a container. It is not safe for concurrent use.
type Case struct {
	t         testing.TB
	container *container.Container
	cfg       *config.Config
	loadOpts  []config.LoadOption
	cfgEdits  []func(*config.Config)
	ctx       context.Context
	hasLogger bool

	authenticator app.Authenticator
	credentials   *app.Credentials

	adapters *migrate.AdapterFactory
	fsys     fs.FS
	seeders  map[string]migrate.Seeder

	connName string
	fake     *database.FakeConn
	migrator *migrate.Migrator
}

// Option configures a Case.
type Option func(*Case)

// WithConfig uses a copy of cfg instead of loading the configuration.
func WithConfig(cfg *config.Config) Option {
	return func(c *Case) {
		cp := *cfg
		c.cfg = &cp
	}
}

// WithLoadOptions replaces the options the configuration is loaded with.
// It has no effect together with WithConfig.
func WithLoadOptions(opts ...config.LoadOption) Option {
	return func(c *Case) { c.loadOpts = opts }
}

// WithMigrationPaths sets the directories migrations are read from.
func WithMigrationPaths(paths ...string) Option {
	paths = append([]string(nil), paths...)
	return func(c *Case) {
		c.cfgEdits = append(c.cfgEdits, func(cfg *config.Config) { cfg.Migrations.Paths = paths })
	}
}

// WithSeedPath sets the directory seed files are read from.
func WithSeedPath(path string) Option {
	return func(c *Case) {
		c.cfgEdits = append(c.cfgEdits, func(cfg *config.Config) { cfg.Migrations.SeedPath = path })
	}
}

// WithAuthenticator sets the authenticator LogAs credentials are checked
// with.
func WithAuthenticator(a app.Authenticator) Option {
	return func(c *Case) { c.authenticator = a }
}

// WithLogger sets the logger carried by the Case's context. By default
// records go to the test log at the configured level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Case) {
		c.ctx = logger.WithLogger(c.ctx, l)
		c.hasLogger = true
	}
}

// WithAdapterFactory makes Migrate register its SQLite adapter in f instead
// of a factory private to the Case.
func WithAdapterFactory(f *migrate.AdapterFactory) Option {
	return func(c *Case) { c.adapters = f }
}

// WithFS reads migration and seed paths from fsys.
func WithFS(fsys fs.FS) Option {
	return func(c *Case) { c.fsys = fsys }
}

// WithSeeder registers a Go seeder available to Seed.
func WithSeeder(name string, s migrate.Seeder) Option {
	return func(c *Case) { c.seeders[name] = s }
}

// DefaultEnvFile is the dotenv file New loads when present.
const DefaultEnvFile = ".env.testing"

// New creates a Case over the application container ctr.
//
// The configuration is loaded with config.Load from APPTEST_ variables,
// DefaultEnvFile and an apptest file in the working directory, unless
// WithConfig supplies one. Options adjusting single settings, like
// WithMigrationPaths, apply on top either way.
func New(t testing.TB, ctr *container.Container, opts ...Option) *Case {
	t.Helper()
	require.NotNil(t, ctr, "container is required")

	c := &Case{
		t:         t,
		container: ctr,
		loadOpts:  []config.LoadOption{config.WithEnvFiles(DefaultEnvFile), config.WithConfigSearch(".")},
		ctx:       context.Background(),
		adapters:  migrate.NewAdapterFactory(),
		seeders:   make(map[string]migrate.Seeder),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg == nil {
		cfg, err := config.Load(c.loadOpts...)
		require.NoError(t, err, "load configuration")
		c.cfg = cfg
	}
	for _, edit := range c.cfgEdits {
		edit(c.cfg)
	}
	require.NoError(t, config.Validate(c.cfg))

	if !c.hasLogger {
		level, _ := logger.ParseLevel(c.cfg.Log.Level)
		c.ctx = logger.WithLogger(c.ctx, logger.NewTestLogger(t, level))
	}

	t.Cleanup(c.close)
	return c
}

// T returns the test the Case reports to.
func (c *Case) T() testing.TB { return c.t }

// Context returns the context operations of the Case run with. It carries
// the Case's logger.
func (c *Case) Context() context.Context { return c.ctx }

// Container returns the application container.
func (c *Case) Container() *container.Container { return c.container }

// Config returns the effective configuration.
func (c *Case) Config() *config.Config { return c.cfg }

// GetByType returns the single service assignable to T, failing the test
// when there is none or more than one.
func GetByType[T any](c *Case) T {
	c.t.Helper()
	svc, err := container.Resolve[T](c.container)
	require.NoError(c.t, err)
	return svc
}

func (c *Case) close() {
	if c.fake == nil {
		return
	}
	if err := c.fake.Close(); err != nil {
		c.t.Errorf("close connection shim: %v", err)
	}
}
