package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// Defaults applied by New to empty Config fields.
const (
	DefaultEnvironment = "test"
	DefaultTableName   = "schema_migrations"
)

// Config describes where migrations and seeds live and which environment
// the Migrator serves.
type Config struct {
	Environment    string   `validate:"required"`
	Dialect        string   `validate:"required,oneof=sqlite pgx"`
	MigrationPaths []string `validate:"dive,required"`
	SeedPath       string
	TableName      string `validate:"required"`
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithAdapterFactory makes the Migrator look its adapter up in f instead of
// DefaultAdapterFactory.
func WithAdapterFactory(f *AdapterFactory) Option {
	return func(m *Migrator) { m.adapters = f }
}

// WithFS reads migration and seed paths from fsys instead of the OS
// filesystem.
func WithFS(fsys fs.FS) Option {
	return func(m *Migrator) { m.fsys = fsys }
}

// Migrator runs goose migrations and seeders against one *sql.DB.
type Migrator struct {
	cfg      Config
	db       *sql.DB
	adapters *AdapterFactory
	fsys     fs.FS

	mu      sync.Mutex
	seeders map[string]Seeder
}

var validate = validator.New()

// New creates a Migrator for db. The Migrator never closes db.
func New(db *sql.DB, cfg Config, opts ...Option) (*Migrator, error) {
	if cfg.Environment == "" {
		cfg.Environment = DefaultEnvironment
	}
	if cfg.Dialect == "" {
		cfg.Dialect = DialectSQLite
	}
	cfg.Dialect = NormalizeDialect(cfg.Dialect)
	if cfg.TableName == "" {
		cfg.TableName = DefaultTableName
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid migration config: %w", err)
	}
	if db == nil {
		return nil, errors.New("migrator needs a database")
	}

	m := &Migrator{
		cfg:      cfg,
		db:       db,
		adapters: DefaultAdapterFactory(),
		seeders:  make(map[string]Seeder),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Migrator) Config() Config { return m.cfg }

// Migrate applies every pending migration from the configured paths, ordered
// by version across all paths. SQL is read through the dialect's adapter so
// alias column types are rewritten.
func (m *Migrator) Migrate(ctx context.Context, env string) error {
	if err := m.checkEnvironment(env); err != nil {
		return err
	}
	log := logger.FromContext(ctx).With(
		slog.String("environment", env),
		slog.String("dialect", m.cfg.Dialect))

	provider, err := m.provider()
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			log.Debug("no migrations to apply")
			return nil
		}
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Debug("migration applied",
			slog.Int64("version", r.Source.Version),
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration))
	}
	log.Info("migrations applied", slog.Int("count", len(results)))
	return nil
}

// Version returns the highest applied migration version, 0 when none ran.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	provider, err := m.provider()
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return 0, nil
		}
		return 0, err
	}
	v, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return v, nil
}

func (m *Migrator) provider() (*goose.Provider, error) {
	adapter, err := m.adapters.Adapter(m.cfg.Dialect)
	if err != nil {
		return nil, err
	}

	dirs := make([]fs.FS, 0, len(m.cfg.MigrationPaths))
	for _, p := range m.cfg.MigrationPaths {
		dir, err := m.dir(p)
		if err != nil {
			return nil, fmt.Errorf("migration path %s: %w", p, err)
		}
		dirs = append(dirs, dir)
	}
	if len(dirs) == 0 {
		return nil, goose.ErrNoMigrations
	}
	merged, err := mergeFS(dirs)
	if err != nil {
		return nil, err
	}

	store, err := database.NewStore(storeDialect(m.cfg.Dialect), m.cfg.TableName)
	if err != nil {
		return nil, err
	}
	return goose.NewProvider("", m.db, adapter.FS(merged),
		goose.WithStore(store),
		goose.WithDisableGlobalRegistry(true),
	)
}

func (m *Migrator) dir(p string) (fs.FS, error) {
	if m.fsys != nil {
		return fs.Sub(m.fsys, p)
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", p)
	}
	return os.DirFS(p), nil
}

func (m *Migrator) checkEnvironment(env string) error {
	if env != m.cfg.Environment {
		return fmt.Errorf("%w: %q (configured: %q)", ErrUnknownEnvironment, env, m.cfg.Environment)
	}
	return nil
}

func storeDialect(dialect string) database.Dialect {
	if dialect == DialectPostgres {
		return database.DialectPostgres
	}
	return database.DialectSQLite3
}
