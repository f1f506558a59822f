package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load,
// e.g. APPTEST_DATABASE_DSN.
const EnvPrefix = "APPTEST"

// ConfigName is the base name WithConfigSearch looks for, e.g. apptest.yaml.
const ConfigName = "apptest"

// Default values used when neither the environment nor a file sets a key.
const (
	DefaultDriver            = "sqlite"
	DefaultDSN               = "file::memory:?_pragma=foreign_keys(1)"
	DefaultConnectionService = "database.default.connection"
	DefaultEnvironment       = "test"
	DefaultMigrationTable    = "schema_migrations"
	DefaultLogLevel          = "info"
	DefaultTokenLifetime     = 60
)

// ErrValidation is wrapped by every error returned for a config that loads
// but does not validate.
var ErrValidation = errors.New("config validation failed")

type loadOptions struct {
	configFile  string
	searchPaths []string
	envFiles    []string
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithConfigFile reads the given YAML/JSON/TOML file before applying the
// environment. A missing file is an error.
func WithConfigFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.configFile = path
	}
}

// WithConfigSearch looks for an apptest.yaml (or .json, .toml) file in
// dirs, in order. Unlike WithConfigFile, finding none is not an error.
// WithConfigFile takes precedence when both are given.
func WithConfigSearch(dirs ...string) LoadOption {
	return func(o *loadOptions) {
		o.searchPaths = append(o.searchPaths, dirs...)
	}
}

// WithEnvFiles loads dotenv files into the process environment before the
// environment is read. Files that do not exist are skipped, and variables
// already set in the environment are never overwritten.
func WithEnvFiles(paths ...string) LoadOption {
	return func(o *loadOptions) {
		o.envFiles = append(o.envFiles, paths...)
	}
}

// Default returns the configuration used when nothing is configured: an
// in-memory SQLite database with migrations tracked in schema_migrations.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:            DefaultDriver,
			DSN:               DefaultDSN,
			ConnectionService: DefaultConnectionService,
		},
		Migrations: MigrationsConfig{
			Environment: DefaultEnvironment,
			Table:       DefaultMigrationTable,
		},
		Auth: AuthConfig{
			TokenLifetimeMinutes: DefaultTokenLifetime,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads configuration from defaults, an optional file and the
// environment, then validates it.
func Load(opts ...LoadOption) (*Config, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	for _, path := range o.envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	switch {
	case o.configFile != "":
		v.SetConfigFile(o.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", o.configFile, err)
		}
	case len(o.searchPaths) > 0:
		v.SetConfigName(ConfigName)
		for _, dir := range o.searchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are only seen by Unmarshal when bound explicitly.
	for _, key := range []string{"auth.jwt_secret", "migrations.paths", "migrations.seed_path"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DefaultDriver)
	v.SetDefault("database.dsn", DefaultDSN)
	v.SetDefault("database.connection_service", DefaultConnectionService)
	v.SetDefault("migrations.environment", DefaultEnvironment)
	v.SetDefault("migrations.table", DefaultMigrationTable)
	v.SetDefault("auth.token_lifetime_minutes", DefaultTokenLifetime)
	v.SetDefault("log.level", DefaultLogLevel)
}
