package config

// Config holds all harness configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Migrations MigrationsConfig `mapstructure:"migrations" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Log        LogConfig        `mapstructure:"log" validate:"required"`
}

// DatabaseConfig describes the database the harness connects to.
type DatabaseConfig struct {
	// Driver is the database/sql driver name: "sqlite" (modernc) or "pgx".
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite pgx"`
	DSN    string `mapstructure:"dsn" validate:"required"`
	// ConnectionService is the container name of the data-layer connection
	// that Migrate swaps for the shim.
	ConnectionService string `mapstructure:"connection_service" validate:"required"`
}

// MigrationsConfig describes where migrations and seeds live.
type MigrationsConfig struct {
	Environment string   `mapstructure:"environment" validate:"required"`
	Paths       []string `mapstructure:"paths" validate:"omitempty,dive,required"`
	SeedPath    string   `mapstructure:"seed_path"`
	Table       string   `mapstructure:"table" validate:"required"`
}

// AuthConfig contains settings for token based test logins.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gte=0"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}
