package migrate

import "errors"

var (
	// ErrUnknownEnvironment is returned when migrating or seeding an
	// environment the Migrator was not configured for.
	ErrUnknownEnvironment = errors.New("unknown migration environment")

	// ErrSeederNotFound is returned by Seed for a name that matches neither
	// a registered seeder nor a seed file.
	ErrSeederNotFound = errors.New("seeder not found")

	// ErrUnknownDialect is returned for dialects without a registered adapter.
	ErrUnknownDialect = errors.New("unknown dialect")

	// ErrUnsupportedType is returned when an alias targets a type the
	// adapter does not support.
	ErrUnsupportedType = errors.New("unsupported column type")

	// ErrDuplicateMigration is returned when two migration paths contain a
	// file with the same name.
	ErrDuplicateMigration = errors.New("duplicate migration file")
)
