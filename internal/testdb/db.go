package testdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite" // sqlite driver
)

// TestTimeout is the default timeout for test database operations.
const TestTimeout = 5 * time.Second

// MemoryDSN is the DSN of a private in-memory SQLite database with foreign
// keys enforced.
const MemoryDSN = "file::memory:?_pragma=foreign_keys(1)"

// URLEnvVars are checked in order for a PostgreSQL test database.
var URLEnvVars = []string{"DATABASE_URL", "APPTEST_TEST_DB_URL"}

// DatabaseURL returns the first non-empty PostgreSQL URL from URLEnvVars.
func DatabaseURL() string {
	for _, name := range URLEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsIntegrationTestEnvironment reports whether a PostgreSQL test database
// is configured.
func IsIntegrationTestEnvironment() bool {
	return DatabaseURL() != ""
}

// Open returns a test database closed on cleanup: PostgreSQL when
// configured, in-memory SQLite otherwise. The driver name is returned so
// callers can pick the matching dialect.
func Open(t testing.TB) (*sql.DB, string) {
	t.Helper()

	if url := DatabaseURL(); url != "" {
		db, err := open("pgx", url)
		require.NoError(t, err, "failed to open PostgreSQL test database")
		t.Cleanup(func() { Close(t, db) })
		return db, "pgx"
	}
	return OpenSQLite(t), "sqlite"
}

// OpenSQLite returns a private in-memory SQLite database closed on cleanup.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()

	db, err := open("sqlite", MemoryDSN)
	require.NoError(t, err, "failed to open SQLite test database")
	t.Cleanup(func() { Close(t, db) })
	return db
}

func open(driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName, err)
	}
	if driverName == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driverName, err)
	}
	return db, nil
}

// Close closes db, reporting failures other than an already closed
// database.
func Close(t testing.TB, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	if err := db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		t.Errorf("failed to close test database: %v", err)
	}
}

// WithTx runs fn in a transaction that is rolled back afterwards.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		// sql.ErrTxDone means fn already committed or rolled back.
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("warning: failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}
