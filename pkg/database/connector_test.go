package database_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/phrazzld/apptest/internal/testdb"
	"github.com/phrazzld/apptest/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeConnDB_SharesAdoptedHandle(t *testing.T) {
	conn, db := newFake(t)
	ctx := context.Background()

	shim := conn.DB()
	assert.Same(t, shim, conn.DB(), "DB is created once")
	require.NoError(t, shim.PingContext(ctx))

	_, err := shim.ExecContext(ctx, "INSERT INTO users (email, name) VALUES (?, ?)", "shim@example.com", "Shim")
	require.NoError(t, err)

	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT name FROM users WHERE email = ?", "shim@example.com").Scan(&name))
	assert.Equal(t, "Shim", name)

	var count int64
	require.NoError(t, shim.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count))
	assert.EqualValues(t, 1, count)
}

func TestFakeConnDB_PreparedStatements(t *testing.T) {
	conn, _ := newFake(t)
	ctx := context.Background()

	stmt, err := conn.DB().PrepareContext(ctx, "INSERT INTO users (email) VALUES (?)")
	require.NoError(t, err)
	for _, email := range []string{"a@example.com", "b@example.com"} {
		_, err := stmt.ExecContext(ctx, email)
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())

	n, err := conn.Table("users").Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestFakeConnDB_CloseLeavesHandleOpen(t *testing.T) {
	conn, db := newFake(t)
	ctx := context.Background()

	require.NoError(t, conn.DB().PingContext(ctx))
	require.NoError(t, conn.Close())

	require.NoError(t, db.PingContext(ctx))
	_, err := db.ExecContext(ctx, "INSERT INTO users (email) VALUES ('after@example.com')")
	require.NoError(t, err)
}

func TestFakeConnDB_Transactions(t *testing.T) {
	conn, db := newFake(t)
	ctx := context.Background()
	shim := conn.DB()

	tx, err := shim.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO users (email) VALUES ('rolled@example.com')")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	tx, err = shim.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx, "INSERT INTO users (email) VALUES ('kept@example.com')")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	var emails []any
	rows, err := db.QueryContext(ctx, "SELECT email FROM users")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var e any
		require.NoError(t, rows.Scan(&e))
		emails = append(emails, e)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []any{"kept@example.com"}, emails)
}

func TestFakeConnDB_InsideOuterTransaction(t *testing.T) {
	db := testdb.OpenSQLite(t)
	ctx := context.Background()

	testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		conn := database.NewFakeConn(tx, ":memory:", "root", "", nil)
		defer func() { require.NoError(t, conn.Close()) }()

		shimTx, err := conn.DB().BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = shimTx.ExecContext(ctx, "CREATE TABLE notes (body TEXT)")
		require.NoError(t, err)
		require.NoError(t, shimTx.Commit())

		_, err = tx.ExecContext(ctx, "INSERT INTO notes (body) VALUES ('x')")
		require.NoError(t, err)
	})

	_, err := db.ExecContext(ctx, "SELECT * FROM notes")
	assert.Error(t, err, "schema created through the shim is rolled back with the outer transaction")
}
