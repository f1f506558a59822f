package database

import (
	"context"
	"database/sql"
)

// Handle is an open low-level database handle. It is implemented by
// *sql.DB, *sql.Conn and *sql.Tx.
type Handle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// beginner is a handle that can start a real transaction. *sql.Tx is not
// one; transactions nested in it use savepoints.
type beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

var (
	_ Handle   = (*sql.DB)(nil)
	_ Handle   = (*sql.Conn)(nil)
	_ Handle   = (*sql.Tx)(nil)
	_ beginner = (*sql.DB)(nil)
	_ beginner = (*sql.Conn)(nil)
)
