package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
)

// shimConnector hands out driver connections that forward every statement
// to the current handle of a FakeConn. Nothing it creates owns a physical
// connection, so closing is always a no-op.
type shimConnector struct {
	conn *FakeConn
}

var _ driver.Connector = (*shimConnector)(nil)

func (s *shimConnector) Connect(ctx context.Context) (driver.Conn, error) {
	if err := s.conn.Connect(ctx); err != nil {
		return nil, err
	}
	return &shimConn{conn: s.conn}, nil
}

func (s *shimConnector) Driver() driver.Driver { return shimDriver{} }

var errShimOpen = errors.New("database: shim connections are created through FakeConn.DB")

type shimDriver struct{}

func (shimDriver) Open(string) (driver.Conn, error) { return nil, errShimOpen }

type shimConn struct {
	conn *FakeConn
}

var (
	_ driver.Conn               = (*shimConn)(nil)
	_ driver.ExecerContext      = (*shimConn)(nil)
	_ driver.QueryerContext     = (*shimConn)(nil)
	_ driver.ConnBeginTx        = (*shimConn)(nil)
	_ driver.ConnPrepareContext = (*shimConn)(nil)
	_ driver.Pinger             = (*shimConn)(nil)
	_ driver.NamedValueChecker  = (*shimConn)(nil)
)

func (s *shimConn) handle() Handle {
	return s.conn.current()
}

func (s *shimConn) Prepare(query string) (driver.Stmt, error) {
	return &shimStmt{conn: s, query: query}, nil
}

func (s *shimConn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	return &shimStmt{conn: s, query: query}, nil
}

func (s *shimConn) Close() error { return nil }

func (s *shimConn) Begin() (driver.Tx, error) {
	return s.BeginTx(context.Background(), driver.TxOptions{})
}

func (s *shimConn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if err := s.conn.Begin(ctx); err != nil {
		return nil, err
	}
	return &shimTx{conn: s.conn}, nil
}

func (s *shimConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return s.handle().ExecContext(ctx, query, namedArgs(args)...)
}

func (s *shimConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	rows, err := s.handle().QueryContext(ctx, query, namedArgs(args)...)
	if err != nil {
		return nil, err
	}
	return newShimRows(rows)
}

func (s *shimConn) Ping(ctx context.Context) error {
	if p, ok := s.conn.base.(pinger); ok {
		return p.PingContext(ctx)
	}
	return nil
}

// CheckNamedValue accepts every argument as is; the adopted handle converts
// them with the real driver.
func (s *shimConn) CheckNamedValue(*driver.NamedValue) error { return nil }

type shimStmt struct {
	conn  *shimConn
	query string
}

var (
	_ driver.StmtExecContext  = (*shimStmt)(nil)
	_ driver.StmtQueryContext = (*shimStmt)(nil)
)

func (s *shimStmt) Close() error  { return nil }
func (s *shimStmt) NumInput() int { return -1 }

func (s *shimStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *shimStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func (s *shimStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.conn.ExecContext(ctx, s.query, args)
}

func (s *shimStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.conn.QueryContext(ctx, s.query, args)
}

type shimTx struct {
	conn *FakeConn
}

func (t *shimTx) Commit() error   { return t.conn.Commit(context.Background()) }
func (t *shimTx) Rollback() error { return t.conn.Rollback(context.Background()) }

// shimRows re-exposes materialized *sql.Rows values as driver rows.
type shimRows struct {
	rows    *sql.Rows
	columns []string
}

func newShimRows(rows *sql.Rows) (*shimRows, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}
	return &shimRows{rows: rows, columns: cols}, nil
}

func (r *shimRows) Columns() []string { return r.columns }

func (r *shimRows) Close() error { return r.rows.Close() }

func (r *shimRows) Next(dest []driver.Value) error {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return io.EOF
	}

	values := make([]any, len(r.columns))
	ptrs := make([]any, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return err
	}
	for i := range dest {
		dest[i] = values[i]
	}
	return nil
}

func namedArgs(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = sql.Named(a.Name, a.Value)
			continue
		}
		out[i] = a.Value
	}
	return out
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	out := make([]driver.NamedValue, len(args))
	for i, v := range args {
		out[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return out
}
