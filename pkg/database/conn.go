package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/internal/redact"

	// database/sql drivers
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Conn is the application's real Connection. It opens its *sql.DB lazily
// on first use and owns it.
type Conn struct {
	core

	driverName string
	dsn        string
	options    map[string]any
	db         *sql.DB
}

var _ Connection = (*Conn)(nil)

// NewConn creates a Conn for a database/sql driver name ("sqlite" or "pgx")
// and DSN. Nothing is opened until the first operation.
func NewConn(driverName, dsn string, options map[string]any) *Conn {
	c := &Conn{driverName: driverName, dsn: dsn, options: options}
	c.owner = c
	return c
}

// Connect opens and pings the database. It is idempotent.
func (c *Conn) Connect(ctx context.Context) error {
	if c.db != nil {
		return nil
	}

	d, err := NewDriver(c.driverName, c.options)
	if err != nil {
		return &DriverError{Op: "connect", Err: err}
	}

	db, err := sql.Open(d.Name(), c.dsn)
	if err != nil {
		return &DriverError{Op: "connect", Err: err}
	}
	if d.Name() == "sqlite" && isMemoryDSN(c.dsn) {
		// Every new connection to :memory: is a fresh empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return convertError(d, "connect", "", err)
	}

	logger.FromContext(ctx).Debug("database connected",
		"driver", d.Name(),
		"dsn", redact.String(c.dsn))

	c.db = db
	c.adopt(db, d)
	return nil
}

// Disconnect rolls back open transactions and closes the database.
func (c *Conn) Disconnect() {
	if c.db == nil {
		return
	}
	_ = c.discardTx(context.Background())
	_ = c.db.Close()
	c.db = nil
	c.forget()
}

// Reconnect closes and reopens the database.
func (c *Conn) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// DSN returns the data source name.
func (c *Conn) DSN() string { return c.dsn }

// Close is Disconnect for use with defer and t.Cleanup.
func (c *Conn) Close() error {
	c.Disconnect()
	return nil
}

func isMemoryDSN(dsn string) bool {
	return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
}

// String describes the connection with credentials masked.
func (c *Conn) String() string {
	return fmt.Sprintf("%s(%s)", c.driverName, redact.String(c.dsn))
}
