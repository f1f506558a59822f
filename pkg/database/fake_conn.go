package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// FakeConn is a Connection that never opens a physical connection. It
// adopts a handle that already exists, typically the one held by the
// application's real connection, so the code under test and the test
// itself see the same database (and the same in-memory SQLite instance).
//
// Disconnect only forgets the handle; the caller that owns it closes it.
// Transactions begun through the FakeConn stay open across Disconnect and
// Reconnect, since they live on the adopted handle.
type FakeConn struct {
	core

	base     Handle
	dsn      string
	user     string
	password string
	options  map[string]any

	mu        sync.Mutex
	connected bool
	db        *sql.DB
}

var _ Connection = (*FakeConn)(nil)

// NewFakeConn creates a FakeConn over handle. options[OptionDriver] names
// the dialect (default "sqlite"); the remaining options are passed to
// NewDriver.
func NewFakeConn(handle Handle, dsn, user, password string, options map[string]any) *FakeConn {
	opts := make(map[string]any, len(options))
	for k, v := range options {
		opts[k] = v
	}
	c := &FakeConn{
		base:     handle,
		dsn:      dsn,
		user:     user,
		password: password,
		options:  opts,
	}
	c.owner = c
	return c
}

// Connect adopts the wrapped handle. It is idempotent; connect hooks fire
// only when the handle is adopted.
func (c *FakeConn) Connect(context.Context) error {
	if c.connected {
		return nil
	}
	if c.base == nil {
		return &DriverError{Op: "connect", Err: fmt.Errorf("no handle to adopt for %s", c.dsn)}
	}

	name, _ := c.options[OptionDriver].(string)
	if name == "" {
		name = "sqlite"
	}
	d, err := NewDriver(name, c.options)
	if err != nil {
		return &DriverError{Op: "connect", Err: err}
	}

	c.connected = true
	c.adopt(c.base, d)
	return nil
}

// Disconnect forgets the adopted handle without closing it.
func (c *FakeConn) Disconnect() {
	c.connected = false
	c.forget()
}

// Reconnect forgets and adopts the handle again.
func (c *FakeConn) Reconnect(ctx context.Context) error {
	c.Disconnect()
	return c.Connect(ctx)
}

// DSN returns the DSN the connection was created with.
func (c *FakeConn) DSN() string { return c.dsn }

// User returns the user the connection was created with.
func (c *FakeConn) User() string { return c.user }

// Password returns the password the connection was created with.
func (c *FakeConn) Password() string { return c.password }

// Options returns a copy of the connection options.
func (c *FakeConn) Options() map[string]any {
	opts := make(map[string]any, len(c.options))
	for k, v := range c.options {
		opts[k] = v
	}
	return opts
}

// DB returns a *sql.DB whose statements run on the current handle of the
// connection, so libraries that need a *sql.DB (migration runners, query
// builders) share the adopted database. The returned DB is owned by the
// FakeConn and released by Close.
func (c *FakeConn) DB() *sql.DB {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		c.db = sql.OpenDB(&shimConnector{conn: c})
	}
	return c.db
}

// Close rolls back transactions still open on the FakeConn and releases the
// *sql.DB handed out by DB. The adopted handle stays open.
func (c *FakeConn) Close() error {
	c.mu.Lock()
	db := c.db
	c.db = nil
	c.mu.Unlock()

	txErr := c.discardTx(context.Background())
	c.Disconnect()
	if db != nil {
		if err := db.Close(); err != nil {
			return err
		}
	}
	return txErr
}
