package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/phrazzld/apptest/internal/platform/logger"
)

// Connection is the surface the application data layer expects from a
// database connection.
type Connection interface {
	Connect(ctx context.Context) error
	Disconnect()
	Reconnect(ctx context.Context) error
	DSN() string

	Handle(ctx context.Context) (Handle, error)
	CurrentHandle(ctx context.Context) (Handle, error)
	Driver(ctx context.Context) (Driver, error)

	InsertID(ctx context.Context, sequence string) (string, error)
	Quote(ctx context.Context, value string) (string, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	Query(ctx context.Context, query string, args ...any) (*ResultSet, error)
	QueryArgs(ctx context.Context, query string, args []any) (*ResultSet, error)
	Preprocess(ctx context.Context, query string, args ...any) (string, []any, error)
	LastQueryString() string

	Fetch(ctx context.Context, query string, args ...any) (*Row, error)
	FetchField(ctx context.Context, query string, args ...any) (any, error)
	FetchFields(ctx context.Context, query string, args ...any) ([]any, error)
	FetchPairs(ctx context.Context, query string, args ...any) (map[string]any, error)
	FetchAll(ctx context.Context, query string, args ...any) ([]Row, error)

	Table(name string) *Selection
}

// ConnectHook runs after a connection adopts or opens its handle.
type ConnectHook func(conn Connection)

// QueryHook runs after every query with either its result or its error.
type QueryHook func(conn Connection, result *ResultSet, err error)

// Pseudo statements reported to query hooks for transaction control.
const (
	beginStatement    = "::beginTransaction"
	commitStatement   = "::commit"
	rollbackStatement = "::rollBack"
)

// savepointSeq keeps savepoint names unique across connections sharing one
// transaction.
var savepointSeq atomic.Uint64

type txFrame struct {
	handle    Handle
	tx        *sql.Tx
	savepoint string
}

// core implements everything in Connection except the connection lifecycle,
// which Conn and FakeConn provide themselves.
type core struct {
	owner        Connection
	handle       Handle
	driver       Driver
	preprocessor *Preprocessor
	txs          []txFrame
	lastSQL      string
	onConnect    []ConnectHook
	onQuery      []QueryHook
}

// OnConnect registers a hook fired after every Connect that adopts a handle.
func (c *core) OnConnect(hook ConnectHook) {
	c.onConnect = append(c.onConnect, hook)
}

// OnQuery registers a hook fired after every query.
func (c *core) OnQuery(hook QueryHook) {
	c.onQuery = append(c.onQuery, hook)
}

func (c *core) adopt(h Handle, d Driver) {
	c.handle = h
	c.driver = d
	c.preprocessor = NewPreprocessor(d)
	for _, hook := range c.onConnect {
		hook(c.owner)
	}
}

// forget drops the adopted handle. Open transactions are kept; they belong
// to the handle's owner, not to this connection object.
func (c *core) forget() {
	c.handle = nil
}

// discardTx rolls back every open transaction, innermost first, and
// returns the first error.
func (c *core) discardTx(ctx context.Context) error {
	var first error
	for n := len(c.txs); n > 0; n = len(c.txs) {
		frame := c.txs[n-1]
		c.txs = c.txs[:n-1]
		if err := rollbackFrame(ctx, frame); err != nil && first == nil {
			first = convertError(c.driver, "rollback", rollbackStatement, err)
		}
	}
	return first
}

// rollbackFrame undoes one frame. A transaction already finished by its
// owner counts as rolled back.
func rollbackFrame(ctx context.Context, frame txFrame) error {
	var err error
	if frame.tx != nil {
		err = frame.tx.Rollback()
	} else {
		_, err = frame.handle.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+frame.savepoint)
		if err == nil {
			_, err = frame.handle.ExecContext(ctx, "RELEASE SAVEPOINT "+frame.savepoint)
		}
	}
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// current returns the handle statements run on: the innermost transaction
// or the adopted handle.
func (c *core) current() Handle {
	if n := len(c.txs); n > 0 {
		return c.txs[n-1].handle
	}
	return c.handle
}

// Handle connects and returns the adopted handle.
func (c *core) Handle(ctx context.Context) (Handle, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return nil, err
	}
	return c.handle, nil
}

// CurrentHandle connects and returns the handle statements currently run
// on: the innermost open transaction, or the adopted handle outside one.
func (c *core) CurrentHandle(ctx context.Context) (Handle, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return nil, err
	}
	return c.current(), nil
}

// Driver connects and returns the dialect driver.
func (c *core) Driver(ctx context.Context) (Driver, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return nil, err
	}
	return c.driver, nil
}

// InsertID returns the last generated id, "0" when there is none.
func (c *core) InsertID(ctx context.Context, sequence string) (string, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return "", err
	}

	query, args := c.driver.InsertIDQuery(sequence)
	var id sql.NullString
	if err := c.current().QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return "", convertError(c.driver, "insert id", query, err)
	}
	if !id.Valid || id.String == "" {
		return "0", nil
	}
	return id.String, nil
}

// Quote returns value as a SQL string literal.
func (c *core) Quote(ctx context.Context, value string) (string, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return "", err
	}
	quoted, err := c.driver.Quote(value)
	if err != nil {
		return "", &DriverError{Op: "quote", Kind: ErrUnableToQuote, Err: err}
	}
	return quoted, nil
}

// Begin starts a transaction. Inside another transaction, or when the
// adopted handle is itself a *sql.Tx, a savepoint is used instead.
func (c *core) Begin(ctx context.Context) error {
	if err := c.owner.Connect(ctx); err != nil {
		return err
	}

	cur := c.current()
	if b, ok := cur.(beginner); ok {
		tx, err := b.BeginTx(ctx, nil)
		if err != nil {
			return c.reportTx(ctx, beginStatement, convertError(c.driver, "begin", beginStatement, err))
		}
		c.txs = append(c.txs, txFrame{handle: tx, tx: tx})
		return c.reportTx(ctx, beginStatement, nil)
	}

	name := "apptest_sp_" + strconv.FormatUint(savepointSeq.Add(1), 10)
	if _, err := cur.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return c.reportTx(ctx, beginStatement, convertError(c.driver, "begin", "SAVEPOINT "+name, err))
	}
	c.txs = append(c.txs, txFrame{handle: cur, savepoint: name})
	return c.reportTx(ctx, beginStatement, nil)
}

// Commit commits the innermost transaction or releases its savepoint.
func (c *core) Commit(ctx context.Context) error {
	frame, err := c.pop(ctx)
	if err != nil {
		return err
	}

	if frame.tx != nil {
		err = frame.tx.Commit()
	} else {
		_, err = frame.handle.ExecContext(ctx, "RELEASE SAVEPOINT "+frame.savepoint)
	}
	return c.reportTx(ctx, commitStatement, convertError(c.driver, "commit", commitStatement, err))
}

// Rollback rolls back the innermost transaction or savepoint.
func (c *core) Rollback(ctx context.Context) error {
	frame, err := c.pop(ctx)
	if err != nil {
		return err
	}

	if frame.tx != nil {
		err = frame.tx.Rollback()
	} else {
		_, err = frame.handle.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+frame.savepoint)
		if err == nil {
			_, err = frame.handle.ExecContext(ctx, "RELEASE SAVEPOINT "+frame.savepoint)
		}
	}
	return c.reportTx(ctx, rollbackStatement, convertError(c.driver, "rollback", rollbackStatement, err))
}

func (c *core) pop(ctx context.Context) (txFrame, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return txFrame{}, err
	}
	n := len(c.txs)
	if n == 0 {
		return txFrame{}, &DriverError{Op: "transaction", Err: ErrNoTransaction}
	}
	frame := c.txs[n-1]
	c.txs = c.txs[:n-1]
	return frame, nil
}

func (c *core) reportTx(ctx context.Context, statement string, err error) error {
	c.lastSQL = statement
	if err != nil {
		c.fireQuery(ctx, nil, err)
		return err
	}
	c.fireQuery(ctx, &ResultSet{query: statement}, nil)
	return nil
}

// Query preprocesses and executes query, firing query hooks either way.
func (c *core) Query(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	processed, params, err := c.Preprocess(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	c.lastSQL = processed

	rs, err := execute(ctx, c.current(), processed, params)
	if err != nil {
		err = convertError(c.driver, "query", processed, err)
		c.fireQuery(ctx, nil, err)
		return nil, err
	}
	c.fireQuery(ctx, rs, nil)
	return rs, nil
}

// QueryArgs is Query with the arguments as a slice.
func (c *core) QueryArgs(ctx context.Context, query string, args []any) (*ResultSet, error) {
	return c.Query(ctx, query, args...)
}

// Preprocess connects and expands args into query. Without arguments the
// query is returned untouched.
func (c *core) Preprocess(ctx context.Context, query string, args ...any) (string, []any, error) {
	if err := c.owner.Connect(ctx); err != nil {
		return "", nil, err
	}
	if len(args) == 0 {
		return query, nil, nil
	}
	processed, params, err := c.preprocessor.Process(query, args)
	if err != nil {
		return "", nil, fmt.Errorf("preprocess %q: %w", query, err)
	}
	return processed, params, nil
}

// LastQueryString returns the last executed SQL.
func (c *core) LastQueryString() string {
	return c.lastSQL
}

func (c *core) fireQuery(ctx context.Context, rs *ResultSet, err error) {
	log := logger.FromContext(ctx)
	if err != nil {
		var de *DriverError
		if errors.As(err, &de) {
			log.Debug("query failed", "op", de.Op, "code", de.Code, "error", de.Err)
		}
	}
	for _, hook := range c.onQuery {
		hook(c.owner, rs, err)
	}
}

// Fetch is Query followed by ResultSet.Fetch.
func (c *core) Fetch(ctx context.Context, query string, args ...any) (*Row, error) {
	rs, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs.Fetch(), nil
}

// FetchField is Query followed by ResultSet.FetchField.
func (c *core) FetchField(ctx context.Context, query string, args ...any) (any, error) {
	rs, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs.FetchField(), nil
}

// FetchFields is Query followed by ResultSet.FetchFields.
func (c *core) FetchFields(ctx context.Context, query string, args ...any) ([]any, error) {
	rs, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs.FetchFields(), nil
}

// FetchPairs is Query followed by ResultSet.FetchPairs on the first two
// columns.
func (c *core) FetchPairs(ctx context.Context, query string, args ...any) (map[string]any, error) {
	rs, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs.FetchPairs("", "")
}

// FetchAll is Query followed by ResultSet.FetchAll.
func (c *core) FetchAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rs, err := c.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rs.FetchAll(), nil
}

// Table starts a fluent selection over the named table.
func (c *core) Table(name string) *Selection {
	return newSelection(c.owner, name)
}
