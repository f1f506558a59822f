package database

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Driver carries the dialect specific parts of the data layer.
type Driver interface {
	// Name returns the database/sql driver name.
	Name() string
	// Rebind rewrites ? placeholders into the dialect's placeholder style.
	Rebind(query string) string
	// QuoteIdentifier quotes a table or column name; dots separate parts.
	QuoteIdentifier(name string) string
	// Quote returns value as a SQL string literal.
	Quote(value string) (string, error)
	// FormatDateTime formats t as a SQL literal.
	FormatDateTime(t time.Time) string
	// InsertIDQuery returns the statement reading the last generated id.
	InsertIDQuery(sequence string) (string, []any)
	// ClassifyError extracts the driver error code and maps it to one of the
	// package error kinds. kind is nil for unclassified errors.
	ClassifyError(err error) (code string, kind error)
}

// Option keys understood by NewDriver.
const (
	OptionDriver         = "driver"
	OptionFormatDateTime = "formatDateTime"
)

// DefaultDateTimeFormat is the Go layout used for datetime literals.
const DefaultDateTimeFormat = "'2006-01-02 15:04:05'"

// NewDriver returns the Driver for a database/sql driver name. Options may
// override the datetime layout with OptionFormatDateTime.
func NewDriver(name string, options map[string]any) (Driver, error) {
	format := DefaultDateTimeFormat
	if f, ok := options[OptionFormatDateTime].(string); ok && f != "" {
		format = f
	}

	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return &SQLiteDriver{DateTimeFormat: format}, nil
	case "pgx", "postgres", "postgresql":
		return &PostgresDriver{DateTimeFormat: format}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", name)
	}
}

// SQLiteDriver is the Driver for modernc.org/sqlite.
type SQLiteDriver struct {
	DateTimeFormat string
}

var _ Driver = (*SQLiteDriver)(nil)

// Name implements Driver.
func (d *SQLiteDriver) Name() string { return "sqlite" }

// Rebind implements Driver. SQLite understands ? natively.
func (d *SQLiteDriver) Rebind(query string) string { return query }

// QuoteIdentifier implements Driver.
func (d *SQLiteDriver) QuoteIdentifier(name string) string { return quoteIdentifier(name) }

// Quote implements Driver.
func (d *SQLiteDriver) Quote(value string) (string, error) { return quoteString(value) }

// FormatDateTime implements Driver.
func (d *SQLiteDriver) FormatDateTime(t time.Time) string {
	return t.Format(d.DateTimeFormat)
}

// InsertIDQuery implements Driver. SQLite has no sequences; the argument is
// ignored.
func (d *SQLiteDriver) InsertIDQuery(string) (string, []any) {
	return "SELECT last_insert_rowid()", nil
}

// ClassifyError implements Driver.
func (d *SQLiteDriver) ClassifyError(err error) (string, error) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", nil
	}

	code := se.Code()
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return strconv.Itoa(code), ErrUniqueViolation
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return strconv.Itoa(code), ErrForeignKeyViolation
	case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return strconv.Itoa(code), ErrNotNullViolation
	}

	// Without extended result codes only the primary code is set; fall back
	// to the message SQLite produces for each constraint.
	if code&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := se.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed"):
			return strconv.Itoa(code), ErrUniqueViolation
		case strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return strconv.Itoa(code), ErrForeignKeyViolation
		case strings.Contains(msg, "NOT NULL constraint failed"):
			return strconv.Itoa(code), ErrNotNullViolation
		default:
			return strconv.Itoa(code), ErrConstraintViolation
		}
	}
	return strconv.Itoa(code), nil
}

// PostgreSQL error codes
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	notNullViolationCode    = "23502"
	checkViolationCode      = "23514"
	integrityClass          = "23"
)

// PostgresDriver is the Driver for pgx through database/sql.
type PostgresDriver struct {
	DateTimeFormat string
}

var _ Driver = (*PostgresDriver)(nil)

// Name implements Driver.
func (d *PostgresDriver) Name() string { return "pgx" }

// Rebind implements Driver, turning ? into $1, $2, ...
func (d *PostgresDriver) Rebind(query string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	ScanSQL(query, func(chunk string, code bool) {
		if !code {
			b.WriteString(chunk)
			return
		}
		for _, r := range chunk {
			if r == '?' {
				n++
				b.WriteString("$" + strconv.Itoa(n))
				continue
			}
			b.WriteRune(r)
		}
	})
	return b.String()
}

// QuoteIdentifier implements Driver.
func (d *PostgresDriver) QuoteIdentifier(name string) string { return quoteIdentifier(name) }

// Quote implements Driver.
func (d *PostgresDriver) Quote(value string) (string, error) { return quoteString(value) }

// FormatDateTime implements Driver.
func (d *PostgresDriver) FormatDateTime(t time.Time) string {
	return t.Format(d.DateTimeFormat)
}

// InsertIDQuery implements Driver. Without a sequence name the value of
// the last nextval() in this session is read.
func (d *PostgresDriver) InsertIDQuery(sequence string) (string, []any) {
	if sequence == "" {
		return "SELECT lastval()", nil
	}
	return "SELECT currval($1)", []any{sequence}
}

// ClassifyError implements Driver.
func (d *PostgresDriver) ClassifyError(err error) (string, error) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", nil
	}

	switch pgErr.Code {
	case uniqueViolationCode:
		return pgErr.Code, ErrUniqueViolation
	case foreignKeyViolationCode:
		return pgErr.Code, ErrForeignKeyViolation
	case notNullViolationCode:
		return pgErr.Code, ErrNotNullViolation
	case checkViolationCode:
		return pgErr.Code, ErrConstraintViolation
	}
	if strings.HasPrefix(pgErr.Code, integrityClass) {
		return pgErr.Code, ErrConstraintViolation
	}
	return pgErr.Code, nil
}

func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, part := range parts {
		if part == "*" {
			continue
		}
		parts[i] = `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func quoteString(value string) (string, error) {
	if strings.ContainsRune(value, 0) {
		return "", ErrUnableToQuote
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'", nil
}
