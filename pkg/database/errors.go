package database

import (
	"errors"
	"fmt"
)

// Error kinds a DriverError can carry. Check them with errors.Is.
var (
	// ErrUniqueViolation is a unique or primary key constraint violation.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is a foreign key constraint violation.
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrNotNullViolation is a NOT NULL constraint violation.
	ErrNotNullViolation = errors.New("not null constraint violation")

	// ErrConstraintViolation is any other constraint violation (CHECK etc).
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrUnableToQuote is returned by Quote for values the driver cannot
	// represent as a string literal.
	ErrUnableToQuote = errors.New("driver is unable to quote string")

	// ErrNoTransaction is returned by Commit and Rollback without Begin.
	ErrNoTransaction = errors.New("no active transaction")

	// ErrArgumentCount is returned by the preprocessor when placeholders
	// and arguments do not match up.
	ErrArgumentCount = errors.New("placeholder and argument count mismatch")
)

// DriverError is the single error type the data layer returns for failures
// reported by the underlying driver.
type DriverError struct {
	Op    string // operation, e.g. "query", "begin", "insert id"
	Query string // SQL that failed, if any
	Code  string // driver specific error code, if known
	Kind  error  // one of the Err* kinds above, or nil
	Err   error  // original driver error
}

// Error implements the error interface for DriverError.
func (e *DriverError) Error() string {
	msg := "database " + e.Op + " failed"
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the original error to errors.Is/As.
func (e *DriverError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// convertError wraps err into a *DriverError using d to classify it.
// Errors that already are a *DriverError only get op and query filled in.
func convertError(d Driver, op, query string, err error) error {
	if err == nil {
		return nil
	}

	var de *DriverError
	if errors.As(err, &de) {
		if de.Op == "" {
			de.Op = op
		}
		if de.Query == "" {
			de.Query = query
		}
		return de
	}

	de = &DriverError{Op: op, Query: query, Err: err}
	if d != nil {
		de.Code, de.Kind = d.ClassifyError(err)
	}
	return de
}
