package container

import (
	"errors"
	"fmt"
	"reflect"
)

// Common container errors.
var (
	// ErrServiceNotFound is returned when no service matches a name or type.
	ErrServiceNotFound = errors.New("service not found")

	// ErrServiceExists is returned when a name is registered twice.
	ErrServiceExists = errors.New("service already registered")

	// ErrAmbiguousService is returned when a type lookup matches more than
	// one service and the caller needs exactly one.
	ErrAmbiguousService = errors.New("multiple services match type")

	// ErrTypeMismatch is returned when a replacement does not satisfy the
	// type the slot was declared with.
	ErrTypeMismatch = errors.New("service does not satisfy declared type")

	// ErrCircularDependency is returned when a factory ends up resolving
	// the service it is building.
	ErrCircularDependency = errors.New("circular service dependency")
)

// ServiceError describes a failed container operation on a single service.
type ServiceError struct {
	Op   string       // operation that failed, e.g. "get", "replace"
	Name string       // service name, empty for type lookups
	Type reflect.Type // requested or declared type, may be nil
	Err  error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	switch {
	case e.Name != "" && e.Type != nil:
		return fmt.Sprintf("container %s %q (%s): %v", e.Op, e.Name, e.Type, e.Err)
	case e.Name != "":
		return fmt.Sprintf("container %s %q: %v", e.Op, e.Name, e.Err)
	case e.Type != nil:
		return fmt.Sprintf("container %s %s: %v", e.Op, e.Type, e.Err)
	default:
		return fmt.Sprintf("container %s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}
