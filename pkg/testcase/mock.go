package testcase

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/pkg/container"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type expectationAsserter interface {
	AssertExpectations(t mock.TestingT) bool
}

// Mock replaces the service implementing T by double and returns double.
// The test fails when no service or more than one service implements T.
// Doubles embedding testify's mock.Mock have their expectations asserted
// when the test ends.
func Mock[T any](c *Case, double T) T {
	c.t.Helper()
	_, err := Swap(c, double)
	require.NoError(c.t, err)
	return double
}

// Swap is Mock without failing the test. It returns the name of the
// replaced service. With no match it returns container.ErrServiceNotFound,
// with several container.ErrAmbiguousService; the container is left
// untouched in both cases.
//
// A slot whose declared type cannot hold double, such as a concrete type
// added with AddService, is removed and declared again with type T.
func Swap[T any](c *Case, double T) (string, error) {
	t := reflect.TypeFor[T]()

	names := container.FindByType[T](c.container)
	switch len(names) {
	case 0:
		return "", &container.ServiceError{Op: "mock", Type: t, Err: container.ErrServiceNotFound}
	case 1:
	default:
		return "", &container.ServiceError{
			Op:   "mock",
			Type: t,
			Err:  fmt.Errorf("%w: %v", container.ErrAmbiguousService, names),
		}
	}
	name := names[0]
	if any(double) == nil {
		return "", &container.ServiceError{Op: "mock", Name: name, Type: t, Err: container.ErrTypeMismatch}
	}

	err := c.container.Replace(name, double)
	if errors.Is(err, container.ErrTypeMismatch) {
		if err = c.container.RemoveService(name); err == nil {
			err = container.Register[T](c.container, name, double)
		}
	}
	if err != nil {
		return "", err
	}
	if m, ok := any(double).(expectationAsserter); ok {
		c.t.Cleanup(func() { m.AssertExpectations(c.t) })
	}

	logger.FromContext(c.ctx).Debug("service mocked",
		"service", name,
		"type", t.String(),
		"double", fmt.Sprintf("%T", double))
	return name, nil
}
