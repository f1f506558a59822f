package container

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
)

// Factory builds a service on first resolution. It receives the container so
// it can resolve its own dependencies.
type Factory func(c *Container) (any, error)

type slot struct {
	name     string
	typ      reflect.Type
	instance any
	factory  Factory
	built    bool
}

// Container is a registry of named, typed services.
type Container struct {
	mu       sync.Mutex
	slots    map[string]*slot
	order    []string
	building map[string]bool
	logger   *slog.Logger
}

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for service substitution events.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		c.logger = logger
	}
}

// New creates an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		slots:    make(map[string]*slot),
		building: make(map[string]bool),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds svc under name with T as the declared slot type.
func Register[T any](c *Container, name string, svc T) error {
	return c.add(&slot{
		name:     name,
		typ:      reflect.TypeFor[T](),
		instance: svc,
		built:    true,
	})
}

// RegisterFactory adds a lazily built service under name with T as the
// declared slot type.
func RegisterFactory[T any](c *Container, name string, fn func(c *Container) (T, error)) error {
	return c.add(&slot{
		name: name,
		typ:  reflect.TypeFor[T](),
		factory: func(c *Container) (any, error) {
			return fn(c)
		},
	})
}

// AddService adds an already built service under name. The slot type is the
// dynamic type of svc.
func (c *Container) AddService(name string, svc any) error {
	if svc == nil {
		return &ServiceError{Op: "add", Name: name, Err: fmt.Errorf("nil service")}
	}
	return c.add(&slot{
		name:     name,
		typ:      reflect.TypeOf(svc),
		instance: svc,
		built:    true,
	})
}

func (c *Container) add(s *slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[s.name]; ok {
		return &ServiceError{Op: "add", Name: s.name, Type: s.typ, Err: ErrServiceExists}
	}
	c.slots[s.name] = s
	c.order = append(c.order, s.name)
	return nil
}

// RemoveService deletes the slot registered under name.
func (c *Container) RemoveService(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.slots[name]; !ok {
		return &ServiceError{Op: "remove", Name: name, Err: ErrServiceNotFound}
	}
	delete(c.slots, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Replace swaps the service stored under name for svc while keeping the
// slot's declared type. svc must be assignable to that type.
func (c *Container) Replace(name string, svc any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[name]
	if !ok {
		return &ServiceError{Op: "replace", Name: name, Err: ErrServiceNotFound}
	}
	if svc == nil || !reflect.TypeOf(svc).AssignableTo(s.typ) {
		return &ServiceError{Op: "replace", Name: name, Type: s.typ, Err: ErrTypeMismatch}
	}

	s.instance = svc
	s.factory = nil
	s.built = true

	c.logger.Debug("service replaced",
		"service", name,
		"declared_type", s.typ.String(),
		"replacement_type", fmt.Sprintf("%T", svc))
	return nil
}

// HasService reports whether a slot named name exists.
func (c *Container) HasService(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.slots[name]
	return ok
}

// Type returns the declared type of the slot registered under name.
func (c *Container) Type(name string) (reflect.Type, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[name]
	if !ok {
		return nil, &ServiceError{Op: "type", Name: name, Err: ErrServiceNotFound}
	}
	return s.typ, nil
}

// Names returns all service names in registration order.
func (c *Container) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// FindByType returns the names of every slot whose declared type is
// assignable to t, in registration order.
func (c *Container) FindByType(t reflect.Type) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var names []string
	for _, name := range c.order {
		if c.slots[name].typ.AssignableTo(t) {
			names = append(names, name)
		}
	}
	return names
}

// GetService returns the service registered under name, building it first
// if the slot holds a factory.
func (c *Container) GetService(name string) (any, error) {
	c.mu.Lock()
	s, ok := c.slots[name]
	if !ok {
		c.mu.Unlock()
		return nil, &ServiceError{Op: "get", Name: name, Err: ErrServiceNotFound}
	}
	if s.built {
		svc := s.instance
		c.mu.Unlock()
		return svc, nil
	}
	if c.building[name] {
		c.mu.Unlock()
		return nil, &ServiceError{Op: "get", Name: name, Type: s.typ, Err: ErrCircularDependency}
	}
	c.building[name] = true
	factory := s.factory
	c.mu.Unlock()

	// The lock is released while the factory runs so it can resolve its own
	// dependencies from the container.
	svc, err := factory(c)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.building, name)
	if err != nil {
		return nil, &ServiceError{Op: "create", Name: name, Type: s.typ, Err: err}
	}
	// A Replace that happened while building wins over the factory result.
	if !s.built {
		s.instance = svc
		s.built = true
	}
	return s.instance, nil
}

// FindByType returns the names of every slot assignable to T.
func FindByType[T any](c *Container) []string {
	return c.FindByType(reflect.TypeFor[T]())
}

// Resolve returns the single service assignable to T.
func Resolve[T any](c *Container) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()

	names := c.FindByType(t)
	switch len(names) {
	case 0:
		return zero, &ServiceError{Op: "resolve", Type: t, Err: ErrServiceNotFound}
	case 1:
	default:
		return zero, &ServiceError{
			Op:   "resolve",
			Type: t,
			Err:  fmt.Errorf("%w: %v", ErrAmbiguousService, names),
		}
	}

	return Get[T](c, names[0])
}

// Get returns the service registered under name as T.
func Get[T any](c *Container, name string) (T, error) {
	var zero T

	svc, err := c.GetService(name)
	if err != nil {
		return zero, err
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, &ServiceError{Op: "get", Name: name, Type: reflect.TypeFor[T](), Err: ErrTypeMismatch}
	}
	return typed, nil
}

// MustResolve is Resolve that panics on error. It is intended for wiring
// code in tests where a missing service is a programming error.
func MustResolve[T any](c *Container) T {
	svc, err := Resolve[T](c)
	if err != nil {
		// ALLOW-PANIC: wiring failure in test setup
		panic(err)
	}
	return svc
}
