package app

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/phrazzld/apptest/pkg/container"
)

// PresenterFactory creates presenters by name.
type PresenterFactory interface {
	CreatePresenter(name string) (Presenter, error)
	// Unformat turns a presenter class or type name into the name
	// CreatePresenter expects.
	Unformat(class string) string
}

// PresenterConstructor builds a presenter. It receives the container so
// dependencies are resolved when the presenter is created, after any test
// doubles have been swapped in.
type PresenterConstructor func(c *container.Container) (Presenter, error)

// Factory is the default PresenterFactory.
type Factory struct {
	container *container.Container

	mu           sync.RWMutex
	constructors map[string]PresenterConstructor
}

var _ PresenterFactory = (*Factory)(nil)

// NewFactory creates a Factory resolving dependencies from c.
func NewFactory(c *container.Container) *Factory {
	return &Factory{
		container:    c,
		constructors: make(map[string]PresenterConstructor),
	}
}

// Register adds a presenter constructor under name. Names are normalized
// with Unformat.
func (f *Factory) Register(name string, ctor PresenterConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[f.Unformat(name)] = ctor
}

// Names returns the registered presenter names, sorted.
func (f *Factory) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.constructors))
	for n := range f.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CreatePresenter implements PresenterFactory.
func (f *Factory) CreatePresenter(name string) (Presenter, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[f.Unformat(name)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPresenterNotFound, name)
	}

	p, err := ctor(f.container)
	if err != nil {
		return nil, fmt.Errorf("create presenter %s: %w", name, err)
	}
	return p, nil
}

// Unformat implements PresenterFactory. Package qualifiers, pointer marks
// and the "Presenter" suffix are dropped and each ":" separated part is
// capitalized: "*web.HomePresenter" → "Home", "admin:usersPresenter" →
// "Admin:Users".
func (f *Factory) Unformat(class string) string {
	name := strings.TrimLeft(strings.TrimSpace(class), "*")
	if i := strings.LastIndexAny(name, "./\\"); i >= 0 {
		name = name[i+1:]
	}

	parts := strings.Split(name, ":")
	for i, p := range parts {
		p = strings.TrimSuffix(p, "Presenter")
		if p != "" {
			p = strings.ToUpper(p[:1]) + p[1:]
		}
		parts[i] = p
	}
	return strings.Join(parts, ":")
}
