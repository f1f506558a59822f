package migrate

import (
	"fmt"
	"strings"
	"sync"
)

// Dialects understood by the runner.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "pgx"
)

// NormalizeDialect maps driver and dialect spellings onto DialectSQLite or
// DialectPostgres. Unknown names are returned lower-cased.
func NormalizeDialect(name string) string {
	switch n := strings.ToLower(name); n {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "pgx", "postgres", "postgresql", "pgsql":
		return DialectPostgres
	default:
		return n
	}
}

// AdapterConstructor builds a fresh Adapter.
type AdapterConstructor func() *Adapter

// AdapterFactory holds the adapter constructor per dialect.
type AdapterFactory struct {
	mu       sync.RWMutex
	adapters map[string]AdapterConstructor
}

// NewAdapterFactory returns a factory with the stock adapters registered.
func NewAdapterFactory() *AdapterFactory {
	return &AdapterFactory{
		adapters: map[string]AdapterConstructor{
			DialectSQLite:   NewSQLiteAdapter,
			DialectPostgres: NewPostgresAdapter,
		},
	}
}

var defaultFactory = NewAdapterFactory()

// DefaultAdapterFactory returns the process wide factory used by Migrators
// created without WithAdapterFactory.
func DefaultAdapterFactory() *AdapterFactory { return defaultFactory }

// RegisterAdapter sets the constructor for dialect, replacing any previous
// one.
func (f *AdapterFactory) RegisterAdapter(dialect string, ctor AdapterConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adapters[NormalizeDialect(dialect)] = ctor
}

// Adapter builds the adapter registered for dialect.
func (f *AdapterFactory) Adapter(dialect string) (*Adapter, error) {
	f.mu.RLock()
	ctor, ok := f.adapters[NormalizeDialect(dialect)]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDialect, dialect)
	}
	return ctor(), nil
}
