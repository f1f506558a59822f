package migrate

import (
	"fmt"
	"sort"
	"strings"
)

// Adapter maps the logical column types migrations are written with onto a
// dialect's physical types. Aliases let one logical type be stored as
// another, e.g. enum as string on engines without ENUM.
type Adapter struct {
	dialect string
	types   map[string]string
	aliases map[string]string
}

// NewAdapter creates an Adapter for dialect from logical → physical types.
// Type names are case-insensitive.
func NewAdapter(dialect string, types map[string]string) *Adapter {
	a := &Adapter{
		dialect: dialect,
		types:   make(map[string]string, len(types)),
		aliases: make(map[string]string),
	}
	for logical, physical := range types {
		a.types[strings.ToLower(logical)] = physical
	}
	return a
}

// NewSQLiteAdapter returns the stock SQLite adapter.
func NewSQLiteAdapter() *Adapter {
	return NewAdapter(DialectSQLite, map[string]string{
		"string":       "TEXT",
		"char":         "TEXT",
		"text":         "TEXT",
		"uuid":         "TEXT",
		"json":         "TEXT",
		"integer":      "INTEGER",
		"smallinteger": "INTEGER",
		"biginteger":   "INTEGER",
		"boolean":      "INTEGER",
		"float":        "REAL",
		"double":       "REAL",
		"binary":       "BLOB",
		"blob":         "BLOB",
		"date":         "TEXT",
		"time":         "TEXT",
		"datetime":     "TEXT",
		"timestamp":    "TEXT",
	})
}

// NewTestSQLiteAdapter returns the SQLite adapter used by test databases:
// the stock one plus enum stored as string and decimal stored as float.
func NewTestSQLiteAdapter() *Adapter {
	a := NewSQLiteAdapter()
	// Both targets are stock SQLite types, so Alias cannot fail here.
	_ = a.Alias("enum", "string")
	_ = a.Alias("decimal", "float")
	return a
}

// NewPostgresAdapter returns the stock PostgreSQL adapter.
func NewPostgresAdapter() *Adapter {
	return NewAdapter(DialectPostgres, map[string]string{
		"string":       "VARCHAR",
		"char":         "CHAR",
		"text":         "TEXT",
		"uuid":         "UUID",
		"json":         "JSONB",
		"integer":      "INTEGER",
		"smallinteger": "SMALLINT",
		"biginteger":   "BIGINT",
		"boolean":      "BOOLEAN",
		"float":        "REAL",
		"double":       "DOUBLE PRECISION",
		"decimal":      "DECIMAL",
		"binary":       "BYTEA",
		"blob":         "BYTEA",
		"date":         "DATE",
		"time":         "TIME",
		"datetime":     "TIMESTAMP",
		"timestamp":    "TIMESTAMP",
	})
}

// Dialect returns the dialect the adapter serves.
func (a *Adapter) Dialect() string { return a.dialect }

// Alias declares logical as storable using target's physical type. target
// must be a supported type.
func (a *Adapter) Alias(logical, target string) error {
	logical, target = strings.ToLower(logical), strings.ToLower(target)
	if !a.SupportsType(target) {
		return fmt.Errorf("%w: alias target %q on %s", ErrUnsupportedType, target, a.dialect)
	}
	if resolved, _ := a.resolve(target); resolved == logical {
		return fmt.Errorf("alias %s → %s is circular", logical, target)
	}
	a.aliases[logical] = target
	return nil
}

// Aliases returns a copy of the alias table.
func (a *Adapter) Aliases() map[string]string {
	out := make(map[string]string, len(a.aliases))
	for k, v := range a.aliases {
		out[k] = v
	}
	return out
}

// SupportsType reports whether logical is a type or an alias of one.
func (a *Adapter) SupportsType(logical string) bool {
	_, ok := a.PhysicalType(logical)
	return ok
}

// PhysicalType returns the physical type a logical type is stored as.
func (a *Adapter) PhysicalType(logical string) (string, bool) {
	resolved, ok := a.resolve(strings.ToLower(logical))
	if !ok {
		return "", false
	}
	physical, ok := a.types[resolved]
	return physical, ok
}

// ColumnTypes returns every supported logical type, aliases included,
// sorted.
func (a *Adapter) ColumnTypes() []string {
	out := make([]string, 0, len(a.types)+len(a.aliases))
	for t := range a.types {
		out = append(out, t)
	}
	for t := range a.aliases {
		if _, ok := a.types[t]; !ok {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func (a *Adapter) resolve(logical string) (string, bool) {
	seen := map[string]bool{}
	for {
		target, ok := a.aliases[logical]
		if !ok {
			_, known := a.types[logical]
			return logical, known
		}
		if seen[logical] {
			return "", false
		}
		seen[logical] = true
		logical = target
	}
}
