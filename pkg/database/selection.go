package database

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Selection is a fluent query over one table. Conditions accumulate with
// AND; nothing runs until a terminal method (Count, Fetch, Insert...) is
// called.
type Selection struct {
	conn  Connection
	table string
	where []condition
	order []string
	limit int
}

// condition is a WHERE term. When column is set, sql follows the quoted
// column name.
type condition struct {
	column string
	sql    string
	args   []any
}

func newSelection(conn Connection, table string) *Selection {
	return &Selection{conn: conn, table: table}
}

// Where adds a raw condition; ? placeholders are filled from args.
func (s *Selection) Where(cond string, args ...any) *Selection {
	s.where = append(s.where, condition{sql: cond, args: args})
	return s
}

// WhereMap adds one equality condition per entry. A nil value becomes IS
// NULL and a slice becomes IN (...).
func (s *Selection) WhereMap(conds map[string]any) *Selection {
	keys := make([]string, 0, len(conds))
	for k := range conds {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := conds[k]
		switch {
		case v == nil:
			s.where = append(s.where, condition{column: k, sql: " IS NULL"})
		case isList(v):
			s.where = append(s.where, condition{column: k, sql: " IN (?)", args: []any{v}})
		default:
			s.where = append(s.where, condition{column: k, sql: " = ?", args: []any{v}})
		}
	}
	return s
}

// Order appends an ORDER BY term such as "name DESC".
func (s *Selection) Order(term string) *Selection {
	s.order = append(s.order, term)
	return s
}

// Limit caps the number of fetched rows; 0 means no limit.
func (s *Selection) Limit(n int) *Selection {
	s.limit = n
	return s
}

// Count returns the number of matching rows.
func (s *Selection) Count(ctx context.Context) (int64, error) {
	query, args, err := s.build(ctx, "SELECT COUNT(*) FROM ", false)
	if err != nil {
		return 0, err
	}
	v, err := s.conn.FetchField(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return toInt64(v)
}

// Exists reports whether at least one row matches.
func (s *Selection) Exists(ctx context.Context) (bool, error) {
	n, err := s.Count(ctx)
	return n > 0, err
}

// Fetch returns the first matching row, or nil.
func (s *Selection) Fetch(ctx context.Context) (*Row, error) {
	limit := s.limit
	s.limit = 1
	defer func() { s.limit = limit }()

	query, args, err := s.build(ctx, "SELECT * FROM ", true)
	if err != nil {
		return nil, err
	}
	return s.conn.Fetch(ctx, query, args...)
}

// FetchAll returns every matching row.
func (s *Selection) FetchAll(ctx context.Context) ([]Row, error) {
	query, args, err := s.build(ctx, "SELECT * FROM ", true)
	if err != nil {
		return nil, err
	}
	return s.conn.FetchAll(ctx, query, args...)
}

// Insert adds one row and returns the generated id as reported by the
// driver.
func (s *Selection) Insert(ctx context.Context, values map[string]any) (int64, error) {
	d, err := s.conn.Driver(ctx)
	if err != nil {
		return 0, err
	}
	rs, err := s.conn.Query(ctx, "INSERT INTO "+d.QuoteIdentifier(s.table)+" ?", values)
	if err != nil {
		return 0, err
	}
	return rs.LastInsertID(), nil
}

// Delete removes every matching row and returns how many were removed.
func (s *Selection) Delete(ctx context.Context) (int64, error) {
	query, args, err := s.build(ctx, "DELETE FROM ", false)
	if err != nil {
		return 0, err
	}
	rs, err := s.conn.QueryArgs(ctx, query, args)
	if err != nil {
		return 0, err
	}
	return rs.RowCount(), nil
}

func (s *Selection) build(ctx context.Context, head string, withTail bool) (string, []any, error) {
	d, err := s.conn.Driver(ctx)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString(head)
	b.WriteString(d.QuoteIdentifier(s.table))

	var args []any
	if len(s.where) > 0 {
		parts := make([]string, len(s.where))
		for i, c := range s.where {
			cond := c.sql
			if c.column != "" {
				cond = d.QuoteIdentifier(c.column) + cond
			}
			parts[i] = "(" + cond + ")"
			args = append(args, c.args...)
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(parts, " AND "))
	}

	if withTail {
		if len(s.order) > 0 {
			b.WriteString(" ORDER BY ")
			b.WriteString(strings.Join(s.order, ", "))
		}
		if s.limit > 0 {
			b.WriteString(" LIMIT ")
			b.WriteString(strconv.Itoa(s.limit))
		}
	}
	return b.String(), args, nil
}

func isList(v any) bool {
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case string:
		return strconv.ParseInt(n, 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}
