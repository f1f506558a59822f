package database

import (
	"context"
	"fmt"
	"strings"
)

// Row is one fetched row: column names with their values, in select order.
type Row struct {
	columns []string
	values  []any
}

// NewRow creates a Row. columns and values must have the same length.
func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

// Columns returns the column names.
func (r Row) Columns() []string { return r.columns }

// Values returns the column values.
func (r Row) Values() []any { return r.values }

// Get returns the value of column and whether the column exists.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Map returns the row as a column → value map.
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// ResultSet is the materialized outcome of one executed statement.
type ResultSet struct {
	query        string
	args         []any
	columns      []string
	rows         []Row
	cursor       int
	rowsAffected int64
	lastInsertID int64
}

// Query returns the executed SQL.
func (rs *ResultSet) Query() string { return rs.query }

// Args returns the arguments the SQL was executed with.
func (rs *ResultSet) Args() []any { return rs.args }

// ColumnNames returns the result columns; empty for statements without rows.
func (rs *ResultSet) ColumnNames() []string { return rs.columns }

// RowCount returns the number of fetched rows for row returning statements
// and the number of affected rows otherwise.
func (rs *ResultSet) RowCount() int64 {
	if rs.columns != nil {
		return int64(len(rs.rows))
	}
	return rs.rowsAffected
}

// LastInsertID returns the id reported by the driver for the statement.
func (rs *ResultSet) LastInsertID() int64 { return rs.lastInsertID }

// Fetch returns the next row, or nil when the rows are exhausted.
func (rs *ResultSet) Fetch() *Row {
	if rs.cursor >= len(rs.rows) {
		return nil
	}
	row := rs.rows[rs.cursor]
	rs.cursor++
	return &row
}

// FetchField returns the first column of the next row, or nil.
func (rs *ResultSet) FetchField() any {
	row := rs.Fetch()
	if row == nil || len(row.values) == 0 {
		return nil
	}
	return row.values[0]
}

// FetchFields returns the values of the next row, or nil.
func (rs *ResultSet) FetchFields() []any {
	row := rs.Fetch()
	if row == nil {
		return nil
	}
	return row.values
}

// FetchAll returns all remaining rows.
func (rs *ResultSet) FetchAll() []Row {
	rows := rs.rows[rs.cursor:]
	rs.cursor = len(rs.rows)
	return rows
}

// FetchPairs returns the remaining rows as key → value. Empty key uses the
// first column, empty value the second one (or the key column when the
// result has a single column). Keys are formatted with fmt.Sprint.
func (rs *ResultSet) FetchPairs(key, value string) (map[string]any, error) {
	if len(rs.columns) == 0 {
		return map[string]any{}, nil
	}
	if key == "" {
		key = rs.columns[0]
	}
	if value == "" {
		value = rs.columns[0]
		if len(rs.columns) > 1 {
			value = rs.columns[1]
		}
	}

	pairs := make(map[string]any)
	for _, row := range rs.FetchAll() {
		k, ok := row.Get(key)
		if !ok {
			return nil, fmt.Errorf("column %q is not in the result set", key)
		}
		v, ok := row.Get(value)
		if !ok {
			return nil, fmt.Errorf("column %q is not in the result set", value)
		}
		pairs[keyString(k)] = v
	}
	return pairs, nil
}

func keyString(v any) string {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(v)
}

// execute runs query on h and materializes the outcome.
func execute(ctx context.Context, h Handle, query string, args []any) (*ResultSet, error) {
	rs := &ResultSet{query: query, args: args}

	if !returnsRows(query) {
		res, err := h.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		// Not every driver reports both values; missing ones stay zero.
		rs.rowsAffected, _ = res.RowsAffected()
		rs.lastInsertID, _ = res.LastInsertId()
		return rs, nil
	}

	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs.columns = cols

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rs.rows = append(rs.rows, Row{columns: cols, values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

var rowKeywords = map[string]bool{
	"SELECT":  true,
	"WITH":    true,
	"PRAGMA":  true,
	"VALUES":  true,
	"SHOW":    true,
	"EXPLAIN": true,
	"TABLE":   true,
}

// returnsRows reports whether query produces a row set.
func returnsRows(query string) bool {
	var code strings.Builder
	ScanSQL(query, func(chunk string, isCode bool) {
		if isCode {
			code.WriteString(chunk)
		} else if !strings.HasPrefix(chunk, "--") && !strings.HasPrefix(chunk, "/*") {
			code.WriteString(" '' ")
		} else {
			code.WriteString(" ")
		}
	})

	upper := strings.ToUpper(code.String())
	fields := strings.Fields(strings.TrimLeft(strings.TrimSpace(upper), "("))
	if len(fields) == 0 {
		return false
	}
	if rowKeywords[fields[0]] {
		return true
	}
	for _, f := range fields {
		if f == "RETURNING" {
			return true
		}
	}
	return false
}
