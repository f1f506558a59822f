package database

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Literal is a raw SQL fragment substituted for a ? placeholder. Its own ?
// placeholders are filled from Args.
type Literal struct {
	SQL  string
	Args []any
}

// NewLiteral creates a Literal.
func NewLiteral(sql string, args ...any) Literal {
	return Literal{SQL: sql, Args: args}
}

// Preprocessor expands arguments into SQL before execution:
//
//   - Literal values are inlined with their own arguments.
//   - Slices become comma separated placeholder lists; an empty slice becomes
//     NULL so "IN (?)" matches nothing.
//   - map[string]any becomes "(a, b) VALUES (?, ?)" after INSERT, "a = ? AND
//     b = ?" after WHERE/AND/OR/ON and "a = ?, b = ?" elsewhere. Keys are
//     sorted.
//
// Placeholders inside string literals, quoted identifiers and comments are
// left alone. The result is rebound to the driver's placeholder style.
type Preprocessor struct {
	driver Driver
}

// NewPreprocessor creates a Preprocessor for d.
func NewPreprocessor(d Driver) *Preprocessor {
	return &Preprocessor{driver: d}
}

// Process expands args into query.
func (p *Preprocessor) Process(query string, args []any) (string, []any, error) {
	expanded, out, err := p.expand(query, args)
	if err != nil {
		return "", nil, err
	}
	return p.driver.Rebind(expanded), out, nil
}

func (p *Preprocessor) expand(query string, args []any) (string, []any, error) {
	var (
		b    strings.Builder
		out  = make([]any, 0, len(args))
		next int
		err  error
	)

	ScanSQL(query, func(chunk string, code bool) {
		if err != nil {
			return
		}
		if !code {
			b.WriteString(chunk)
			return
		}
		for i := 0; i < len(chunk); i++ {
			if chunk[i] != '?' {
				b.WriteByte(chunk[i])
				continue
			}
			if next >= len(args) {
				err = fmt.Errorf("%w: more placeholders than the %d arguments given", ErrArgumentCount, len(args))
				return
			}
			var (
				frag     string
				fragArgs []any
			)
			frag, fragArgs, err = p.format(args[next], b.String())
			if err != nil {
				return
			}
			next++
			b.WriteString(frag)
			out = append(out, fragArgs...)
		}
	})
	if err != nil {
		return "", nil, err
	}
	if next < len(args) {
		return "", nil, fmt.Errorf("%w: %d arguments left without a placeholder", ErrArgumentCount, len(args)-next)
	}
	return b.String(), out, nil
}

func (p *Preprocessor) format(arg any, prefix string) (string, []any, error) {
	switch v := arg.(type) {
	case nil:
		return "?", []any{nil}, nil
	case Literal:
		return p.expand(v.SQL, v.Args)
	case *Literal:
		return p.expand(v.SQL, v.Args)
	case []byte, time.Time, driver.Valuer:
		return "?", []any{v}, nil
	case map[string]any:
		return p.formatMap(v, prefix)
	}

	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return "?", []any{arg}, nil
	}
	if rv.Len() == 0 {
		return "NULL", nil, nil
	}

	parts := make([]string, 0, rv.Len())
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		frag, fragArgs, err := p.format(rv.Index(i).Interface(), prefix)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		out = append(out, fragArgs...)
	}
	return strings.Join(parts, ", "), out, nil
}

func (p *Preprocessor) formatMap(m map[string]any, prefix string) (string, []any, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, 0, len(keys))
	vals := make([]string, 0, len(keys))
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		frag, fragArgs, err := p.format(m[k], prefix)
		if err != nil {
			return "", nil, err
		}
		cols = append(cols, p.driver.QuoteIdentifier(k))
		vals = append(vals, frag)
		out = append(out, fragArgs...)
	}

	switch mapMode(prefix) {
	case "insert":
		return "(" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")", out, nil
	case "where":
		pairs := make([]string, len(cols))
		for i := range cols {
			pairs[i] = cols[i] + " = " + vals[i]
		}
		return strings.Join(pairs, " AND "), out, nil
	default:
		pairs := make([]string, len(cols))
		for i := range cols {
			pairs[i] = cols[i] + " = " + vals[i]
		}
		return strings.Join(pairs, ", "), out, nil
	}
}

func mapMode(prefix string) string {
	upper := strings.ToUpper(strings.TrimSpace(prefix))
	if strings.HasPrefix(upper, "INSERT") && !strings.Contains(upper, " SET") && !strings.Contains(upper, " VALUES") {
		return "insert"
	}
	fields := strings.Fields(upper)
	if len(fields) > 0 {
		switch fields[len(fields)-1] {
		case "WHERE", "AND", "OR", "ON", "HAVING":
			return "where"
		}
	}
	return "set"
}

// ScanSQL splits query into code and non-code chunks. Non-code chunks are
// quoted strings, quoted identifiers and comments.
func ScanSQL(query string, fn func(chunk string, code bool)) {
	start, i := 0, 0
	for i < len(query) {
		c := query[i]
		var end int
		switch {
		case c == '\'' || c == '"' || c == '`':
			end = closingQuote(query, i, c)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			if idx := strings.IndexByte(query[i:], '\n'); idx >= 0 {
				end = i + idx + 1
			} else {
				end = len(query)
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			if idx := strings.Index(query[i+2:], "*/"); idx >= 0 {
				end = i + 2 + idx + 2
			} else {
				end = len(query)
			}
		default:
			i++
			continue
		}

		if i > start {
			fn(query[start:i], true)
		}
		fn(query[i:end], false)
		i, start = end, end
	}
	if start < len(query) {
		fn(query[start:], true)
	}
}

// closingQuote returns the index just past the quote closing the one at i.
// Doubled quotes are escapes.
func closingQuote(s string, i int, q byte) int {
	for j := i + 1; j < len(s); j++ {
		if s[j] != q {
			continue
		}
		if j+1 < len(s) && s[j+1] == q {
			j++
			continue
		}
		return j + 1
	}
	return len(s)
}
