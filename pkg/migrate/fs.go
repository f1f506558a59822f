package migrate

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/apptest/pkg/database"
)

// RewriteSQL replaces every alias type in query with the physical type of
// its target, dropping the alias's parenthesized arguments:
// ENUM('a','b') becomes TEXT and DECIMAL(10,2) becomes REAL on the test
// SQLite adapter. Only words in type position are rewritten: after the
// name of a column definition, or after AS and TYPE. Columns and tables
// named like an alias, string literals, quoted identifiers and comments
// are left untouched.
func (a *Adapter) RewriteSQL(query string) string {
	if len(a.aliases) == 0 {
		return query
	}

	r := rewriter{adapter: a}
	database.ScanSQL(query, func(chunk string, code bool) {
		if code {
			r.code(chunk)
		} else {
			r.other(chunk)
		}
	})
	r.flushHold()
	return r.out.String()
}

// rewriter carries state across chunks: an alias's argument list usually
// contains string literals, which arrive as separate chunks.
type rewriter struct {
	adapter *Adapter
	out     strings.Builder
	depth   int             // > 0 while skipping an alias argument list
	pending bool            // an alias was just written; "(" may follow
	hold    strings.Builder // whitespace seen while pending

	prev, prev2 token // last two significant tokens
}

// token is a word, quoted identifier, literal or punctuation character.
// The zero token marks the start of the input.
type token struct {
	text  string // upper-cased for words
	ident bool   // a word or a quoted identifier
}

// Tokens that may precede a column name in a column definition.
var columnStarts = map[string]bool{"": true, "(": true, ",": true, ";": true, "COLUMN": true, "ADD": true, "MODIFY": true}

func (r *rewriter) push(t token) {
	r.prev2, r.prev = r.prev, t
}

func (r *rewriter) typePosition() bool {
	if !r.prev.ident {
		return false
	}
	if r.prev.text == "AS" || r.prev.text == "TYPE" {
		return true
	}
	return columnStarts[r.prev2.text]
}

func (r *rewriter) other(chunk string) {
	if r.depth > 0 {
		return
	}
	r.flushHold()
	r.out.WriteString(chunk)

	switch chunk[0] {
	case '"', '`':
		r.push(token{text: chunk, ident: true})
	case '\'':
		r.push(token{text: chunk})
	}
}

func (r *rewriter) flushHold() {
	r.out.WriteString(r.hold.String())
	r.hold.Reset()
	r.pending = false
}

func (r *rewriter) code(chunk string) {
	i := 0
	for i < len(chunk) {
		c := chunk[i]

		switch {
		case r.depth > 0:
			if c == '(' {
				r.depth++
			} else if c == ')' {
				r.depth--
			}
			i++
			continue
		case r.pending && isSpace(c):
			r.hold.WriteByte(c)
			i++
			continue
		case r.pending && c == '(':
			r.hold.Reset()
			r.pending = false
			r.depth = 1
			i++
			continue
		case r.pending:
			r.flushHold()
		}

		if !isWordByte(c) {
			r.out.WriteByte(c)
			if !isSpace(c) {
				r.push(token{text: string(c)})
			}
			i++
			continue
		}

		j := i
		for j < len(chunk) && isWordByte(chunk[j]) {
			j++
		}
		word := chunk[i:j]
		if physical, ok := r.alias(word); ok && r.typePosition() {
			r.out.WriteString(physical)
			r.pending = true
		} else {
			r.out.WriteString(word)
		}
		r.push(token{text: strings.ToUpper(word), ident: true})
		i = j
	}
}

func (r *rewriter) alias(word string) (string, bool) {
	lower := strings.ToLower(word)
	if _, ok := r.adapter.aliases[lower]; !ok {
		return "", false
	}
	return r.adapter.PhysicalType(lower)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// FS wraps fsys so every .sql file read through it is passed through
// RewriteSQL. Adapters without aliases return fsys unchanged.
func (a *Adapter) FS(fsys fs.FS) fs.FS {
	if len(a.aliases) == 0 {
		return fsys
	}
	return &rewriteFS{fsys: fsys, rewrite: a.RewriteSQL}
}

type rewriteFS struct {
	fsys    fs.FS
	rewrite func(string) string
}

var (
	_ fs.ReadFileFS = (*rewriteFS)(nil)
	_ fs.ReadDirFS  = (*rewriteFS)(nil)
)

func (r *rewriteFS) Open(name string) (fs.File, error) {
	if !isSQLFile(name) {
		return r.fsys.Open(name)
	}
	info, err := fs.Stat(r.fsys, name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return r.fsys.Open(name)
	}

	data, err := r.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &memFile{
		Reader: bytes.NewReader(data),
		info:   sizedInfo{FileInfo: info, size: int64(len(data))},
	}, nil
}

func (r *rewriteFS) ReadFile(name string) ([]byte, error) {
	data, err := fs.ReadFile(r.fsys, name)
	if err != nil || !isSQLFile(name) {
		return data, err
	}
	return []byte(r.rewrite(string(data))), nil
}

func (r *rewriteFS) ReadDir(name string) ([]fs.DirEntry, error) {
	return fs.ReadDir(r.fsys, name)
}

func isSQLFile(name string) bool {
	return strings.EqualFold(path.Ext(name), ".sql")
}

type memFile struct {
	*bytes.Reader
	info fs.FileInfo
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *memFile) Close() error               { return nil }

type sizedInfo struct {
	fs.FileInfo
	size int64
}

func (i sizedInfo) Size() int64 { return i.size }

// mergeFS presents the top-level files of several directories as one flat
// directory, so migrations from every path are ordered together.
func mergeFS(dirs []fs.FS) (fs.FS, error) {
	if len(dirs) == 1 {
		return dirs[0], nil
	}

	m := &mergedFS{owners: make(map[string]fs.FS)}
	for _, dir := range dirs {
		entries, err := fs.ReadDir(dir, ".")
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, dup := m.owners[e.Name()]; dup {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateMigration, e.Name())
			}
			m.owners[e.Name()] = dir
			m.entries = append(m.entries, e)
		}
	}
	sort.Slice(m.entries, func(i, j int) bool { return m.entries[i].Name() < m.entries[j].Name() })
	return m, nil
}

type mergedFS struct {
	owners  map[string]fs.FS
	entries []fs.DirEntry
}

var _ fs.ReadDirFS = (*mergedFS)(nil)

func (m *mergedFS) Open(name string) (fs.File, error) {
	if name == "." {
		return &mergedDir{entries: m.entries}, nil
	}
	owner, ok := m.owners[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return owner.Open(name)
}

func (m *mergedFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return append([]fs.DirEntry(nil), m.entries...), nil
}

type mergedDir struct {
	entries []fs.DirEntry
	offset  int
}

func (d *mergedDir) Stat() (fs.FileInfo, error) { return dirInfo{}, nil }
func (d *mergedDir) Close() error               { return nil }

func (d *mergedDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: ".", Err: fs.ErrInvalid}
}

func (d *mergedDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if n > len(rest) {
		n = len(rest)
	}
	d.offset += n
	return rest[:n], nil
}

type dirInfo struct{}

func (dirInfo) Name() string       { return "." }
func (dirInfo) Size() int64        { return 0 }
func (dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (dirInfo) ModTime() time.Time { return time.Time{} }
func (dirInfo) IsDir() bool        { return true }
func (dirInfo) Sys() any           { return nil }
