package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/phrazzld/apptest/pkg/database"
)

// UserRecord is a stored user as read by a UserProvider.
type UserRecord struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	// Data holds every column of the row.
	Data map[string]any
}

// UserProvider looks users up by username.
type UserProvider interface {
	FindByUsername(ctx context.Context, username string) (*UserRecord, error)
}

// Default table layout read by TableUserProvider.
const (
	DefaultUserTable      = "users"
	DefaultIDColumn       = "id"
	DefaultUsernameColumn = "username"
	DefaultPasswordColumn = "password"
	DefaultRoleColumn     = "role"
)

// TableUserProvider reads users from a table through a database.Connection.
// The role column may hold one role or a comma separated list.
type TableUserProvider struct {
	conn database.Connection

	Table          string
	IDColumn       string
	UsernameColumn string
	PasswordColumn string
	// RoleColumn may be empty when the table has no roles.
	RoleColumn string
}

var _ UserProvider = (*TableUserProvider)(nil)

// NewTableUserProvider creates a provider over the default users table.
func NewTableUserProvider(conn database.Connection) *TableUserProvider {
	return &TableUserProvider{
		conn:           conn,
		Table:          DefaultUserTable,
		IDColumn:       DefaultIDColumn,
		UsernameColumn: DefaultUsernameColumn,
		PasswordColumn: DefaultPasswordColumn,
		RoleColumn:     DefaultRoleColumn,
	}
}

// FindByUsername implements UserProvider.
func (p *TableUserProvider) FindByUsername(ctx context.Context, username string) (*UserRecord, error) {
	row, err := p.conn.Table(p.Table).
		WhereMap(map[string]any{p.UsernameColumn: username}).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %q", ErrUserNotFound, username)
	}

	data := row.Map()
	rec := &UserRecord{
		ID:           stringValue(data[p.IDColumn]),
		Username:     stringValue(data[p.UsernameColumn]),
		PasswordHash: stringValue(data[p.PasswordColumn]),
		Data:         data,
	}
	if p.RoleColumn != "" {
		for _, role := range strings.Split(stringValue(data[p.RoleColumn]), ",") {
			if role = strings.TrimSpace(role); role != "" {
				rec.Roles = append(rec.Roles, role)
			}
		}
	}
	return rec, nil
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(s)
	}
}
