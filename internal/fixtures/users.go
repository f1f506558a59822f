// Package fixtures builds random test data for this module's own tests.
package fixtures

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Pallinder/go-randomdata"
	"github.com/phrazzld/apptest/pkg/auth"
	"github.com/phrazzld/apptest/pkg/database"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// UsersTable is the SQLite DDL of the table User rows are written to.
const UsersTable = `CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL,
	password TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'user',
	balance REAL NOT NULL DEFAULT 0
)`

// User is a users table row plus the plaintext password it was hashed from.
type User struct {
	ID           int64
	Username     string
	Email        string
	Password     string
	PasswordHash string
	Role         string
	Balance      float64
}

// Row returns the columns InsertUser writes.
func (u User) Row() map[string]any {
	return map[string]any{
		"username": u.Username,
		"email":    u.Email,
		"password": u.PasswordHash,
		"role":     u.Role,
		"balance":  u.Balance,
	}
}

// UserOption customizes NewUser.
type UserOption func(*User)

// WithUsername fixes the username.
func WithUsername(name string) UserOption {
	return func(u *User) { u.Username = name }
}

// WithPassword fixes the plaintext password.
func WithPassword(password string) UserOption {
	return func(u *User) { u.Password = password }
}

// WithRole sets the role.
func WithRole(role string) UserOption {
	return func(u *User) { u.Role = role }
}

// NewUser returns a random user with role "user". The password hash uses
// bcrypt.MinCost.
func NewUser(t testing.TB, opts ...UserOption) User {
	t.Helper()

	name := strings.ToLower(randomdata.SillyName())
	u := User{
		Username: fmt.Sprintf("%s%d", name, randomdata.Number(1000, 9999)),
		Email:    randomdata.Email(),
		Password: randomdata.SillyName() + randomdata.SillyName(),
		Role:     "user",
		Balance:  float64(randomdata.Number(0, 100000)) / 100,
	}
	for _, opt := range opts {
		opt(&u)
	}

	hash, err := auth.HashPassword(u.Password, bcrypt.MinCost)
	require.NoError(t, err)
	u.PasswordHash = hash
	return u
}

// InsertUser writes u to the users table through conn and returns it with
// its generated id.
func InsertUser(t testing.TB, conn database.Connection, u User) User {
	t.Helper()

	id, err := conn.Table("users").Insert(context.Background(), u.Row())
	require.NoError(t, err)
	u.ID = id
	return u
}

// InsertUsers inserts n random users.
func InsertUsers(t testing.TB, conn database.Connection, n int, opts ...UserOption) []User {
	t.Helper()

	users := make([]User, 0, n)
	for range n {
		users = append(users, InsertUser(t, conn, NewUser(t, opts...)))
	}
	return users
}
