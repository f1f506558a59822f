package testcase

import (
	"github.com/phrazzld/apptest/internal/platform/logger"
	"github.com/phrazzld/apptest/internal/redact"
	"github.com/phrazzld/apptest/pkg/container"
	"github.com/phrazzld/apptest/pkg/database"
	"github.com/phrazzld/apptest/pkg/migrate"
	"github.com/stretchr/testify/require"
)

// Nominal parameters of the connection shim Migrate installs.
const (
	ShimDSN  = ":memory:"
	ShimUser = "root"
)

// Connection returns the application's data-layer connection: the service
// registered under the configured connection service name, or the only
// database.Connection in the container. When the container has none, a
// connection to the configured database is opened and registered under
// the configured name. After Migrate it is the shim.
func (c *Case) Connection() database.Connection {
	c.t.Helper()
	conn, err := container.Get[database.Connection](c.container, c.connectionName())
	require.NoError(c.t, err)
	return conn
}

func (c *Case) connectionName() string {
	c.t.Helper()
	if c.connName != "" {
		return c.connName
	}

	name := c.cfg.Database.ConnectionService
	if !c.container.HasService(name) {
		switch names := container.FindByType[database.Connection](c.container); len(names) {
		case 0:
			c.openConnection(name)
		case 1:
			name = names[0]
		default:
			_, err := container.Resolve[database.Connection](c.container)
			require.NoError(c.t, err)
			return name
		}
	}
	c.connName = name
	return name
}

// openConnection registers a connection to the configured database under
// name. It is closed when the test ends.
func (c *Case) openConnection(name string) {
	c.t.Helper()
	db := c.cfg.Database
	conn := database.NewConn(db.Driver, db.DSN, nil)
	require.NoError(c.t, conn.Connect(c.ctx), "connect to %s", redact.String(db.DSN))
	c.t.Cleanup(func() { _ = conn.Close() })
	require.NoError(c.t, container.Register[database.Connection](c.container, name, conn))

	logger.FromContext(c.ctx).Debug("harness connection opened",
		"service", name,
		"driver", db.Driver,
		"dsn", redact.String(db.DSN))
}

// Shim returns the connection shim installed by Migrate or Seed, or nil.
func (c *Case) Shim() *database.FakeConn { return c.fake }

// Migrate installs the connection shim and applies every migration from
// the configured paths to the database the application connection holds.
func (c *Case) Migrate() *Case {
	c.t.Helper()
	m := c.Migrator()
	require.NoError(c.t, m.Migrate(c.ctx, c.cfg.Migrations.Environment))
	return c
}

// Seed runs the named seeder, or every seeder when name is empty, against
// the same database as Migrate.
func (c *Case) Seed(name string) *Case {
	c.t.Helper()
	m := c.Migrator()
	require.NoError(c.t, m.Seed(c.ctx, c.cfg.Migrations.Environment, name))
	return c
}

// Migrator returns the migrator bound to the connection shim, installing
// the shim on first use.
//
// The application connection is asked for its current handle (its open
// transaction, if any), a FakeConn adopting that handle replaces the
// connection in the container, and the migrator runs on the shim's *sql.DB. SQLite migrations are read through
// NewTestSQLiteAdapter, so ENUM and DECIMAL columns are accepted.
func (c *Case) Migrator() *migrate.Migrator {
	c.t.Helper()
	if c.migrator != nil {
		return c.migrator
	}
	log := logger.FromContext(c.ctx)

	c.adapters.RegisterAdapter(migrate.DialectSQLite, migrate.NewTestSQLiteAdapter)

	name := c.connectionName()
	conn := c.Connection()
	handle, err := conn.CurrentHandle(c.ctx)
	require.NoError(c.t, err)
	driver, err := conn.Driver(c.ctx)
	require.NoError(c.t, err)

	fake := database.NewFakeConn(handle, ShimDSN, ShimUser, "", map[string]any{
		database.OptionDriver: driver.Name(),
	})
	require.NoError(c.t, fake.Connect(c.ctx))
	require.NoError(c.t, c.container.Replace(name, fake))
	c.fake = fake
	log.Debug("connection shim installed", "service", name, "driver", driver.Name())

	opts := []migrate.Option{migrate.WithAdapterFactory(c.adapters)}
	if c.fsys != nil {
		opts = append(opts, migrate.WithFS(c.fsys))
	}
	m, err := migrate.New(fake.DB(), migrate.Config{
		Environment:    c.cfg.Migrations.Environment,
		Dialect:        driver.Name(),
		MigrationPaths: c.cfg.Migrations.Paths,
		SeedPath:       c.cfg.Migrations.SeedPath,
		TableName:      c.cfg.Migrations.Table,
	}, opts...)
	require.NoError(c.t, err)
	for n, s := range c.seeders {
		m.RegisterSeeder(n, s)
	}

	c.migrator = m
	return m
}

// CountRows returns the number of rows in table matching where. Keys of
// where are columns; nil values match NULL and slices match any element.
func (c *Case) CountRows(table string, where map[string]any) int64 {
	c.t.Helper()
	n, err := c.Connection().Table(table).WhereMap(where).Count(c.ctx)
	require.NoError(c.t, err)
	return n
}

// AssertDatabaseCount fails the test unless table holds exactly expected
// rows matching where.
func (c *Case) AssertDatabaseCount(table string, expected int, where map[string]any) *Case {
	c.t.Helper()
	n := c.CountRows(table, where)
	require.Equalf(c.t, int64(expected), n, "rows in %s matching %v", table, where)
	return c
}

// AssertDatabaseEmpty fails the test unless table has no rows.
func (c *Case) AssertDatabaseEmpty(table string) *Case {
	c.t.Helper()
	return c.AssertDatabaseCount(table, 0, nil)
}

// AssertDatabaseHas fails the test unless at least one row of table
// matches where.
func (c *Case) AssertDatabaseHas(table string, where map[string]any) *Case {
	c.t.Helper()
	n := c.CountRows(table, where)
	require.Positivef(c.t, n, "expected a row in %s matching %v", table, where)
	return c
}

// AssertDatabaseMissing fails the test if any row of table matches where.
func (c *Case) AssertDatabaseMissing(table string, where map[string]any) *Case {
	c.t.Helper()
	n := c.CountRows(table, where)
	require.Zerof(c.t, n, "expected no row in %s matching %v", table, where)
	return c
}
