// Package testcase is the base for integration tests of an application
// wired through a container.Container.
//
// A Case migrates the schema into the database the application's
// connection already holds, swaps test doubles into the container, runs
// presenters with simulated GET and POST requests, and asserts on tables
// and responses:
//
//	tc := testcase.New(t, c, testcase.WithMigrationPaths("testdata/migrations"))
//	tc.Migrate()
//	tc.LogAs("ann", "secret").Get("Home", "default", nil).AssertContains("Welcome")
//	tc.AssertDatabaseHas("users", map[string]any{"username": "ann"})
//
// The configuration comes from config.Load (APPTEST_ variables, a
// .env.testing file and an apptest file in the working directory) unless
// WithConfig supplies one. Configuration and SQL errors fail the test
// immediately.
package testcase
