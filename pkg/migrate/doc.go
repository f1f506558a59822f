// Package migrate runs goose migrations and seeders for a configured
// environment.
//
// Migrations are plain goose SQL files. They may use column types the
// target engine lacks, such as ENUM or DECIMAL, as long as the dialect's
// Adapter declares them as aliases: the migration directory is read through
// Adapter.FS, which rewrites alias types into physical ones before goose
// parses the file. The adapter used for a dialect comes from an
// AdapterFactory, so test harnesses can swap in NewTestSQLiteAdapter.
package migrate
