// Package database is the data layer the application under test talks to:
// a Connection with query, fetch and transaction shortcuts, result sets,
// a placeholder preprocessor, dialect drivers and a fluent table API.
//
// Two Connection implementations exist. Conn is the real one: it opens and
// owns a *sql.DB. FakeConn is a shim over a handle somebody else already
// opened. It never opens or closes a physical connection, and its DB method
// replays the adopted handle through database/sql/driver so tools that insist
// on owning a *sql.DB (the migration runner) end up on the same connection,
// and therefore the same in-memory database and transaction, as the test.
package database
