// Package testdb opens databases for tests.
//
// By default every call to Open returns a private in-memory SQLite database
// limited to one connection, so the schema created by a test is visible to
// every statement of that test. When DATABASE_URL (or APPTEST_TEST_DB_URL)
// is set, Open connects to that PostgreSQL server instead and tests can use
// WithTx to keep their changes isolated:
//
//	func TestSomething(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        // changes are rolled back when fn returns
//	    })
//	}
package testdb
