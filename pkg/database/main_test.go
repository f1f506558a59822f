package database_test

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// Pools closed in t.Cleanup may still be winding down their opener.
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}
