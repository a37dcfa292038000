package repo_test

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/pkordes/transit-dispatch/testutil"
)

// TestMain brings the test database up to the latest schema once per test
// binary. Without TEST_DATABASE_URL every test in the package skips itself.
func TestMain(m *testing.M) {
	if dsn := os.Getenv(testutil.DSNEnv); dsn != "" {
		if err := testutil.MigrateUp(context.Background(), dsn); err != nil {
			log.Fatalf("TestMain: %v", err)
		}
	}
	os.Exit(m.Run())
}
