package testutil

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/academia/storage/database"
)

const testDatabaseURLEnv = "TEST_DATABASE_URL"

// PrepareDB opens the Postgres database at TEST_DATABASE_URL, migrates it and empties every table.
// The test is skipped when the variable is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	rawURL := os.Getenv(testDatabaseURLEnv)
	if rawURL == "" {
		t.Skipf("%s is not set", testDatabaseURLEnv)
	}

	db, err := database.OpenURL(rawURL)
	if err != nil {
		t.Fatalf("OpenURL() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db); err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE users, courses, course_students, enrollments CASCADE"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}
