package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/vrsandeep/mango-pages/internal/assets"
	"github.com/vrsandeep/mango-pages/internal/db"
)

// SetupTestDB creates a throwaway SQLite database in the test's temp dir and
// applies all migrations. It returns the database connection, ready for use in tests.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Attach a cleanup function to automatically close the DB when the test completes.
	t.Cleanup(func() {
		database.Close()
	})

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	return database
}
