package db_test

import (
	"path/filepath"
	"testing"

	"github.com/vrsandeep/mango-pages/internal/assets"
	"github.com/vrsandeep/mango-pages/internal/db"
)

func TestInitDBAndMigrations(t *testing.T) {
	database, err := db.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	defer database.Close()

	var foreignKeysEnabled int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeysEnabled); err != nil {
		t.Fatalf("Failed to check foreign keys status: %v", err)
	}
	if foreignKeysEnabled != 1 {
		t.Errorf("Foreign keys should be enabled, got: %d", foreignKeysEnabled)
	}

	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	// Running them twice must be a no-op.
	if err := db.RunMigrations(database, assets.MigrationsFS); err != nil {
		t.Fatalf("Second RunMigrations failed: %v", err)
	}

	_, err = database.Exec("INSERT INTO items (id, source, url, page_count) VALUES (?, ?, ?, ?)", "42", 0, "https://example.com/g/42/", 10)
	if err != nil {
		t.Fatalf("Failed to insert into items table: %v", err)
	}

	var table string
	var cursor int
	if err := database.QueryRow("SELECT page_url_table, page_cursor FROM items WHERE id = '42'").Scan(&table, &cursor); err != nil {
		t.Fatalf("Failed to read item: %v", err)
	}
	if table != "[]" || cursor != 0 {
		t.Errorf("Expected empty table and zero cursor, got %q and %d", table, cursor)
	}
}
