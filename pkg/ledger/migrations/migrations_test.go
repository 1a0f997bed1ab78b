package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"hash", MigrationsTable} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("Table %s was not created: %v", table, err)
		}
	}

	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("Version() = %d dirty=%v, want 2 clean", version, dirty)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("First MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("Second MigrateUp() failed: %v (should be idempotent)", err)
	}
}

func TestVersion_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh database reported version %d dirty=%v", version, dirty)
	}
}

func TestHashPrimaryKey(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	insert := "INSERT INTO hash (folder, download_filename, hash) VALUES ('/d', 'a.jpg', 'abc')"
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("Expected primary key violation for duplicate (folder, download_filename)")
	}
}
