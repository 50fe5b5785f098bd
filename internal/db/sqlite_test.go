package db

import (
	"fmt"
	"path/filepath"
	"testing"
)

// TestInitDBSingleton tests that repeated calls share one handle
func TestInitDBSingleton(t *testing.T) {
	ResetDB()
	t.Cleanup(ResetDB)

	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	first, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	second, err := InitDB(filepath.Join(t.TempDir(), "other.db"))
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	if first != second || GetDB() != first {
		t.Error("Expected the same handle from every call")
	}

	var name string
	err = first.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='sessions'`).Scan(&name)
	if err != nil || name != "sessions" {
		t.Errorf("Expected sessions table, got %q, %v", name, err)
	}
}

// TestNewTestDBIsolated tests that in-memory databases do not share rows
func TestNewTestDBIsolated(t *testing.T) {
	a, err := NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	defer a.Close()
	b, err := NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	defer b.Close()

	if _, err := a.Exec(`INSERT INTO sessions (id, shell, cols, rows) VALUES ('x', '/bin/sh', 80, 24)`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var count int
	b.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	if count != 0 {
		t.Errorf("Expected empty second database, got %d rows", count)
	}
	a.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	if count != 1 {
		t.Errorf("Expected one row, got %d", count)
	}
}

// TestMigrationsResume tests that reopening a journal keeps its rows and
// does not rerun applied migrations
func TestMigrationsResume(t *testing.T) {
	ResetDB()
	t.Cleanup(ResetDB)
	path := filepath.Join(t.TempDir(), "journal.db")

	first, err := InitDB(path)
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	if _, err := first.Exec(`INSERT INTO sessions (id, shell, cols, rows) VALUES ('kept', '/bin/sh', 80, 24)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ResetDB()

	second, err := InitDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	var version, count int
	second.QueryRow("PRAGMA user_version").Scan(&version)
	second.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	if version != SchemaVersion() {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion(), version)
	}
	if count != 1 {
		t.Errorf("Expected the row to survive, got %d rows", count)
	}
}

// TestMigrationsRejectNewerSchema tests a journal written by a newer build
func TestMigrationsRejectNewerSchema(t *testing.T) {
	testDB, err := NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	defer testDB.Close()

	if _, err := testDB.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion()+1)); err != nil {
		t.Fatalf("set version: %v", err)
	}
	if err := runMigrations(testDB); err == nil {
		t.Error("Expected an error for a newer schema")
	}
}
