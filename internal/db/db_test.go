package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenCreatesDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestMigrationsApplied(t *testing.T) {
	db := openTestDB(t)

	tables := []string{"schema_migrations", "kv"}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 2; i++ {
		db, err := Open(dbPath)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i, err)
		}
		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("count migrations: %v", err)
		}
		if count != 1 {
			t.Errorf("Open #%d: %d migrations recorded, want 1", i, count)
		}
		_ = db.Close()
	}
}

func TestPragmasEnabled(t *testing.T) {
	db := openTestDB(t)

	var fkEnabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("PRAGMA foreign_keys failed: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys not enabled")
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode failed: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int
		wantErr  bool
	}{
		{"valid", "001_init.sql", 1, false},
		{"valid large", "123_add_column.sql", 123, false},
		{"missing underscore", "001.sql", 0, true},
		{"empty prefix", "_init.sql", 0, true},
		{"non-numeric prefix", "abc_init.sql", 0, true},
		{"empty string", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseVersion(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseVersion(%q) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("parseVersion(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestGetValueMissing(t *testing.T) {
	db := openTestDB(t)

	var out []string
	found, err := GetValue(db, "whitelist", &out)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if found {
		t.Error("expected not found")
	}
}

func TestSetGetValue(t *testing.T) {
	db := openTestDB(t)

	want := []string{"https://a.example/", "https://b.example/"}
	if err := SetValue(db, "whitelist", want); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	var got []string
	found, err := GetValue(db, "whitelist", &got)
	if err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if !found {
		t.Fatal("expected found")
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}

	if err := SetValue(db, "whitelist", []string{}); err != nil {
		t.Fatalf("SetValue overwrite failed: %v", err)
	}
	got = nil
	if _, err := GetValue(db, "whitelist", &got); err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %v after overwrite, want empty", got)
	}
}

func TestGetValueDecodeError(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Exec("INSERT INTO kv (key, value, updated_at) VALUES ('whitelist', 'not json', 0)"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	var out []string
	if _, err := GetValue(db, "whitelist", &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestUpdateValue(t *testing.T) {
	db := openTestDB(t)

	appendItem := func(item string) func([]byte) ([]byte, error) {
		return func(raw []byte) ([]byte, error) {
			var list []string
			if raw != nil {
				if err := json.Unmarshal(raw, &list); err != nil {
					return nil, err
				}
			}
			return json.Marshal(append(list, item))
		}
	}

	if err := UpdateValue(db, "list", appendItem("a")); err != nil {
		t.Fatalf("UpdateValue failed: %v", err)
	}
	if err := UpdateValue(db, "list", appendItem("b")); err != nil {
		t.Fatalf("UpdateValue failed: %v", err)
	}

	var got []string
	if _, err := GetValue(db, "list", &got); err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
}

func TestUpdateValueAbort(t *testing.T) {
	db := openTestDB(t)

	if err := SetValue(db, "k", "original"); err != nil {
		t.Fatalf("SetValue failed: %v", err)
	}

	sentinel := errors.New("abort")
	err := UpdateValue(db, "k", func([]byte) ([]byte, error) { return nil, sentinel })
	if !errors.Is(err, sentinel) {
		t.Fatalf("UpdateValue error = %v, want sentinel", err)
	}

	if err := UpdateValue(db, "k", func([]byte) ([]byte, error) { return nil, nil }); err != nil {
		t.Fatalf("UpdateValue no-op failed: %v", err)
	}

	var got string
	if _, err := GetValue(db, "k", &got); err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if got != "original" {
		t.Errorf("got %q, want original", got)
	}
}

func TestUpdateValueConcurrent(t *testing.T) {
	db := openTestDB(t)

	incr := func(raw []byte) ([]byte, error) {
		var n int
		if raw != nil {
			if err := json.Unmarshal(raw, &n); err != nil {
				return nil, err
			}
		}
		return json.Marshal(n + 1)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- UpdateValue(db, "counter", incr)
		}()
	}
	wg.Wait()
	close(errs)

	failed := 0
	for err := range errs {
		if err != nil {
			failed++
		}
	}

	var n int
	if _, err := GetValue(db, "counter", &n); err != nil {
		t.Fatalf("GetValue failed: %v", err)
	}
	if n+failed != 10 {
		t.Errorf("counter = %d with %d failures, want total 10", n, failed)
	}
}

func TestDeleteAndListEntries(t *testing.T) {
	db := openTestDB(t)

	for _, k := range []string{"b", "a"} {
		if err := SetValue(db, k, 1); err != nil {
			t.Fatalf("SetValue failed: %v", err)
		}
	}

	entries, err := ListEntries(db)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "a" || entries[1].Key != "b" {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[0].Value != "1" {
		t.Errorf("value = %q, want 1", entries[0].Value)
	}

	if err := DeleteValue(db, "a"); err != nil {
		t.Fatalf("DeleteValue failed: %v", err)
	}
	if err := DeleteValue(db, "absent"); err != nil {
		t.Fatalf("DeleteValue absent failed: %v", err)
	}

	entries, err = ListEntries(db)
	if err != nil {
		t.Fatalf("ListEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}
