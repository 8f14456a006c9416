package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shrey-shah842/phishguard/internal/models"
)

// GetValue decodes the JSON value stored under key into out.
// Returns (false, nil) if the key does not exist.
func GetValue(d *sql.DB, key string, out any) (bool, error) {
	var value string
	err := d.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query kv %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, fmt.Errorf("decode kv %s: %w", key, err)
	}

	return true, nil
}

// SetValue JSON-encodes value and stores it under key, replacing any
// previous value.
func SetValue(d *sql.DB, key string, value any) error {
	return setValue(d, key, value)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func setValue(e execer, key string, value any) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode kv %s: %w", key, err)
	}

	_, err = e.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(encoded), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert kv %s: %w", key, err)
	}

	return nil
}

// UpdateValue runs a read-modify-write of the raw JSON under key inside one
// transaction. fn receives nil when the key is absent. Returning a nil slice
// from fn leaves the stored value untouched.
func UpdateValue(d *sql.DB, key string, fn func(raw []byte) ([]byte, error)) error {
	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("begin kv update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw []byte
	var value string
	err = tx.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("query kv %s: %w", key, err)
	default:
		raw = []byte(value)
	}

	next, err := fn(raw)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := setValue(tx, key, json.RawMessage(next)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit kv update: %w", err)
	}
	return nil
}

// DeleteValue removes key. Deleting an absent key is not an error.
func DeleteValue(d *sql.DB, key string) error {
	if _, err := d.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete kv %s: %w", key, err)
	}
	return nil
}

// ListEntries returns every stored entry ordered by key.
func ListEntries(d *sql.DB) ([]models.KVEntry, error) {
	rows, err := d.Query("SELECT key, value, updated_at FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("query kv: %w", err)
	}
	defer rows.Close()

	var entries []models.KVEntry
	for rows.Next() {
		var e models.KVEntry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
