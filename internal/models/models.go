// Package models defines the database entity types.
package models

// KVEntry represents one record of the key/value table. Value holds JSON.
type KVEntry struct {
	Key       string
	Value     string
	UpdatedAt int64
}
