package auth

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shrey-shah842/phishguard/internal/db"
)

// KeysKey is the key/value record holding issued API keys.
const KeysKey = "api_keys"

// KeyRecord is the stored form of an issued key.
type KeyRecord struct {
	Prefix    string `json:"prefix"`
	Hash      string `json:"hash"`
	Label     string `json:"label,omitempty"`
	CreatedAt int64  `json:"created_at"`
	RevokedAt *int64 `json:"revoked_at,omitempty"`
}

func (r KeyRecord) Active() bool { return r.RevokedAt == nil }

var errUnchanged = errors.New("unchanged")

// CreateKey issues a key and stores its record. The display key is returned
// once and cannot be recovered later.
func CreateKey(d *sql.DB, label string) (string, KeyRecord, error) {
	display, prefix, hash, err := GenerateKey()
	if err != nil {
		return "", KeyRecord{}, fmt.Errorf("generate key: %w", err)
	}
	rec := KeyRecord{
		Prefix:    prefix,
		Hash:      hex.EncodeToString(hash),
		Label:     label,
		CreatedAt: time.Now().Unix(),
	}

	err = db.UpdateValue(d, KeysKey, func(raw []byte) ([]byte, error) {
		keys, err := decodeKeys(raw)
		if err != nil {
			return nil, err
		}
		return json.Marshal(append(keys, rec))
	})
	if err != nil {
		return "", KeyRecord{}, fmt.Errorf("store key: %w", err)
	}
	return display, rec, nil
}

// ListKeys returns every issued key, revoked ones included.
func ListKeys(d *sql.DB) ([]KeyRecord, error) {
	var keys []KeyRecord
	if _, err := db.GetValue(d, KeysKey, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// CountActiveKeys returns the number of keys that have not been revoked.
func CountActiveKeys(d *sql.DB) (int, error) {
	keys, err := ListKeys(d)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if k.Active() {
			n++
		}
	}
	return n, nil
}

// RevokeKey marks the key with prefix revoked. It reports false when no
// active key has that prefix.
func RevokeKey(d *sql.DB, prefix string) (bool, error) {
	err := db.UpdateValue(d, KeysKey, func(raw []byte) ([]byte, error) {
		keys, err := decodeKeys(raw)
		if err != nil {
			return nil, err
		}
		for i := range keys {
			if keys[i].Prefix == prefix && keys[i].Active() {
				now := time.Now().Unix()
				keys[i].RevokedAt = &now
				return json.Marshal(keys)
			}
		}
		return nil, errUnchanged
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revoke key: %w", err)
	}
	return true, nil
}

// Authenticate looks displayKey up by prefix and verifies its secret.
func Authenticate(d *sql.DB, displayKey string) (KeyRecord, bool, error) {
	prefix, _, err := ParseKey(displayKey)
	if err != nil {
		return KeyRecord{}, false, nil
	}
	keys, err := ListKeys(d)
	if err != nil {
		return KeyRecord{}, false, err
	}
	for _, k := range keys {
		if k.Prefix != prefix || !k.Active() {
			continue
		}
		hash, err := hex.DecodeString(k.Hash)
		if err != nil {
			return KeyRecord{}, false, nil
		}
		if VerifyKey(displayKey, hash) {
			return k, true, nil
		}
	}
	return KeyRecord{}, false, nil
}

func decodeKeys(raw []byte) ([]KeyRecord, error) {
	var keys []KeyRecord
	if raw == nil {
		return keys, nil
	}
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	return keys, nil
}
