// Package whitelist persists the user's trusted URLs.
package whitelist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/db"
	"github.com/shrey-shah842/phishguard/internal/logging"
)

// Key is the key/value record holding the list.
const Key = "whitelist"

// Mutation failure reasons.
const (
	ReasonAlreadyPresent = "URL already in whitelist"
	ReasonNotPresent     = "URL not in whitelist"
)

// MutationResult is the outcome of Add or Remove. Reason is set for an
// expected refusal and Error for a failure.
type MutationResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

func New(d *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: d, logger: logging.OrNop(logger).Named("whitelist")}
}

// Normalize lowercases the scheme and host of an absolute URL and gives it
// a "/" path when it has none.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("not an absolute url: %q", raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

// List returns a snapshot of the whitelist in insertion order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var list []string
	if _, err := db.GetValue(s.db, Key, &list); err != nil {
		return nil, fmt.Errorf("read whitelist: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

// Contains reports whether rawURL is whitelisted.
func (s *Store) Contains(ctx context.Context, rawURL string) (bool, error) {
	norm, err := Normalize(rawURL)
	if err != nil {
		return false, nil
	}
	list, err := s.List(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(list, norm), nil
}

// Add appends rawURL unless it is already present.
func (s *Store) Add(ctx context.Context, rawURL string) MutationResult {
	return s.mutate(ctx, rawURL, "add", func(list []string, entry string) ([]string, string) {
		if slices.Contains(list, entry) {
			return nil, ReasonAlreadyPresent
		}
		return append(list, entry), ""
	})
}

// Remove deletes rawURL if present.
func (s *Store) Remove(ctx context.Context, rawURL string) MutationResult {
	return s.mutate(ctx, rawURL, "remove", func(list []string, entry string) ([]string, string) {
		i := slices.Index(list, entry)
		if i < 0 {
			return nil, ReasonNotPresent
		}
		return slices.Delete(list, i, i+1), ""
	})
}

type editFunc func(list []string, entry string) (next []string, reason string)

var errUnchanged = errors.New("unchanged")

func (s *Store) mutate(ctx context.Context, rawURL, op string, edit editFunc) MutationResult {
	if err := ctx.Err(); err != nil {
		return MutationResult{Error: err.Error()}
	}

	entry, err := Normalize(rawURL)
	if err != nil {
		s.logger.Warn("whitelist "+op+" rejected", logging.URL(rawURL), zap.Error(err))
		return MutationResult{Error: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var reason string
	err = db.UpdateValue(s.db, Key, func(raw []byte) ([]byte, error) {
		var list []string
		if raw != nil {
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("decode whitelist: %w", err)
			}
		}
		next, why := edit(list, entry)
		if why != "" {
			reason = why
			return nil, errUnchanged
		}
		if next == nil {
			next = []string{}
		}
		return json.Marshal(next)
	})

	switch {
	case errors.Is(err, errUnchanged):
		s.logger.Debug("whitelist "+op+" refused", logging.URL(entry), zap.String("reason", reason))
		return MutationResult{Reason: reason}
	case err != nil:
		s.logger.Error("whitelist "+op+" failed", logging.URL(entry), zap.Error(err))
		return MutationResult{Error: err.Error()}
	}

	s.logger.Info("whitelist "+op, logging.URL(entry))
	return MutationResult{Success: true}
}
