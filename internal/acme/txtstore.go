package acme

import (
	"slices"
	"strings"
	"sync"
)

// TXTStore holds pending challenge values by name. Values for a name keep
// their insertion order.
type TXTStore struct {
	mu      sync.RWMutex
	records map[string][]string
}

func NewTXTStore() *TXTStore {
	return &TXTStore{records: make(map[string][]string)}
}

func (s *TXTStore) Add(fqdn, value string) {
	fqdn = NormalizeName(fqdn)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.records[fqdn], value) {
		s.records[fqdn] = append(s.records[fqdn], value)
	}
}

func (s *TXTStore) Remove(fqdn, value string) {
	fqdn = NormalizeName(fqdn)
	s.mu.Lock()
	defer s.mu.Unlock()
	vals := slices.DeleteFunc(s.records[fqdn], func(v string) bool { return v == value })
	if len(vals) == 0 {
		delete(s.records, fqdn)
		return
	}
	s.records[fqdn] = vals
}

// Get returns a copy of the values for fqdn, never nil.
func (s *TXTStore) Get(fqdn string) []string {
	fqdn = NormalizeName(fqdn)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.records[fqdn]...)
}

// Len returns the number of names with pending values.
func (s *TXTStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// NormalizeName lowercases name and drops the trailing root dot.
func NormalizeName(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}
