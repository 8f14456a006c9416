// Package ratelimit guards outbound reputation calls with per-key sliding windows.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/logging"
)

// Limiter keys used by the service context.
const (
	KeySafeBrowsing  = "safebrowsing"
	KeyDomainDetails = "domainDetails"
	KeyASN           = "asn"
)

// Rule bounds the number of admitted calls within a trailing window.
type Rule struct {
	MaxRequests int           `json:"max_requests" yaml:"max_requests"`
	Window      time.Duration `json:"window" yaml:"window"`
}

// DefaultRule admits 100 calls per minute.
func DefaultRule() Rule {
	return Rule{MaxRequests: 100, Window: time.Minute}
}

// Validate reports whether the rule can admit anything at all.
func (r Rule) Validate() error {
	if r.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive, got %d", r.MaxRequests)
	}
	if r.Window <= 0 {
		return fmt.Errorf("window must be positive, got %s", r.Window)
	}
	return nil
}

// Store holds the rate windows. Admit prunes timestamps at or before
// now-rule.Window, admits iff fewer than rule.MaxRequests remain and, on
// admission only, records now. The whole step must be atomic per key.
type Store interface {
	Admit(ctx context.Context, key string, rule Rule, now time.Time) (bool, error)
}

// Admitter is the narrow view network clients depend on.
type Admitter interface {
	CanMakeRequest(ctx context.Context, key string) bool
}

// Limiter applies per-namespace rules over a Store.
type Limiter struct {
	store  Store
	def    Rule
	rules  map[string]Rule
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(l *Limiter) { l.store = s }
}

// WithDefaultRule sets the rule for keys without an override.
func WithDefaultRule(r Rule) Option {
	return func(l *Limiter) { l.def = r }
}

// WithRule overrides the rule for one key namespace.
func WithRule(key string, r Rule) Option {
	return func(l *Limiter) { l.rules[key] = r }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New creates a Limiter. Without options it keeps windows in memory and
// applies DefaultRule to every key.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		def:   DefaultRule(),
		rules: make(map[string]Rule),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	l.logger = logging.OrNop(l.logger).Named("ratelimit")
	return l
}

// RuleFor returns the rule applied to key.
func (l *Limiter) RuleFor(key string) Rule {
	if r, ok := l.rules[key]; ok {
		return r
	}
	return l.def
}

// CanMakeRequest reports whether a call under key may proceed now, recording
// it if so. A store failure denies the call.
func (l *Limiter) CanMakeRequest(ctx context.Context, key string) bool {
	rule := l.RuleFor(key)
	ok, err := l.store.Admit(ctx, key, rule, l.now())
	if err != nil {
		l.logger.Warn("rate window unavailable, denying", logging.LimiterKey(key), zap.Error(err))
		return false
	}
	if !ok {
		l.logger.Debug("rate limit reached",
			logging.LimiterKey(key),
			zap.Int("max_requests", rule.MaxRequests),
			zap.Duration("window", rule.Window))
	}
	return ok
}
