package verdict

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultDismissAfter is how long a warning stays up unless closed.
const DefaultDismissAfter = 10 * time.Second

// Warning is an active user-facing notice.
type Warning struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Verdict   Verdict   `json:"verdict"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Board holds the warnings currently shown. Several can be active at once;
// each closes on Dismiss or after its lifetime elapses.
type Board struct {
	mu           sync.Mutex
	warnings     map[string]Warning
	dismissAfter time.Duration
	now          func() time.Time
}

// NewBoard creates a Board. A non-positive dismissAfter uses
// DefaultDismissAfter; a nil now uses time.Now.
func NewBoard(dismissAfter time.Duration, now func() time.Time) *Board {
	if dismissAfter <= 0 {
		dismissAfter = DefaultDismissAfter
	}
	if now == nil {
		now = time.Now
	}
	return &Board{
		warnings:     make(map[string]Warning),
		dismissAfter: dismissAfter,
		now:          now,
	}
}

// Present shows a warning for verdicts that warn and ignores the rest.
func (b *Board) Present(_ context.Context, v Verdict) {
	if !v.Warns() {
		return
	}
	b.Show(v)
}

// Show adds a warning for v and returns it.
func (b *Board) Show(v Verdict) Warning {
	now := b.now()
	w := Warning{
		ID:        uuid.NewString(),
		Message:   v.Message(),
		Verdict:   v,
		ShownAt:   now,
		ExpiresAt: now.Add(b.dismissAfter),
	}
	b.mu.Lock()
	b.warnings[w.ID] = w
	b.mu.Unlock()
	return w
}

// Dismiss closes the warning with id. It reports whether it was active.
func (b *Board) Dismiss(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.warnings[id]
	if !ok {
		return false
	}
	delete(b.warnings, id)
	return w.ExpiresAt.After(b.now())
}

// Active returns the unexpired warnings, oldest first, pruning expired ones.
func (b *Board) Active() []Warning {
	now := b.now()
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Warning, 0, len(b.warnings))
	for id, w := range b.warnings {
		if !w.ExpiresAt.After(now) {
			delete(b.warnings, id)
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ShownAt.Equal(out[j].ShownAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ShownAt.Before(out[j].ShownAt)
	})
	return out
}
