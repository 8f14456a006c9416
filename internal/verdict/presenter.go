package verdict

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/logging"
)

// Presenter surfaces verdicts as they are produced. Implementations must be
// safe for concurrent use.
type Presenter interface {
	Present(ctx context.Context, v Verdict)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(ctx context.Context, v Verdict)

func (f PresenterFunc) Present(ctx context.Context, v Verdict) { f(ctx, v) }

// LogPresenter logs warnings at Info and everything else at Debug.
type LogPresenter struct {
	Logger *zap.Logger
}

func (p LogPresenter) Present(_ context.Context, v Verdict) {
	logger := logging.OrNop(p.Logger)
	fields := []zap.Field{
		logging.Verdict(string(v.Kind)),
		logging.URL(v.URL),
		logging.EvaluationID(v.EvaluationID),
	}
	switch {
	case v.Warns():
		logger.Info(v.Message(), fields...)
	case v.Kind == Unknown:
		logger.Info("verdict unavailable", append(fields, zap.String("reason", v.Reason))...)
	default:
		logger.Debug("no threat", fields...)
	}
}

// WriterPresenter writes each verdict as one JSON line.
type WriterPresenter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriterPresenter(w io.Writer) *WriterPresenter {
	return &WriterPresenter{enc: json.NewEncoder(w)}
}

func (p *WriterPresenter) Present(_ context.Context, v Verdict) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(v)
}

// Recorder keeps every presented verdict in order.
type Recorder struct {
	mu       sync.Mutex
	verdicts []Verdict
	notify   chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

func (r *Recorder) Present(_ context.Context, v Verdict) {
	r.mu.Lock()
	r.verdicts = append(r.verdicts, v)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Verdicts returns a copy of the recorded verdicts.
func (r *Recorder) Verdicts() []Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Verdict, len(r.verdicts))
	copy(out, r.verdicts)
	return out
}

// Kinds returns the kinds of the recorded verdicts in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.verdicts))
	for i, v := range r.verdicts {
		out[i] = v.Kind
	}
	return out
}

// Wait blocks until at least n verdicts are recorded or ctx is done.
func (r *Recorder) Wait(ctx context.Context, n int) bool {
	for {
		r.mu.Lock()
		got := len(r.verdicts)
		r.mu.Unlock()
		if got >= n {
			return true
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return false
		}
	}
}

// Multi fans a verdict out to several presenters in order.
type Multi []Presenter

func (m Multi) Present(ctx context.Context, v Verdict) {
	for _, p := range m {
		if p != nil {
			p.Present(ctx, v)
		}
	}
}
