// Package risk evaluates a page by combining the whitelist, threat intel,
// homoglyph and model signals into verdicts.
package risk

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shrey-shah842/phishguard/internal/asn"
	"github.com/shrey-shah842/phishguard/internal/bus"
	"github.com/shrey-shah842/phishguard/internal/features"
	"github.com/shrey-shah842/phishguard/internal/homoglyph"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/predictor"
	"github.com/shrey-shah842/phishguard/internal/verdict"
)

// State is a step of an evaluation.
type State string

const (
	Start             State = "start"
	WhitelistChecked  State = "whitelist_checked"
	ThreatChecking    State = "threat_checking"
	HomoglyphChecking State = "homoglyph_checking"
	FeatureExtracting State = "feature_extracting"
	ModelSubmitted    State = "model_submitted"
	Done              State = "verdict"
)

// WhitelistChecker is satisfied by *whitelist.Store.
type WhitelistChecker interface {
	Contains(ctx context.Context, url string) (bool, error)
}

// Evaluation summarizes one page evaluation. States from the two concurrent
// branches interleave in the order they were entered.
type Evaluation struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Whitelisted bool              `json:"whitelisted"`
	Verdicts    []verdict.Verdict `json:"verdicts"`
	States      []State           `json:"states"`
	Features    *features.Vector  `json:"features,omitempty"`
}

// Orchestrator runs evaluations. It is safe for concurrent use; each
// evaluation opens its own bus client.
type Orchestrator struct {
	whitelist  WhitelistChecker
	transport  bus.Transport
	model      predictor.Model
	extractor  features.Extractor
	busTimeout time.Duration
	asnEnabled bool
	now        func() time.Time
	logger     *zap.Logger
}

type Option func(*Orchestrator)

func WithExtractor(e features.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

func WithBusTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.busTimeout = d }
}

// WithASN enables origin ASN lookups for the asn_ip feature.
func WithASN(enabled bool) Option {
	return func(o *Orchestrator) { o.asnEnabled = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func New(wl WhitelistChecker, transport bus.Transport, model predictor.Model, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		whitelist:  wl,
		transport:  transport,
		model:      model,
		busTimeout: bus.DefaultTimeout,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger).Named("risk")
	return o
}

// Evaluate runs the pipeline for rawURL, handing each verdict to p as soon
// as it is reached. Verdicts reached after ctx is done are dropped.
func (o *Orchestrator) Evaluate(ctx context.Context, rawURL string, p verdict.Presenter) Evaluation {
	id := uuid.NewString()
	run := &run{
		o:         o,
		ctx:       ctx,
		presenter: p,
		logger:    o.logger.With(logging.EvaluationID(id), logging.URL(rawURL)),
		eval:      Evaluation{ID: id, URL: rawURL, Verdicts: []verdict.Verdict{}},
	}
	run.enter(Start)

	whitelisted := false
	if o.whitelist != nil {
		ok, err := o.whitelist.Contains(ctx, rawURL)
		if err != nil {
			run.logger.Warn("whitelist read failed, evaluating anyway", zap.Error(err))
		}
		whitelisted = ok && err == nil
	}
	run.enter(WhitelistChecked)

	if whitelisted {
		run.logger.Debug("whitelisted, skipping lookups")
		run.setWhitelisted()
		run.emit(verdict.Verdict{Kind: verdict.Safe})
		run.enter(Done)
		return run.snapshot()
	}

	client := bus.NewClient(o.transport, o.busTimeout, o.logger)

	var g errgroup.Group
	g.Go(func() error {
		run.threatBranch(client)
		return nil
	})
	g.Go(func() error {
		run.modelBranch(client)
		return nil
	})
	_ = g.Wait()

	run.enter(Done)
	return run.snapshot()
}

type run struct {
	o         *Orchestrator
	ctx       context.Context
	presenter verdict.Presenter
	logger    *zap.Logger

	mu   sync.Mutex
	eval Evaluation
}

func (r *run) enter(s State) {
	r.mu.Lock()
	r.eval.States = append(r.eval.States, s)
	r.mu.Unlock()
	r.logger.Debug("state", logging.State(string(s)))
}

func (r *run) setWhitelisted() {
	r.mu.Lock()
	r.eval.Whitelisted = true
	r.mu.Unlock()
}

func (r *run) setFeatures(v features.Vector) {
	r.mu.Lock()
	r.eval.Features = &v
	r.mu.Unlock()
}

func (r *run) emit(v verdict.Verdict) {
	v.URL = r.eval.URL
	v.EvaluationID = r.eval.ID
	v.At = r.o.now()

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		r.logger.Debug("page gone, dropping verdict", logging.Verdict(string(v.Kind)))
		return
	}
	r.eval.Verdicts = append(r.eval.Verdicts, v)
	r.mu.Unlock()

	if v.Kind == verdict.Unknown {
		r.logger.Info("verdict", logging.Verdict(string(v.Kind)), zap.String("reason", v.Reason))
	} else {
		r.logger.Info("verdict", logging.Verdict(string(v.Kind)))
	}
	if r.presenter != nil {
		r.presenter.Present(r.ctx, v)
	}
}

func (r *run) snapshot() Evaluation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.eval
	out.Verdicts = append([]verdict.Verdict(nil), r.eval.Verdicts...)
	out.States = append([]State(nil), r.eval.States...)
	return out
}

func (r *run) threatBranch(client *bus.Client) {
	r.enter(ThreatChecking)

	res := client.ScanURL(r.ctx, r.eval.URL)
	switch {
	case res.IsThreat():
		r.emit(verdict.Verdict{Kind: verdict.ThreatMatch, Matches: res.Matches})
	case res.Err != nil:
		r.logger.Warn("threat lookup degraded", zap.Error(res.Err))
	default:
		r.logger.Debug("no threat intel match")
	}
}

func (r *run) modelBranch(client *bus.Client) {
	r.enter(HomoglyphChecking)
	if reason := homoglyph.Check(r.eval.URL); reason != homoglyph.ReasonNone {
		r.logger.Debug("homoglyph check positive", zap.String("reason", string(reason)))
		r.emit(verdict.Verdict{Kind: verdict.HomoglyphSuspected, Reason: string(reason)})
		return
	}

	r.enter(FeatureExtracting)
	loc, err := features.ParseLocation(r.eval.URL)
	if err != nil {
		r.emit(verdict.Verdict{Kind: verdict.Unknown}.WithReason(err))
		return
	}
	host := strings.Trim(loc.Hostname, "[]")

	details := client.DomainDetails(r.ctx, host)
	if details.Err != nil {
		r.logger.Warn("domain details unavailable", logging.Domain(host), zap.Error(details.Err))
	}

	origin := asn.Unknown
	if r.o.asnEnabled {
		res := client.LookupASN(r.ctx, host)
		if res.Err != nil {
			r.logger.Warn("asn unavailable", logging.Domain(host), zap.Error(res.Err))
		} else {
			origin = res.ASN
		}
	}

	vec, err := r.o.extractor.Extract(r.eval.URL, details.Details, origin)
	if err != nil {
		r.emit(verdict.Verdict{Kind: verdict.Unknown}.WithReason(err))
		return
	}
	r.setFeatures(vec)

	if r.o.model == nil {
		return
	}
	r.enter(ModelSubmitted)
	out := r.o.model.Predict(r.ctx, vec)
	switch out.Label {
	case predictor.Phishing:
		r.emit(verdict.Verdict{Kind: verdict.ModelFlagged})
	case predictor.Legit:
		r.emit(verdict.Verdict{Kind: verdict.Safe})
	default:
		r.emit(verdict.Verdict{Kind: verdict.Unknown}.WithReason(out.Err))
	}
}
