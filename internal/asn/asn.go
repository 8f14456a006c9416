// Package asn resolves the origin autonomous system of a host through the
// Team Cymru IP-to-ASN DNS zone.
package asn

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/ratelimit"
)

// Unknown is the feature value used when no ASN is available.
const Unknown = -1

type Config struct {
	Server  string // host:port of a recursive resolver
	Zone    string // e.g. origin.asn.cymru.com.
	Timeout time.Duration
}

type Resolver struct {
	cfg     Config
	client  *dns.Client
	limiter ratelimit.Admitter
	logger  *zap.Logger
}

func New(cfg Config, limiter ratelimit.Admitter, logger *zap.Logger) *Resolver {
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &Resolver{
		cfg:     cfg,
		client:  &dns.Client{Net: "udp", Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logging.OrNop(logger).Named("asn"),
	}
}

// Lookup returns the origin ASN of host. On failure ASN is Unknown and Err
// is set.
func (r *Resolver) Lookup(ctx context.Context, host string) Result {
	const op = "asn.Lookup"

	if !r.limiter.CanMakeRequest(ctx, ratelimit.KeyASN) {
		return r.failed(host, failure.Newf(failure.RateLimited, op, "rate limit exceeded, try again later"))
	}

	host = strings.Trim(strings.TrimSpace(host), "[]")
	if host == "" {
		return r.failed(host, failure.Newf(failure.InvalidURL, op, "empty host"))
	}

	ip := net.ParseIP(host)
	if ip == nil {
		addr, err := r.resolveA(ctx, host)
		if err != nil {
			return r.failed(host, failure.New(failure.NetworkFailure, op, err))
		}
		ip = addr
	}

	v4 := ip.To4()
	if v4 == nil {
		return r.failed(host, failure.Newf(failure.InvalidURL, op, "no IPv4 address for %s", host))
	}

	name := fmt.Sprintf("%d.%d.%d.%d.%s", v4[3], v4[2], v4[1], v4[0], dns.Fqdn(r.cfg.Zone))
	in, err := r.exchange(ctx, name, dns.TypeTXT)
	if err != nil {
		return r.failed(host, failure.New(failure.NetworkFailure, op, err))
	}

	for _, rr := range in.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok || len(txt.Txt) == 0 {
			continue
		}
		n, err := ParseOrigin(strings.Join(txt.Txt, ""))
		if err != nil {
			return r.failed(host, failure.New(failure.ParseFailure, op, err))
		}
		r.logger.Debug("origin resolved", logging.Domain(host), zap.Stringer("ip", v4), zap.Int("asn", n))
		return Result{ASN: n}
	}

	return r.failed(host, failure.Newf(failure.ParseFailure, op, "no TXT answer for %s", name))
}

func (r *Resolver) resolveA(ctx context.Context, host string) (net.IP, error) {
	in, err := r.exchange(ctx, dns.Fqdn(host), dns.TypeA)
	if err != nil {
		return nil, err
	}
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			return a.A, nil
		}
	}
	return nil, fmt.Errorf("no A record for %s", host)
}

func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(name, qtype)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", dns.TypeToString[qtype], name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[in.Rcode])
	}
	return in, nil
}

func (r *Resolver) failed(host string, err *failure.Error) Result {
	r.logger.Warn("lookup failed", logging.Domain(host), zap.String("kind", string(err.Kind)), zap.Error(err))
	return Fail(err)
}

// ParseOrigin extracts the first ASN from a Cymru origin record such as
// "13335 | 104.16.0.0/13 | US | arin | 2014-03-28".
func ParseOrigin(txt string) (int, error) {
	field, _, _ := strings.Cut(txt, "|")
	fields := strings.Fields(field)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty origin record %q", txt)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid ASN in %q", txt)
	}
	return n, nil
}

type Result struct {
	ASN int
	Err error
}

// Fail returns an Unknown result carrying err.
func Fail(err error) Result {
	return Result{ASN: Unknown, Err: err}
}

type wireResult struct {
	ASN       int          `json:"asn"`
	Error     string       `json:"error,omitempty"`
	ErrorKind failure.Kind `json:"errorKind,omitempty"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	w := wireResult{ASN: r.ASN}
	if r.Err != nil {
		w.Error = r.Err.Error()
		w.ErrorKind = failure.KindOf(r.Err)
	}
	return json.Marshal(w)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Result{ASN: w.ASN, Err: failure.FromWire(w.ErrorKind, w.Error)}
	if r.Err != nil {
		r.ASN = Unknown
	}
	return nil
}
