package asn

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
)

type stubLimiter struct{ allow bool }

func (s stubLimiter) CanMakeRequest(context.Context, string) bool { return s.allow }

// startResolver serves a tiny fake zone on a loopback UDP port.
func startResolver(t *testing.T, records map[string]dns.RR) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			for _, q := range r.Question {
				if rr, ok := records[dns.TypeToString[q.Qtype]+" "+q.Name]; ok {
					m.Answer = append(m.Answer, rr)
				} else {
					m.Rcode = dns.RcodeNameError
				}
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	require.NoError(t, err)
	return rr
}

func newTestResolver(t *testing.T, addr string, allow bool) *Resolver {
	return New(Config{Server: addr, Zone: "origin.asn.cymru.com.", Timeout: 2 * time.Second},
		stubLimiter{allow: allow}, zap.NewNop())
}

func TestLookupHostname(t *testing.T) {
	addr := startResolver(t, map[string]dns.RR{
		"A example.com.": mustRR(t, "example.com. 60 IN A 93.184.216.34"),
		"TXT 34.216.184.93.origin.asn.cymru.com.": mustRR(t,
			`34.216.184.93.origin.asn.cymru.com. 60 IN TXT "15133 | 93.184.216.0/24 | EU | ripencc | 2008-06-02"`),
	})

	res := newTestResolver(t, addr, true).Lookup(context.Background(), "example.com")
	require.NoError(t, res.Err)
	assert.Equal(t, 15133, res.ASN)
}

func TestLookupIPLiteral(t *testing.T) {
	addr := startResolver(t, map[string]dns.RR{
		"TXT 1.1.1.1.origin.asn.cymru.com.": mustRR(t,
			`1.1.1.1.origin.asn.cymru.com. 60 IN TXT "13335 | 1.1.1.0/24 | AU | apnic | 2011-08-11"`),
	})

	res := newTestResolver(t, addr, true).Lookup(context.Background(), "1.1.1.1")
	require.NoError(t, res.Err)
	assert.Equal(t, 13335, res.ASN)
}

func TestLookupFailures(t *testing.T) {
	addr := startResolver(t, map[string]dns.RR{
		"A junk.example.": mustRR(t, "junk.example. 60 IN A 10.0.0.1"),
		"TXT 1.0.0.10.origin.asn.cymru.com.": mustRR(t,
			`1.0.0.10.origin.asn.cymru.com. 60 IN TXT "NA | 10.0.0.0/8"`),
	})

	tests := []struct {
		name  string
		host  string
		allow bool
		kind  failure.Kind
	}{
		{"rate limited", "example.com", false, failure.RateLimited},
		{"nxdomain", "missing.example", true, failure.NetworkFailure},
		{"garbage record", "junk.example", true, failure.ParseFailure},
		{"ipv6 literal", "[::1]", true, failure.InvalidURL},
		{"empty", "", true, failure.InvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newTestResolver(t, addr, tt.allow).Lookup(context.Background(), tt.host)
			assert.Equal(t, Unknown, res.ASN)
			assert.Equal(t, tt.kind, failure.KindOf(res.Err))
		})
	}
}

func TestParseOrigin(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"13335 | 104.16.0.0/13 | US | arin | 2014-03-28", 13335, false},
		{"13335 209242 | 104.16.0.0/13 | US | arin |", 13335, false},
		{"  64512  ", 64512, false},
		{"", 0, true},
		{"NA | 10.0.0.0/8", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseOrigin(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestResultWireForm(t *testing.T) {
	data, err := json.Marshal(Result{ASN: 15133})
	require.NoError(t, err)
	assert.JSONEq(t, `{"asn":15133}`, string(data))

	data, err = json.Marshal(Fail(failure.Newf(failure.NetworkFailure, "op", "timeout")))
	require.NoError(t, err)

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Unknown, back.ASN)
	assert.True(t, errors.Is(back.Err, failure.ErrNetworkFailure))
}
