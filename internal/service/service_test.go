package service

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/asn"
	"github.com/shrey-shah842/phishguard/internal/bus"
	"github.com/shrey-shah842/phishguard/internal/db"
	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/ratelimit"
	"github.com/shrey-shah842/phishguard/internal/safebrowsing"
	"github.com/shrey-shah842/phishguard/internal/whitelist"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

type fakeThreats struct {
	limiter ratelimit.Admitter
	calls   atomic.Int32
}

func (f *fakeThreats) Lookup(ctx context.Context, url string) safebrowsing.Result {
	f.calls.Add(1)
	if f.limiter != nil && !f.limiter.CanMakeRequest(ctx, ratelimit.KeySafeBrowsing) {
		return safebrowsing.Degrade(failure.Newf(failure.RateLimited, "test", "limited"))
	}
	if url == "http://evil.example/" {
		return safebrowsing.Result{Status: safebrowsing.Threat, Matches: []safebrowsing.Match{{ThreatType: "PHISHING"}}}
	}
	return safebrowsing.Result{Status: safebrowsing.Clean}
}

type fakeDomains struct{}

func (fakeDomains) Lookup(_ context.Context, domain string) whois.Result {
	exp := "2030-01-01"
	return whois.Result{Details: whois.Details{EstimatedDomainAge: len(domain), ExpirationDate: &exp}}
}

type panicky struct{}

func (panicky) Lookup(context.Context, string) asn.Result { panic("resolver exploded") }

func newLocal(t *testing.T, svc *Context) *bus.Local {
	t.Helper()
	local := bus.NewLocal(16, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = local.Serve(ctx, svc)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return local
}

func TestDispatchScanURL(t *testing.T) {
	svc := New(Deps{Threats: &fakeThreats{}}, zap.NewNop())
	client := bus.NewClient(newLocal(t, svc), time.Second, nil)

	res := client.ScanURL(context.Background(), "http://evil.example/")
	assert.True(t, res.IsThreat())
	require.Len(t, res.Matches, 1)

	res = client.ScanURL(context.Background(), "https://example.com/")
	assert.Equal(t, safebrowsing.Clean, res.Status)
}

func TestDispatchDomainDetails(t *testing.T) {
	svc := New(Deps{Domains: fakeDomains{}}, zap.NewNop())
	client := bus.NewClient(newLocal(t, svc), time.Second, nil)

	res := client.DomainDetails(context.Background(), "example.com")
	require.NoError(t, res.Err)
	assert.Equal(t, 11, res.Details.EstimatedDomainAge)
	require.NotNil(t, res.Details.ExpirationDate)
	assert.Equal(t, "2030-01-01", *res.Details.ExpirationDate)
}

func TestDispatchUnknownAction(t *testing.T) {
	svc := New(Deps{}, zap.NewNop())

	resp := svc.Dispatch(context.Background(), bus.Message{Action: "bogus"})
	assert.Empty(t, resp.Result)
	assert.Contains(t, resp.Error, "unknown action")

	client := bus.NewClient(newLocal(t, svc), time.Second, nil)
	res := client.LookupASN(context.Background(), "example.com")
	assert.Equal(t, asn.Unknown, res.ASN)
	assert.Error(t, res.Err)
}

func TestDispatchRecoversPanic(t *testing.T) {
	svc := New(Deps{ASN: panicky{}}, zap.NewNop())

	resp := svc.Dispatch(context.Background(), bus.Message{Action: bus.LookupASN, URL: "example.com"})
	assert.Contains(t, resp.Error, "resolver exploded")

	client := bus.NewClient(newLocal(t, svc), time.Second, nil)
	res := client.LookupASN(context.Background(), "example.com")
	assert.Equal(t, asn.Unknown, res.ASN)
	assert.Error(t, res.Err)
}

func TestActions(t *testing.T) {
	svc := New(Deps{Threats: &fakeThreats{}, Domains: fakeDomains{}}, zap.NewNop())
	assert.Equal(t, []bus.Action{bus.ExtractDomainDetails, bus.ScanURL}, svc.Actions())

	svc.Register(bus.LookupASN, func(context.Context, string) any { return asn.Result{ASN: 1} })
	assert.Len(t, svc.Actions(), 3)
}

func TestWhitelistOverBus(t *testing.T) {
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	svc := New(Deps{Whitelist: whitelist.New(d, zap.NewNop())}, zap.NewNop())
	client := bus.NewClient(newLocal(t, svc), time.Second, nil)
	ctx := context.Background()

	assert.Equal(t, whitelist.MutationResult{Success: true}, client.AddToWhitelist(ctx, "https://example.com/"))
	assert.Equal(t, whitelist.MutationResult{Reason: whitelist.ReasonAlreadyPresent}, client.AddToWhitelist(ctx, "https://example.com/"))
	assert.Equal(t, whitelist.MutationResult{Success: true}, client.RemoveFromWhitelist(ctx, "https://example.com/"))
	assert.Equal(t, whitelist.MutationResult{Reason: whitelist.ReasonNotPresent}, client.RemoveFromWhitelist(ctx, "https://example.com/"))
}

// Many pages share one service context; the limiter must hold under real
// interleaving across bus goroutines.
func TestSharedLimiterAcrossPages(t *testing.T) {
	limiter := ratelimit.New(ratelimit.WithDefaultRule(ratelimit.Rule{MaxRequests: 5, Window: time.Minute}))
	threats := &fakeThreats{limiter: limiter}
	local := newLocal(t, New(Deps{Threats: threats}, zap.NewNop()))

	var clean, limited atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page := bus.NewClient(local, time.Second, nil)
			res := page.ScanURL(context.Background(), "https://example.com/")
			switch {
			case res.Status == safebrowsing.Clean:
				clean.Add(1)
			case errors.Is(res.Err, failure.ErrRateLimited):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), clean.Load())
	assert.Equal(t, int32(15), limited.Load())
	assert.Equal(t, int32(20), threats.calls.Load())
}

func TestRespondEncodesHandlerValue(t *testing.T) {
	svc := New(Deps{}, zap.NewNop())
	svc.Register("echo", func(_ context.Context, url string) any { return map[string]string{"url": url} })

	resp := svc.Dispatch(context.Background(), bus.Message{Action: "echo", URL: "x"})
	var got map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Equal(t, "x", got["url"])
}
