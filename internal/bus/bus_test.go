package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/safebrowsing"
	"github.com/shrey-shah842/phishguard/internal/whitelist"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

func serve(t *testing.T, d Dispatcher) *Local {
	t.Helper()
	local := NewLocal(8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = local.Serve(ctx, d)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return local
}

func TestLocalRoundTrip(t *testing.T) {
	local := serve(t, DispatcherFunc(func(_ context.Context, m Message) Response {
		return Respond(map[string]string{"action": string(m.Action), "url": m.URL})
	}))

	resp, err := local.RoundTrip(context.Background(), Message{Action: ScanURL, URL: "https://example.com/"})
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(resp.Result, &got))
	assert.Equal(t, "scanURL", got["action"])
	assert.Equal(t, "https://example.com/", got["url"])
}

func TestClientInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	local := serve(t, DispatcherFunc(func(_ context.Context, m Message) Response {
		if m.Action == ScanURL {
			entered <- struct{}{}
			<-release
		}
		return Respond(safebrowsing.Result{Status: safebrowsing.Clean})
	}))
	client := NewClient(local, 5*time.Second, nil)

	first := make(chan error, 1)
	go func() { first <- client.Call(context.Background(), ScanURL, "a", nil) }()
	<-entered

	err := client.Call(context.Background(), ScanURL, "b", nil)
	assert.True(t, errors.Is(err, ErrInFlight))

	// a different action is not blocked
	require.NoError(t, client.Call(context.Background(), ExtractDomainDetails, "example.com", nil))

	// another page has its own slots
	other := NewClient(local, 5*time.Second, nil)
	second := make(chan error, 1)
	go func() { second <- other.Call(context.Background(), ScanURL, "c", nil) }()
	<-entered

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	require.NoError(t, client.Call(context.Background(), ScanURL, "d", nil))
}

func TestClientTimeout(t *testing.T) {
	block := make(chan struct{})
	local := serve(t, DispatcherFunc(func(context.Context, Message) Response {
		<-block
		return Respond(true)
	}))
	// unblock handlers before Serve waits on them
	t.Cleanup(func() { close(block) })
	client := NewClient(local, 20*time.Millisecond, nil)

	err := client.Call(context.Background(), ScanURL, "https://example.com/", nil)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, failure.NetworkFailure, failure.KindOf(err))

	res := client.ScanURL(context.Background(), "https://example.com/")
	assert.Equal(t, safebrowsing.Degraded, res.Status)
	assert.False(t, res.IsThreat())

	details := client.DomainDetails(context.Background(), "example.com")
	assert.Equal(t, whois.Details{}, details.Details)
	assert.True(t, errors.Is(details.Err, ErrTimeout))
}

func TestClientParentCancel(t *testing.T) {
	block := make(chan struct{})
	local := serve(t, DispatcherFunc(func(context.Context, Message) Response {
		<-block
		return Respond(true)
	}))
	// unblock handlers before Serve waits on them
	t.Cleanup(func() { close(block) })
	client := NewClient(local, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := client.Call(ctx, ScanURL, "https://example.com/", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestClientDispatchError(t *testing.T) {
	local := serve(t, DispatcherFunc(func(context.Context, Message) Response {
		return Fail(failure.Newf(failure.RateLimited, "svc", "slow down"))
	}))
	client := NewClient(local, time.Second, nil)

	err := client.Call(context.Background(), ScanURL, "x", nil)
	assert.True(t, errors.Is(err, failure.ErrRateLimited))

	res := client.AddToWhitelist(context.Background(), "https://example.com/")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "slow down")
}

func TestClientBadResult(t *testing.T) {
	local := serve(t, DispatcherFunc(func(context.Context, Message) Response {
		return Response{Result: json.RawMessage(`"not an object"`)}
	}))
	client := NewClient(local, time.Second, nil)

	var out whitelist.MutationResult
	err := client.Call(context.Background(), AddToWhitelist, "x", &out)
	assert.Equal(t, failure.ParseFailure, failure.KindOf(err))
}

func TestLocalClosed(t *testing.T) {
	local := NewLocal(0, nil)
	local.Close()
	local.Close()

	_, err := local.RoundTrip(context.Background(), Message{Action: ScanURL})
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, local.Serve(context.Background(), DispatcherFunc(func(context.Context, Message) Response {
		return Response{}
	})))
}

func TestResponseHelpers(t *testing.T) {
	r := Respond(map[string]int{"a": 1})
	assert.JSONEq(t, `{"a":1}`, string(r.Result))
	assert.NoError(t, r.Err())

	r = Respond(make(chan int))
	assert.Equal(t, failure.ParseFailure, r.ErrorKind)

	r = Fail(errors.New("plain"))
	assert.EqualError(t, r.Err(), "plain")
}
