package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/asn"
	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/safebrowsing"
	"github.com/shrey-shah842/phishguard/internal/whitelist"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

// DefaultTimeout bounds a single call.
const DefaultTimeout = 10 * time.Second

// Client is a page's handle on the bus. It allows one outstanding call per
// action and bounds each call with a timeout.
type Client struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger

	mu       sync.Mutex
	inflight map[Action]bool
}

func NewClient(t Transport, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		transport: t,
		timeout:   timeout,
		logger:    logging.OrNop(logger).Named("bus"),
		inflight:  make(map[Action]bool),
	}
}

func (c *Client) acquire(a Action) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight[a] {
		return false
	}
	c.inflight[a] = true
	return true
}

func (c *Client) release(a Action) {
	c.mu.Lock()
	delete(c.inflight, a)
	c.mu.Unlock()
}

// Call sends {action, url} and decodes the result into out.
func (c *Client) Call(ctx context.Context, action Action, url string, out any) error {
	op := "bus." + string(action)

	if !c.acquire(action) {
		return fmt.Errorf("%s: %w", op, ErrInFlight)
	}
	defer c.release(action)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.transport.RoundTrip(callCtx, Message{Action: action, URL: url})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			c.logger.Warn("call timed out", logging.Action(string(action)), zap.Duration("timeout", c.timeout))
			return failure.New(failure.NetworkFailure, op, ErrTimeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.New(failure.NetworkFailure, op, err)
	}

	if len(resp.Result) == 0 {
		if err := resp.Err(); err != nil {
			return err
		}
		return failure.Newf(failure.ParseFailure, op, "empty response")
	}

	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return failure.New(failure.ParseFailure, op, err)
		}
	}
	return nil
}

// ScanURL asks for a threat-intel lookup. Failures come back Degraded.
func (c *Client) ScanURL(ctx context.Context, url string) safebrowsing.Result {
	var res safebrowsing.Result
	if err := c.Call(ctx, ScanURL, url, &res); err != nil {
		return safebrowsing.Degrade(err)
	}
	return res
}

// DomainDetails asks for registration details. Failures yield the sentinel.
func (c *Client) DomainDetails(ctx context.Context, host string) whois.Result {
	var res whois.Result
	if err := c.Call(ctx, ExtractDomainDetails, host, &res); err != nil {
		return whois.Fail(err)
	}
	return res
}

// LookupASN asks for the origin ASN of host.
func (c *Client) LookupASN(ctx context.Context, host string) asn.Result {
	var res asn.Result
	if err := c.Call(ctx, LookupASN, host, &res); err != nil {
		return asn.Fail(err)
	}
	return res
}

func (c *Client) AddToWhitelist(ctx context.Context, url string) whitelist.MutationResult {
	return c.mutate(ctx, AddToWhitelist, url)
}

func (c *Client) RemoveFromWhitelist(ctx context.Context, url string) whitelist.MutationResult {
	return c.mutate(ctx, RemoveFromWhitelist, url)
}

func (c *Client) mutate(ctx context.Context, action Action, url string) whitelist.MutationResult {
	var res whitelist.MutationResult
	if err := c.Call(ctx, action, url, &res); err != nil {
		return whitelist.MutationResult{Error: err.Error()}
	}
	return res
}
