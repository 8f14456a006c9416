// Package service is the long-lived context that owns the rate limiter and
// the reputation clients. It is reachable only through the bus.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/asn"
	"github.com/shrey-shah842/phishguard/internal/bus"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/safebrowsing"
	"github.com/shrey-shah842/phishguard/internal/whitelist"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

// ThreatLookup is satisfied by *safebrowsing.Client.
type ThreatLookup interface {
	Lookup(ctx context.Context, url string) safebrowsing.Result
}

// DomainLookup is satisfied by *whois.Client.
type DomainLookup interface {
	Lookup(ctx context.Context, domain string) whois.Result
}

// ASNLookup is satisfied by *asn.Resolver.
type ASNLookup interface {
	Lookup(ctx context.Context, host string) asn.Result
}

// WhitelistEditor is satisfied by *whitelist.Store.
type WhitelistEditor interface {
	Add(ctx context.Context, url string) whitelist.MutationResult
	Remove(ctx context.Context, url string) whitelist.MutationResult
}

// HandlerFunc serves one action. Its return value becomes the response result.
type HandlerFunc func(ctx context.Context, url string) any

// Deps are the collaborators served over the bus. A nil ASN disables the
// lookupASN action.
type Deps struct {
	Threats   ThreatLookup
	Domains   DomainLookup
	ASN       ASNLookup
	Whitelist WhitelistEditor
}

// Context routes bus messages to registered handlers.
type Context struct {
	mu       sync.RWMutex
	handlers map[bus.Action]HandlerFunc
	logger   *zap.Logger
}

// New creates a Context with a handler registered for each available
// dependency.
func New(deps Deps, logger *zap.Logger) *Context {
	c := &Context{
		handlers: make(map[bus.Action]HandlerFunc),
		logger:   logging.OrNop(logger).Named("service"),
	}

	if deps.Threats != nil {
		c.Register(bus.ScanURL, func(ctx context.Context, url string) any {
			return deps.Threats.Lookup(ctx, url)
		})
	}
	if deps.Domains != nil {
		c.Register(bus.ExtractDomainDetails, func(ctx context.Context, url string) any {
			return deps.Domains.Lookup(ctx, url)
		})
	}
	if deps.ASN != nil {
		c.Register(bus.LookupASN, func(ctx context.Context, url string) any {
			return deps.ASN.Lookup(ctx, url)
		})
	}
	if deps.Whitelist != nil {
		c.Register(bus.AddToWhitelist, func(ctx context.Context, url string) any {
			return deps.Whitelist.Add(ctx, url)
		})
		c.Register(bus.RemoveFromWhitelist, func(ctx context.Context, url string) any {
			return deps.Whitelist.Remove(ctx, url)
		})
	}
	return c
}

// Register installs or replaces the handler for action.
func (c *Context) Register(action bus.Action, h HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[action] = h
}

// Actions lists the registered actions in sorted order.
func (c *Context) Actions() []bus.Action {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]bus.Action, 0, len(c.handlers))
	for a := range c.handlers {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch implements bus.Dispatcher. A handler panic becomes an error
// response.
func (c *Context) Dispatch(ctx context.Context, m bus.Message) (resp bus.Response) {
	c.mu.RLock()
	h, ok := c.handlers[m.Action]
	c.mu.RUnlock()

	if !ok {
		c.logger.Warn("unknown action", logging.Action(string(m.Action)))
		return bus.Fail(fmt.Errorf("unknown action %q", m.Action))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", logging.Action(string(m.Action)), logging.URL(m.URL), zap.Any("panic", r))
			resp = bus.Fail(fmt.Errorf("%s: internal error: %v", m.Action, r))
		}
	}()

	resp = bus.Respond(h(ctx, m.URL))
	c.logger.Debug("dispatched",
		logging.Action(string(m.Action)),
		logging.URL(m.URL),
		zap.Duration("elapsed", time.Since(start)))
	return resp
}
