// Package safebrowsing queries the Google Safe Browsing v4 threatMatches API.
package safebrowsing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/ratelimit"
)

const maxResponseBytes = 1 << 20

// Threat lists requested from the API.
var (
	ThreatTypes      = []string{"MALWARE", "SOCIAL_ENGINEERING", "PHISHING"}
	PlatformTypes    = []string{"WINDOWS"}
	ThreatEntryTypes = []string{"URL"}
)

type Config struct {
	Endpoint      string
	APIKey        string
	ClientID      string
	ClientVersion string
	Timeout       time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter ratelimit.Admitter
	logger  *zap.Logger
}

// New creates a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, limiter ratelimit.Admitter, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: limiter,
		logger:  logging.OrNop(logger).Named("safebrowsing"),
	}
}

type clientInfo struct {
	ClientID      string `json:"clientId"`
	ClientVersion string `json:"clientVersion"`
}

type threatInfo struct {
	ThreatTypes      []string      `json:"threatTypes"`
	PlatformTypes    []string      `json:"platformTypes"`
	ThreatEntryTypes []string      `json:"threatEntryTypes"`
	ThreatEntries    []ThreatEntry `json:"threatEntries"`
}

type findRequest struct {
	Client     clientInfo `json:"client"`
	ThreatInfo threatInfo `json:"threatInfo"`
}

type findResponse struct {
	Matches []Match `json:"matches"`
}

// Lookup checks rawURL against the threat lists. It never returns a Go error:
// failures come back as a Degraded result.
func (c *Client) Lookup(ctx context.Context, rawURL string) Result {
	const op = "safebrowsing.Lookup"

	if !c.limiter.CanMakeRequest(ctx, ratelimit.KeySafeBrowsing) {
		c.logger.Warn("lookup skipped", logging.URL(rawURL), logging.LimiterKey(ratelimit.KeySafeBrowsing))
		return Degrade(failure.Newf(failure.RateLimited, op, "rate limit exceeded, try again later"))
	}

	body, err := json.Marshal(findRequest{
		Client: clientInfo{ClientID: c.cfg.ClientID, ClientVersion: c.cfg.ClientVersion},
		ThreatInfo: threatInfo{
			ThreatTypes:      ThreatTypes,
			PlatformTypes:    PlatformTypes,
			ThreatEntryTypes: ThreatEntryTypes,
			ThreatEntries:    []ThreatEntry{{URL: rawURL}},
		},
	})
	if err != nil {
		return c.degraded(rawURL, failure.New(failure.ParseFailure, op, err))
	}

	endpoint := c.cfg.Endpoint
	if c.cfg.APIKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return c.degraded(rawURL, failure.New(failure.NetworkFailure, op, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.degraded(rawURL, failure.New(failure.NetworkFailure, op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.degraded(rawURL, failure.Newf(failure.NetworkFailure, op,
			"status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet)))
	}

	var found findResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&found); err != nil {
		return c.degraded(rawURL, failure.New(failure.ParseFailure, op, fmt.Errorf("decode response: %w", err)))
	}

	if len(found.Matches) > 0 {
		c.logger.Info("threat found", logging.URL(rawURL), zap.Int("matches", len(found.Matches)))
		return Result{Status: Threat, Matches: found.Matches}
	}

	c.logger.Debug("no threats found", logging.URL(rawURL))
	return Result{Status: Clean}
}

func (c *Client) degraded(rawURL string, err *failure.Error) Result {
	c.logger.Warn("lookup degraded", logging.URL(rawURL), zap.String("kind", string(err.Kind)), zap.Error(err))
	return Degrade(err)
}
