// Package whois fetches registration age and expiry from the WhoisXML API.
package whois

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/ratelimit"
)

const maxResponseBytes = 4 << 20

type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
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
		logger:  logging.OrNop(logger).Named("whois"),
	}
}

type serviceRequest struct {
	APIKey       string `json:"apiKey"`
	DomainName   string `json:"domainName"`
	OutputFormat string `json:"outputFormat"`
}

type serviceResponse struct {
	WhoisRecord *struct {
		EstimatedDomainAge *float64 `json:"estimatedDomainAge"`
		ExpiresDate        *string  `json:"expiresDate"`
		RegistryData       *struct {
			ExpiresDate *string `json:"expiresDate"`
		} `json:"registryData"`
	} `json:"WhoisRecord"`
	ErrorMessage *struct {
		ErrorCode string `json:"errorCode"`
		Msg       string `json:"msg"`
	} `json:"ErrorMessage"`
}

// Lookup returns registration details for domain, which may be a bare host
// or an absolute URL. Any failure yields the zero Details with Err set.
func (c *Client) Lookup(ctx context.Context, domain string) Result {
	const op = "whois.Lookup"

	if !c.limiter.CanMakeRequest(ctx, ratelimit.KeyDomainDetails) {
		c.logger.Warn("lookup skipped", logging.Domain(domain), logging.LimiterKey(ratelimit.KeyDomainDetails))
		return Fail(failure.Newf(failure.RateLimited, op, "rate limit exceeded, try again later"))
	}

	name, err := RegistrableDomain(domain)
	if err != nil {
		return c.failed(domain, failure.New(failure.InvalidURL, op, err))
	}

	body, err := json.Marshal(serviceRequest{
		APIKey:       c.cfg.APIKey,
		DomainName:   name,
		OutputFormat: "JSON",
	})
	if err != nil {
		return c.failed(name, failure.New(failure.ParseFailure, op, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return c.failed(name, failure.New(failure.NetworkFailure, op, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.failed(name, failure.New(failure.NetworkFailure, op, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.failed(name, failure.Newf(failure.NetworkFailure, op, "status %d", resp.StatusCode))
	}

	var sr serviceResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sr); err != nil {
		return c.failed(name, failure.New(failure.ParseFailure, op, fmt.Errorf("decode response: %w", err)))
	}
	if sr.ErrorMessage != nil {
		return c.failed(name, failure.Newf(failure.NetworkFailure, op, "service error %s: %s",
			sr.ErrorMessage.ErrorCode, sr.ErrorMessage.Msg))
	}

	var d Details
	if rec := sr.WhoisRecord; rec != nil {
		if rec.EstimatedDomainAge != nil && *rec.EstimatedDomainAge > 0 {
			d.EstimatedDomainAge = int(*rec.EstimatedDomainAge)
		}
		switch {
		case nonEmpty(rec.ExpiresDate):
			d.ExpirationDate = rec.ExpiresDate
		case rec.RegistryData != nil && nonEmpty(rec.RegistryData.ExpiresDate):
			d.ExpirationDate = rec.RegistryData.ExpiresDate
		}
	}

	c.logger.Debug("domain details",
		logging.Domain(name),
		zap.Int("estimated_domain_age", d.EstimatedDomainAge),
		zap.Stringp("expiration_date", d.ExpirationDate))
	return Result{Details: d}
}

func (c *Client) failed(domain string, err *failure.Error) Result {
	c.logger.Warn("lookup failed", logging.Domain(domain), zap.String("kind", string(err.Kind)), zap.Error(err))
	return Fail(err)
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// RegistrableDomain reduces s to its public-suffix eTLD+1. Hosts without one,
// such as IP literals or bare suffixes, are returned unchanged.
func RegistrableDomain(s string) (string, error) {
	host := strings.TrimSpace(s)
	if strings.Contains(host, "://") {
		u, err := url.Parse(host)
		if err != nil {
			return "", err
		}
		host = u.Hostname()
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return "", fmt.Errorf("empty domain")
	}
	if net.ParseIP(strings.Trim(host, "[]")) != nil {
		return host, nil
	}
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return etld1, nil
	}
	return host, nil
}
