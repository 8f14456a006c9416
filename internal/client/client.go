// Package client talks to a remote phishguard API. It doubles as a
// bus.Transport so a local page context can use a remote service context.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shrey-shah842/phishguard/internal/api"
	"github.com/shrey-shah842/phishguard/internal/bus"
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
	}
}

// RoundTrip implements bus.Transport over POST /v1/messages.
func (c *Client) RoundTrip(ctx context.Context, m bus.Message) (bus.Response, error) {
	var resp bus.Response
	if err := c.do(ctx, http.MethodPost, "/v1/messages", m, &resp); err != nil {
		return bus.Response{}, err
	}
	return resp, nil
}

// Evaluate runs the full pipeline on the server.
func (c *Client) Evaluate(ctx context.Context, url string) (*api.EvaluateResponse, error) {
	var resp api.EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/evaluate", api.EvaluateRequest{URL: url}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Whitelist(ctx context.Context) ([]string, error) {
	var resp api.WhitelistResponse
	if err := c.do(ctx, http.MethodGet, "/v1/whitelist", nil, &resp); err != nil {
		return nil, err
	}
	return resp.URLs, nil
}

func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return fmt.Errorf("%s", errResp.Error)
}
