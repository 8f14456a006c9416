// Package predictor submits feature vectors to the model prediction endpoint.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
	"github.com/shrey-shah842/phishguard/internal/features"
	"github.com/shrey-shah842/phishguard/internal/logging"
)

// Label is the interpreted model output.
type Label string

const (
	Phishing Label = "phishing"
	Legit    Label = "legit"
	Unknown  Label = "unknown"
)

// Outcome is the result of one prediction. Raw holds the value as returned.
// Err is set whenever Label is Unknown.
type Outcome struct {
	Label Label
	Raw   string
	Err   error
}

// Model is the narrow view the orchestrator depends on.
type Model interface {
	Predict(ctx context.Context, v features.Vector) Outcome
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logging.OrNop(logger).Named("predictor"),
	}
}

type predictResponse struct {
	Prediction json.RawMessage `json:"prediction"`
	Error      string          `json:"error"`
}

// Predict posts v and interprets {"prediction": ...}. It never returns a Go
// error; failures yield Unknown.
func (c *Client) Predict(ctx context.Context, v features.Vector) Outcome {
	const op = "predictor.Predict"

	body, err := json.Marshal(v)
	if err != nil {
		return c.unknown("", failure.New(failure.ParseFailure, op, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return c.unknown("", failure.New(failure.NetworkFailure, op, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return c.unknown("", failure.New(failure.NetworkFailure, op, err))
	}
	defer resp.Body.Close()

	var pr predictResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&pr)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := pr.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return c.unknown("", failure.Newf(failure.NetworkFailure, op, "status %d: %s", resp.StatusCode, msg))
	}
	if decodeErr != nil {
		return c.unknown("", failure.New(failure.ParseFailure, op, fmt.Errorf("decode response: %w", decodeErr)))
	}

	out := Interpret(pr.Prediction)
	if out.Label == Unknown {
		c.logger.Warn("unknown prediction result", zap.String("raw", out.Raw), zap.Error(out.Err))
		return out
	}
	c.logger.Debug("prediction", zap.String("label", string(out.Label)), zap.String("raw", out.Raw))
	return out
}

func (c *Client) unknown(raw string, err *failure.Error) Outcome {
	c.logger.Warn("prediction failed", zap.String("kind", string(err.Kind)), zap.Error(err))
	return Outcome{Label: Unknown, Raw: raw, Err: err}
}

// Interpret converts a raw prediction value numerically: 1 is Phishing,
// 0 is Legit and anything else is Unknown. Numeric strings are accepted.
func Interpret(raw json.RawMessage) Outcome {
	text := strings.TrimSpace(string(raw))
	value := text

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		value = strings.TrimSpace(s)
	}

	if value == "" || text == "null" {
		return Outcome{Label: Unknown, Raw: text, Err: failure.Newf(failure.UnknownPredictionValue, "predictor.Interpret", "missing prediction")}
	}

	n, err := strconv.ParseFloat(value, 64)
	switch {
	case err != nil:
	case n == 1:
		return Outcome{Label: Phishing, Raw: text}
	case n == 0:
		return Outcome{Label: Legit, Raw: text}
	}
	return Outcome{Label: Unknown, Raw: text, Err: failure.Newf(failure.UnknownPredictionValue, "predictor.Interpret", "prediction %s", text)}
}
