// Package api holds the JSON bodies of the HTTP API.
package api

import (
	"github.com/shrey-shah842/phishguard/internal/features"
	"github.com/shrey-shah842/phishguard/internal/verdict"
)

type EvaluateRequest struct {
	URL string `json:"url"`
}

type EvaluateResponse struct {
	ID          string            `json:"id"`
	URL         string            `json:"url"`
	Whitelisted bool              `json:"whitelisted"`
	Verdicts    []verdict.Verdict `json:"verdicts"`
	States      []string          `json:"states"`
	Features    *features.Vector  `json:"features,omitempty"`
}

type WhitelistResponse struct {
	URLs []string `json:"urls"`
}

type HealthResponse struct {
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
