// Package server exposes the service context and the evaluator over HTTP.
package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/api"
	"github.com/shrey-shah842/phishguard/internal/auth"
	"github.com/shrey-shah842/phishguard/internal/bus"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/risk"
	"github.com/shrey-shah842/phishguard/internal/verdict"
)

const maxBodyBytes = 1 << 16 // 64KB

// Evaluator is satisfied by *risk.Orchestrator.
type Evaluator interface {
	Evaluate(ctx context.Context, url string, p verdict.Presenter) risk.Evaluation
}

// WhitelistLister is satisfied by *whitelist.Store.
type WhitelistLister interface {
	List(ctx context.Context) ([]string, error)
}

// ActionLister is satisfied by *service.Context.
type ActionLister interface {
	Actions() []bus.Action
}

// APIServer handles the REST API. When RequireAuth is set every route but
// /healthz needs a bearer key issued into DB.
type APIServer struct {
	DB          *sql.DB
	Bus         bus.Dispatcher
	Evaluator   Evaluator
	Whitelist   WhitelistLister
	Presenter   verdict.Presenter
	RequireAuth bool
	Logger      *zap.Logger
}

// AuthMiddleware validates API key authentication for protected routes.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		_, ok, err := auth.Authenticate(s.DB, key)
		if err != nil {
			s.logger().Error("api key lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/messages", s.handleMessage)
	v1.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	v1.HandleFunc("GET /v1/whitelist", s.handleWhitelist)

	var protected http.Handler = v1
	if s.RequireAuth {
		protected = s.AuthMiddleware(v1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("/v1/", protected)
	return mux
}

func (s *APIServer) logger() *zap.Logger {
	return logging.OrNop(s.Logger)
}

func (s *APIServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := api.HealthResponse{Status: "ok", Actions: []string{}}
	if lister, ok := s.Bus.(ActionLister); ok {
		for _, a := range lister.Actions() {
			resp.Actions = append(resp.Actions, string(a))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleMessage(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	var msg bus.Message
	if !decodeBody(w, r, &msg) {
		return
	}
	if msg.Action == "" {
		writeError(w, http.StatusBadRequest, "action required")
		return
	}

	// Lookups run to completion even if the caller goes away, as they would
	// on the in-process bus.
	resp := s.Bus.Dispatch(context.WithoutCancel(r.Context()), msg)
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if s.Evaluator == nil {
		writeError(w, http.StatusServiceUnavailable, "evaluator unavailable")
		return
	}

	var req api.EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}

	ev := s.Evaluator.Evaluate(r.Context(), req.URL, s.Presenter)

	resp := api.EvaluateResponse{
		ID:          ev.ID,
		URL:         ev.URL,
		Whitelisted: ev.Whitelisted,
		Verdicts:    ev.Verdicts,
		States:      make([]string, 0, len(ev.States)),
		Features:    ev.Features,
	}
	if resp.Verdicts == nil {
		resp.Verdicts = []verdict.Verdict{}
	}
	for _, st := range ev.States {
		resp.States = append(resp.States, string(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *APIServer) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	if s.Whitelist == nil {
		writeError(w, http.StatusServiceUnavailable, "whitelist unavailable")
		return
	}

	urls, err := s.Whitelist.List(r.Context())
	if err != nil {
		s.logger().Error("list whitelist", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, api.WhitelistResponse{URLs: urls})
}

// decodeBody decodes a single JSON object from the request body. It writes
// the error response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			writeError(w, http.StatusBadRequest, "request body required")
		default:
			writeError(w, http.StatusBadRequest, "invalid JSON")
		}
		return false
	}
	// Ensure no trailing data
	if dec.Decode(&struct{}{}) != io.EOF {
		writeError(w, http.StatusBadRequest, "unexpected trailing data")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
