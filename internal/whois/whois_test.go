package whois

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/failure"
)

type stubLimiter struct{ allow bool }

func (s stubLimiter) CanMakeRequest(context.Context, string) bool { return s.allow }

func newTestClient(srv *httptest.Server, allow bool) *Client {
	return New(Config{Endpoint: srv.URL, APIKey: "whois-key", Timeout: 2 * time.Second},
		stubLimiter{allow: allow}, srv.Client(), zap.NewNop())
}

func TestLookupParsesRecord(t *testing.T) {
	var got serviceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"WhoisRecord":{"estimatedDomainAge":9000,"expiresDate":"2030-01-01T00:00:00Z"}}`))
	}))
	defer srv.Close()

	res := newTestClient(srv, true).Lookup(context.Background(), "login.accounts.example.co.uk")

	require.NoError(t, res.Err)
	assert.Equal(t, 9000, res.Details.EstimatedDomainAge)
	require.NotNil(t, res.Details.ExpirationDate)
	assert.Equal(t, "2030-01-01T00:00:00Z", *res.Details.ExpirationDate)

	assert.Equal(t, "whois-key", got.APIKey)
	assert.Equal(t, "example.co.uk", got.DomainName)
	assert.Equal(t, "JSON", got.OutputFormat)
}

func TestLookupRegistryFallbackAndClamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"WhoisRecord":{"estimatedDomainAge":-4,"registryData":{"expiresDate":"2031-05-05"}}}`))
	}))
	defer srv.Close()

	res := newTestClient(srv, true).Lookup(context.Background(), "example.com")

	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.Details.EstimatedDomainAge)
	require.NotNil(t, res.Details.ExpirationDate)
	assert.Equal(t, "2031-05-05", *res.Details.ExpirationDate)
}

func TestLookupMissingRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	res := newTestClient(srv, true).Lookup(context.Background(), "example.com")
	assert.NoError(t, res.Err)
	assert.Equal(t, Details{}, res.Details)
}

func TestLookupFailuresYieldSentinel(t *testing.T) {
	tests := []struct {
		name    string
		allow   bool
		handler http.HandlerFunc
		domain  string
		kind    failure.Kind
	}{
		{"rate limited", false, nil, "example.com", failure.RateLimited},
		{"http error", true, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}, "example.com", failure.NetworkFailure},
		{"service error", true, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"ErrorMessage":{"errorCode":"WHOIS_01","msg":"bad key"}}`))
		}, "example.com", failure.NetworkFailure},
		{"bad json", true, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}, "example.com", failure.ParseFailure},
		{"empty domain", true, nil, "  ", failure.InvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if tt.handler != nil {
					tt.handler(w, r)
				}
			}))
			defer srv.Close()

			res := newTestClient(srv, tt.allow).Lookup(context.Background(), tt.domain)
			assert.Equal(t, Details{}, res.Details)
			assert.Equal(t, tt.kind, failure.KindOf(res.Err))
			if tt.handler == nil {
				assert.Equal(t, int32(0), hits.Load())
			}
		})
	}
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"www.example.com", "example.com", false},
		{"WWW.Example.COM.", "example.com", false},
		{"https://a.b.example.co.uk/path", "example.co.uk", false},
		{"192.168.0.1", "192.168.0.1", false},
		{"localhost", "localhost", false},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := RegistrableDomain(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestResultWireForm(t *testing.T) {
	exp := "2030-01-01"
	data, err := json.Marshal(Result{Details: Details{EstimatedDomainAge: 10, ExpirationDate: &exp}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"estimatedDomainAge":10,"expirationDate":"2030-01-01"}`, string(data))

	data, err = json.Marshal(Fail(failure.Newf(failure.RateLimited, "op", "slow")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"estimatedDomainAge":0,"expirationDate":null,"error":"op: rate_limited: slow","errorKind":"rate_limited"}`, string(data))

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, errors.Is(back.Err, failure.ErrRateLimited))
	assert.Nil(t, back.Details.ExpirationDate)
}
