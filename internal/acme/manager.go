// Package acme obtains and renews the API server's certificates.
package acme

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caddyserver/certmagic"
	certmagicsqlite "github.com/rsclarke/certmagic-sqlite"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/logging"
)

// Manager obtains certificates for Domains. Without a TXTStore it solves
// TLS-ALPN-01 and HTTP-01; with one it solves DNS-01 through the challenge
// responder instead.
type Manager struct {
	Domains  []string
	Email    string
	Staging  bool
	DB       *sql.DB
	TXTStore *TXTStore
	Logger   *zap.Logger

	config  *certmagic.Config
	storage *certmagicsqlite.SQLiteStorage
}

// SetLogger configures the global certmagic loggers. Call it before any
// server that may answer challenges starts.
func SetLogger(logger *zap.Logger) {
	logger = logging.OrNop(logger)
	certmagic.Default.Logger = logger
	certmagic.DefaultACME.Logger = logger
}

func NewManager(domains []string, email string, d *sql.DB, staging bool, store *TXTStore, logger *zap.Logger) (*Manager, error) {
	if len(domains) == 0 {
		return nil, errors.New("acme: at least one domain is required")
	}
	if d == nil {
		return nil, errors.New("acme: database is required")
	}
	clean := make([]string, 0, len(domains))
	for _, dom := range domains {
		dom = NormalizeName(strings.TrimSpace(dom))
		if dom == "" || strings.ContainsAny(dom, "/: ") {
			return nil, fmt.Errorf("acme: invalid domain %q", dom)
		}
		clean = append(clean, dom)
	}

	logger = logging.OrNop(logger)
	SetLogger(logger)

	return &Manager{
		Domains:  clean,
		Email:    email,
		Staging:  staging,
		DB:       d,
		TXTStore: store,
		Logger:   logger,
	}, nil
}

// CA returns the directory URL in use.
func (m *Manager) CA() string {
	if m.Staging {
		return certmagic.LetsEncryptStagingCA
	}
	return certmagic.LetsEncryptProductionCA
}

// Storage opens the certificate store in the shared database.
func (m *Manager) Storage() (*certmagicsqlite.SQLiteStorage, error) {
	if m.storage != nil {
		return m.storage, nil
	}
	hostname, _ := os.Hostname()
	storage, err := certmagicsqlite.NewWithDB(m.DB, certmagicsqlite.WithOwnerID(hostname))
	if err != nil {
		return nil, fmt.Errorf("create certmagic storage: %w", err)
	}
	m.storage = storage
	return storage, nil
}

func (m *Manager) issuerTemplate() certmagic.ACMEIssuer {
	tmpl := certmagic.ACMEIssuer{
		CA:     m.CA(),
		Email:  m.Email,
		Agreed: true,
		Logger: m.Logger,
	}
	if m.TXTStore != nil {
		tmpl.DNS01Solver = &certmagic.DNS01Solver{
			DNSManager: certmagic.DNSManager{
				DNSProvider: &Provider{Store: m.TXTStore, Logger: m.Logger},
				Logger:      m.Logger,
			},
		}
	}
	return tmpl
}

// Manage obtains certificates for every domain and keeps them renewed.
func (m *Manager) Manage(ctx context.Context) error {
	storage, err := m.Storage()
	if err != nil {
		return err
	}

	cfg := certmagic.NewDefault()
	cfg.Storage = storage
	cfg.Logger = m.Logger
	cfg.Issuers = []certmagic.Issuer{certmagic.NewACMEIssuer(cfg, m.issuerTemplate())}
	m.config = cfg

	m.Logger.Info("obtaining certificates",
		zap.Strings("domains", m.Domains),
		zap.Bool("staging", m.Staging),
		zap.Bool("dns01", m.TXTStore != nil))
	if err := cfg.ManageSync(ctx, m.Domains); err != nil {
		return fmt.Errorf("manage certificates for %s: %w", strings.Join(m.Domains, ","), err)
	}
	return nil
}

// TLSConfig returns a TLS configuration serving the managed certificates,
// or nil before Manage succeeds.
func (m *Manager) TLSConfig() *tls.Config {
	if m.config == nil {
		return nil
	}
	tlsCfg := m.config.TLSConfig()
	tlsCfg.NextProtos = append([]string{"h2", "http/1.1"}, tlsCfg.NextProtos...)
	return tlsCfg
}
