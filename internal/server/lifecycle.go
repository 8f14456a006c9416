package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/shrey-shah842/phishguard/internal/logging"
)

type ServerConfig struct {
	Addr              string
	Handler           http.Handler
	TLSConfig         *tls.Config
	Logger            *zap.Logger
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultServerConfig leaves WriteTimeout long enough for an evaluation that
// waits on several bus calls.
func DefaultServerConfig(addr string, handler http.Handler, logger *zap.Logger) ServerConfig {
	return ServerConfig{
		Addr:              addr,
		Handler:           handler,
		Logger:            logger,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}

// ManagedServer runs one http.Server in the background and reports whether
// it came up.
type ManagedServer struct {
	server   *http.Server
	logger   *zap.Logger
	name     string
	useTLS   bool
	ln       net.Listener
	errCh    chan error
	startErr error
}

func NewManagedServer(name string, cfg ServerConfig) *ManagedServer {
	logger := logging.OrNop(cfg.Logger)
	errLog, _ := zap.NewStdLogAt(logger, zapcore.ErrorLevel)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cfg.Handler,
		TLSConfig:         cfg.TLSConfig,
		ErrorLog:          errLog,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return &ManagedServer{
		server: srv,
		logger: logger,
		name:   name,
		useTLS: cfg.TLSConfig != nil,
		errCh:  make(chan error, 1),
	}
}

// Start binds the listen address and serves in a goroutine. Bind errors are
// returned directly.
func (m *ManagedServer) Start() error {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		m.startErr = err
		close(m.errCh)
		return fmt.Errorf("%s failed to start: %w", m.name, err)
	}
	m.ln = ln
	m.logger.Info("starting server",
		logging.Component(m.name),
		logging.Addr(ln.Addr().String()),
		zap.Bool("tls", m.useTLS))

	go func() {
		var err error
		if m.useTLS {
			err = m.server.ServeTLS(ln, "", "")
		} else {
			err = m.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.errCh <- err
		}
		close(m.errCh)
	}()
	return nil
}

// Addr returns the bound address once started.
func (m *ManagedServer) Addr() string {
	if m.ln == nil {
		return m.server.Addr
	}
	return m.ln.Addr().String()
}

// WaitForStartup returns early if serving fails within timeout.
func (m *ManagedServer) WaitForStartup(timeout time.Duration) error {
	if m.startErr != nil {
		return fmt.Errorf("%s failed to start: %w", m.name, m.startErr)
	}
	select {
	case err := <-m.errCh:
		if err != nil {
			m.startErr = err
			return fmt.Errorf("%s failed to start: %w", m.name, err)
		}
		return nil
	case <-time.After(timeout):
		return nil
	}
}

// Errors delivers a serve failure after startup, then closes.
func (m *ManagedServer) Errors() <-chan error {
	return m.errCh
}

func (m *ManagedServer) Shutdown(ctx context.Context) {
	if m.startErr != nil {
		return
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warn("shutdown error", logging.Component(m.name), zap.Error(err))
	}
}
