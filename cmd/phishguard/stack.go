package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/asn"
	"github.com/shrey-shah842/phishguard/internal/bus"
	"github.com/shrey-shah842/phishguard/internal/client"
	"github.com/shrey-shah842/phishguard/internal/config"
	"github.com/shrey-shah842/phishguard/internal/db"
	"github.com/shrey-shah842/phishguard/internal/features"
	"github.com/shrey-shah842/phishguard/internal/predictor"
	"github.com/shrey-shah842/phishguard/internal/ratelimit"
	"github.com/shrey-shah842/phishguard/internal/risk"
	"github.com/shrey-shah842/phishguard/internal/safebrowsing"
	"github.com/shrey-shah842/phishguard/internal/service"
	"github.com/shrey-shah842/phishguard/internal/whitelist"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

// stack is an in-process service context with its local bus.
type stack struct {
	cfg       *config.Config
	db        *sql.DB
	redis     *ratelimit.RedisStore
	limiter   *ratelimit.Limiter
	whois     *whois.Client
	asn       *asn.Resolver
	whitelist *whitelist.Store
	service   *service.Context
	bus       *bus.Local
	logger    *zap.Logger

	stop    context.CancelFunc
	stopped chan struct{}
}

func openStack(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stack, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &stack{cfg: cfg, db: database, logger: logger}

	limiterOpts := append(cfg.LimiterOptions(), ratelimit.WithLogger(logger))
	if cfg.Redis.Addr != "" {
		store, err := ratelimit.NewRedisStore(ctx, ratelimit.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		s.redis = store
		limiterOpts = append(limiterOpts, ratelimit.WithStore(store))
		logger.Info("rate windows shared through redis", zap.String("redis", cfg.Redis.Addr))
	}
	s.limiter = ratelimit.New(limiterOpts...)

	threats := safebrowsing.New(safebrowsing.Config{
		Endpoint:      cfg.SafeBrowsing.Endpoint,
		APIKey:        cfg.SafeBrowsing.APIKey,
		ClientID:      cfg.SafeBrowsing.ClientID,
		ClientVersion: cfg.SafeBrowsing.ClientVersion,
		Timeout:       cfg.SafeBrowsing.Timeout,
	}, s.limiter, nil, logger)

	s.whois = whois.New(whois.Config{
		Endpoint: cfg.Whois.Endpoint,
		APIKey:   cfg.Whois.APIKey,
		Timeout:  cfg.Whois.Timeout,
	}, s.limiter, nil, logger)

	deps := service.Deps{Threats: threats, Domains: s.whois}
	if cfg.ASN.Enabled {
		s.asn = asn.New(asn.Config{Server: cfg.ASN.Server, Zone: cfg.ASN.Zone, Timeout: cfg.ASN.Timeout}, s.limiter, logger)
		deps.ASN = s.asn
	}

	s.whitelist = whitelist.New(database, logger)
	deps.Whitelist = s.whitelist
	s.service = service.New(deps, logger)

	s.bus = bus.NewLocal(64, logger)
	serveCtx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.stopped = make(chan struct{})
	go func() {
		defer close(s.stopped)
		if err := s.bus.Serve(serveCtx, s.service); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("bus stopped", zap.Error(err))
		}
	}()

	return s, nil
}

func newModel(cfg *config.Config, logger *zap.Logger) *predictor.Client {
	return predictor.New(predictor.Config{Endpoint: cfg.Predictor.Endpoint, Timeout: cfg.Predictor.Timeout}, nil, logger)
}

// orchestrator builds a page-side evaluator over the local bus.
func (s *stack) orchestrator() *risk.Orchestrator {
	return newOrchestrator(s.cfg, s.whitelist, s.bus, s.logger)
}

func newOrchestrator(cfg *config.Config, wl risk.WhitelistChecker, transport bus.Transport, logger *zap.Logger) *risk.Orchestrator {
	return risk.New(wl, transport, newModel(cfg, logger),
		risk.WithExtractor(features.Extractor{}),
		risk.WithBusTimeout(cfg.Bus.Timeout),
		risk.WithASN(cfg.ASN.Enabled),
		risk.WithLogger(logger))
}

func (s *stack) Close() {
	s.stop()
	s.bus.Close()
	<-s.stopped
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.db.Close()
}

// remoteWhitelist answers whitelist checks from a remote server.
type remoteWhitelist struct {
	c *client.Client
}

func (r remoteWhitelist) Contains(ctx context.Context, rawURL string) (bool, error) {
	norm, err := whitelist.Normalize(rawURL)
	if err != nil {
		return false, nil
	}
	urls, err := r.c.Whitelist(ctx)
	if err != nil {
		return false, err
	}
	return slices.Contains(urls, norm), nil
}
