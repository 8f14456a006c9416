package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/acme"
	"github.com/shrey-shah842/phishguard/internal/auth"
	"github.com/shrey-shah842/phishguard/internal/logging"
	"github.com/shrey-shah842/phishguard/internal/server"
	"github.com/shrey-shah842/phishguard/internal/verdict"
)

var serveFlags struct {
	listen        string
	tlsCert       string
	tlsKey        string
	acmeDomains   []string
	acmeEmail     string
	acmeStaging   bool
	acmeDNSListen string
	acmeDNSZones  []string
	acmeDNSNS     string
	noAuth        bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the service context and evaluator over HTTP",
	Long: `Start the phishguard API server.

Routes:
  POST /v1/messages   bus message {action, url} to the service context
  POST /v1/evaluate   full evaluation of {url}
  GET  /v1/whitelist  whitelisted URLs
  GET  /healthz       liveness and registered actions

TLS Modes:
  --tls-cert + --tls-key  → Manual TLS mode (use provided certificates)
  --acme-domain           → ACME mode (TLS-ALPN-01 and HTTP-01)
  --acme-dns-listen       → ACME via DNS-01, answered by a built-in responder
  (neither)               → plain HTTP

An API key is created on first start and printed once. Every /v1 route
requires it unless --no-auth is given.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", "", "listen address (default from config, 127.0.0.1:8081)")
	serveCmd.Flags().StringVar(&serveFlags.tlsCert, "tls-cert", "", "path to TLS certificate file (enables manual TLS mode)")
	serveCmd.Flags().StringVar(&serveFlags.tlsKey, "tls-key", "", "path to TLS key file (enables manual TLS mode)")
	serveCmd.Flags().StringSliceVar(&serveFlags.acmeDomains, "acme-domain", nil, "domain to obtain a certificate for (repeatable)")
	serveCmd.Flags().StringVar(&serveFlags.acmeEmail, "acme-email", getEnv("PHISHGUARD_ACME_EMAIL", ""), "email for Let's Encrypt notifications")
	serveCmd.Flags().BoolVar(&serveFlags.acmeStaging, "acme-staging", getEnvBool("PHISHGUARD_ACME_STAGING", false), "use Let's Encrypt staging CA")
	serveCmd.Flags().StringVar(&serveFlags.acmeDNSListen, "acme-dns-listen", "", "address for the DNS-01 challenge responder, e.g. :53")
	serveCmd.Flags().StringSliceVar(&serveFlags.acmeDNSZones, "acme-dns-zone", nil, "zone delegated to the challenge responder (default _acme-challenge.<domain>)")
	serveCmd.Flags().StringVar(&serveFlags.acmeDNSNS, "acme-dns-ns", "", "name server host name reported in SOA/NS answers")
	serveCmd.Flags().BoolVar(&serveFlags.noAuth, "no-auth", false, "serve /v1 routes without API keys")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveFlags.listen != "" {
		cfg.Listen = serveFlags.listen
	}

	manualTLS := serveFlags.tlsCert != "" && serveFlags.tlsKey != ""
	acmeMode := len(serveFlags.acmeDomains) > 0
	if manualTLS && acmeMode {
		return fmt.Errorf("--tls-cert/--tls-key and --acme-domain are mutually exclusive")
	}
	if serveFlags.acmeDNSListen != "" && !acmeMode {
		return fmt.Errorf("--acme-dns-listen requires --acme-domain")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	if !serveFlags.noAuth {
		if err := ensureAPIKey(st); err != nil {
			return err
		}
	}

	presenter := verdict.LogPresenter{Logger: logger.Named("verdict")}
	apiSrv := &server.APIServer{
		DB:          st.db,
		Bus:         st.service,
		Evaluator:   st.orchestrator(),
		Whitelist:   st.whitelist,
		Presenter:   presenter,
		RequireAuth: !serveFlags.noAuth,
		Logger:      logger.Named("api"),
	}

	var tlsConfig *tls.Config
	switch {
	case manualTLS:
		cert, err := tls.LoadX509KeyPair(serveFlags.tlsCert, serveFlags.tlsKey)
		if err != nil {
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}

	case acmeMode:
		var txtStore *acme.TXTStore
		if serveFlags.acmeDNSListen != "" {
			txtStore = acme.NewTXTStore()
			zones := serveFlags.acmeDNSZones
			if len(zones) == 0 {
				for _, d := range serveFlags.acmeDomains {
					zones = append(zones, "_acme-challenge."+d)
				}
			}
			challengeDNS := &server.ChallengeDNS{
				Zones:    zones,
				NSName:   serveFlags.acmeDNSNS,
				TXTStore: txtStore,
				Logger:   logger.Named("dns"),
			}
			if err := challengeDNS.Start(serveFlags.acmeDNSListen); err != nil {
				return fmt.Errorf("start challenge DNS: %w", err)
			}
			defer challengeDNS.Shutdown(context.Background())
		}

		manager, err := acme.NewManager(serveFlags.acmeDomains, serveFlags.acmeEmail, st.db, serveFlags.acmeStaging, txtStore, logger.Named("certmagic"))
		if err != nil {
			return err
		}
		if err := manager.Manage(ctx); err != nil {
			return fmt.Errorf("ACME certificate acquisition: %w", err)
		}
		logger.Info("acme certificates obtained", zap.Strings("domains", serveFlags.acmeDomains))
		tlsConfig = manager.TLSConfig()
	}

	srvCfg := server.DefaultServerConfig(cfg.Listen, apiSrv.Handler(), logger.Named("api"))
	srvCfg.TLSConfig = tlsConfig
	apiServer := server.NewManagedServer("api", srvCfg)
	if err := apiServer.Start(); err != nil {
		return err
	}
	if err := apiServer.WaitForStartup(100 * time.Millisecond); err != nil {
		return err
	}
	logger.Info("phishguard ready",
		logging.Addr(apiServer.Addr()),
		zap.Bool("tls", tlsConfig != nil),
		zap.Bool("auth", !serveFlags.noAuth),
		zap.Bool("asn", cfg.ASN.Enabled))

	select {
	case <-ctx.Done():
	case err := <-apiServer.Errors():
		if err != nil {
			logger.Error("api server error", zap.Error(err))
		}
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	apiServer.Shutdown(shutdownCtx)
	return nil
}

func ensureAPIKey(st *stack) error {
	count, err := auth.CountActiveKeys(st.db)
	if err != nil {
		return fmt.Errorf("count API keys: %w", err)
	}
	if count > 0 {
		return nil
	}
	displayKey, _, err := auth.CreateKey(st.db, "bootstrap")
	if err != nil {
		return fmt.Errorf("create API key: %w", err)
	}
	fmt.Fprintln(os.Stderr, "=============================================================")
	fmt.Fprintln(os.Stderr, "API KEY CREATED (save this, it will not be shown again):")
	fmt.Fprintln(os.Stderr, displayKey)
	fmt.Fprintln(os.Stderr, "=============================================================")
	return nil
}
