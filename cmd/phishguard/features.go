package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/asn"
	"github.com/shrey-shah842/phishguard/internal/features"
	"github.com/shrey-shah842/phishguard/internal/ratelimit"
	"github.com/shrey-shah842/phishguard/internal/whois"
)

var featuresFlags struct {
	lookup  bool
	asn     bool
	names   bool
	feature string
}

var featuresCmd = &cobra.Command{
	Use:   "features <url>",
	Short: "Print the feature vector the model would receive for a URL",
	Long: `Compute the URL feature vector. Without --lookup the registration features
are computed as if the lookup failed (activation 0, expiration -1).`,
	Args: func(cmd *cobra.Command, args []string) error {
		if featuresFlags.names {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.ExactArgs(1)(cmd, args)
	},
	RunE: runFeatures,
}

func init() {
	rootCmd.AddCommand(featuresCmd)
	featuresCmd.Flags().BoolVar(&featuresFlags.lookup, "lookup", false, "query the registration service for the domain")
	featuresCmd.Flags().BoolVar(&featuresFlags.asn, "asn", false, "resolve the origin ASN of the host")
	featuresCmd.Flags().BoolVar(&featuresFlags.names, "names", false, "list feature names in model order and exit")
	featuresCmd.Flags().StringVar(&featuresFlags.feature, "feature", "", "print only the named feature, e.g. length_url")
}

func runFeatures(cmd *cobra.Command, args []string) error {
	if featuresFlags.names {
		fmt.Println(strings.Join(features.Names(), "\n"))
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	href := args[0]

	loc, err := features.ParseLocation(href)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	host := strings.Trim(loc.Hostname, "[]")
	limiter := ratelimit.New(append(cfg.LimiterOptions(), ratelimit.WithLogger(logger))...)

	var details whois.Details
	if featuresFlags.lookup {
		res := whois.New(whois.Config{
			Endpoint: cfg.Whois.Endpoint,
			APIKey:   cfg.Whois.APIKey,
			Timeout:  cfg.Whois.Timeout,
		}, limiter, nil, logger).Lookup(ctx, host)
		if res.Err != nil {
			logger.Warn("domain lookup failed", zap.Error(res.Err))
		}
		details = res.Details
	}

	origin := asn.Unknown
	if featuresFlags.asn {
		res := asn.New(asn.Config{Server: cfg.ASN.Server, Zone: cfg.ASN.Zone, Timeout: cfg.ASN.Timeout}, limiter, logger).Lookup(ctx, host)
		if res.Err != nil {
			logger.Warn("asn lookup failed", zap.Error(res.Err))
		}
		origin = res.ASN
	}

	vec, err := features.Extractor{}.Extract(href, details, origin)
	if err != nil {
		return err
	}
	if featuresFlags.feature != "" {
		n, err := vec.Get(featuresFlags.feature)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(vec)
}
