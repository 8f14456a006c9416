package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shrey-shah842/phishguard/internal/client"
)

type clientConfig struct {
	apiKey string
	apiURL string
}

func addClientFlags(cmd *cobra.Command, cfg *clientConfig) {
	cmd.Flags().StringVar(&cfg.apiKey, "api-key", os.Getenv("PHISHGUARD_API_KEY"), "API key for a remote server")
	cmd.Flags().StringVar(&cfg.apiURL, "api-url", os.Getenv("PHISHGUARD_API_URL"), "remote server URL (default: run in-process)")
}

func (cfg *clientConfig) remote() bool {
	return cfg.apiURL != ""
}

func (cfg *clientConfig) newClient() (*client.Client, error) {
	if cfg.apiURL == "" {
		return nil, fmt.Errorf("API URL required (use --api-url flag or PHISHGUARD_API_URL env var)")
	}
	return client.NewClient(cfg.apiURL, cfg.apiKey), nil
}
