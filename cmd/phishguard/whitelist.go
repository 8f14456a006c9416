package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shrey-shah842/phishguard/internal/bus"
	"github.com/shrey-shah842/phishguard/internal/whitelist"
)

var whitelistFlags struct {
	clientConfig
}

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Manage whitelisted URLs",
	Long: `Whitelisted URLs are evaluated as safe without any lookups. Changes go
through the service context, locally or on the server given by --api-url.`,
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <url>...",
	Short: "Add URLs to the whitelist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateWhitelist(cmd.Context(), args, (*bus.Client).AddToWhitelist)
	},
}

var whitelistRemoveCmd = &cobra.Command{
	Use:   "remove <url>...",
	Short: "Remove URLs from the whitelist",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return mutateWhitelist(cmd.Context(), args, (*bus.Client).RemoveFromWhitelist)
	},
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List whitelisted URLs",
	Args:  cobra.NoArgs,
	RunE:  runWhitelistList,
}

func init() {
	rootCmd.AddCommand(whitelistCmd)
	whitelistCmd.AddCommand(whitelistAddCmd, whitelistRemoveCmd, whitelistListCmd)
	whitelistCmd.PersistentFlags().StringVar(&whitelistFlags.apiKey, "api-key", os.Getenv("PHISHGUARD_API_KEY"), "API key for a remote server")
	whitelistCmd.PersistentFlags().StringVar(&whitelistFlags.apiURL, "api-url", os.Getenv("PHISHGUARD_API_URL"), "remote server URL (default: local database)")
}

// withTransport runs fn over the remote server or a local stack.
func withTransport(ctx context.Context, fn func(bus.Transport) error) error {
	if whitelistFlags.remote() {
		c, err := whitelistFlags.newClient()
		if err != nil {
			return err
		}
		return fn(c)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st.bus)
}

type mutation func(c *bus.Client, ctx context.Context, url string) whitelist.MutationResult

func mutateWhitelist(ctx context.Context, urls []string, op mutation) error {
	return withTransport(ctx, func(t bus.Transport) error {
		var failed int
		for _, u := range urls {
			// One client per call: the bus allows a single in-flight
			// request per action.
			res := op(bus.NewClient(t, 0, logger), ctx, u)
			switch {
			case res.Success:
				fmt.Printf("ok\t%s\n", u)
			case res.Reason != "":
				fmt.Printf("skipped\t%s\t%s\n", u, res.Reason)
			default:
				failed++
				fmt.Fprintf(os.Stderr, "error\t%s\t%s\n", u, res.Error)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d changes failed", failed, len(urls))
		}
		return nil
	})
}

func runWhitelistList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	var urls []string
	if whitelistFlags.remote() {
		c, err := whitelistFlags.newClient()
		if err != nil {
			return err
		}
		if urls, err = c.Whitelist(ctx); err != nil {
			return err
		}
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStack(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if urls, err = st.whitelist.List(ctx); err != nil {
			return err
		}
	}

	if len(urls) == 0 {
		fmt.Println("Whitelist is empty.")
		return nil
	}
	fmt.Printf("%-4s  %s\n", "#", "URL")
	for i, u := range urls {
		fmt.Printf("%-4d  %s\n", i+1, u)
	}
	return nil
}
