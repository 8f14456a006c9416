package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shrey-shah842/phishguard/internal/auth"
	"github.com/shrey-shah842/phishguard/internal/db"
)

var apikeyFlags struct {
	label string
}

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys for the server",
	Long:  `Create, list and revoke the API keys accepted by "phishguard serve". Operates on the local database.`,
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key and print it once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *sql.DB) error {
			displayKey, rec, err := auth.CreateKey(d, apikeyFlags.label)
			if err != nil {
				return err
			}
			fmt.Println(displayKey)
			logger.Info("api key created", zap.String("prefix", rec.Prefix))
			return nil
		})
	},
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *sql.DB) error {
			keys, err := auth.ListKeys(d)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No API keys found.")
				return nil
			}
			fmt.Printf("%-14s  %-12s  %-19s  %s\n", "PREFIX", "LABEL", "CREATED", "STATUS")
			for _, k := range keys {
				label := k.Label
				if label == "" {
					label = "-"
				}
				status := "active"
				if !k.Active() {
					status = "revoked " + formatUnix(*k.RevokedAt)
				}
				fmt.Printf("%-14s  %-12s  %-19s  %s\n", k.Prefix, label, formatUnix(k.CreatedAt), status)
			}
			return nil
		})
	},
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <prefix>",
	Short: "Revoke an API key by its prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *sql.DB) error {
			ok, err := auth.RevokeKey(d, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no active key with prefix %q", args[0])
			}
			fmt.Printf("Revoked %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd, apikeyListCmd, apikeyRevokeCmd)
	apikeyCreateCmd.Flags().StringVarP(&apikeyFlags.label, "label", "l", "", "label for the key")
}

func withDB(fn func(*sql.DB) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := db.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer d.Close()
	return fn(d)
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).Format("2006-01-02 15:04:05")
}
