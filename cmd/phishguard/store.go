package main

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shrey-shah842/phishguard/internal/db"
)

var storeFlags struct {
	values bool
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect the local key/value store",
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *sql.DB) error {
			entries, err := db.ListEntries(d)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Store is empty.")
				return nil
			}
			fmt.Printf("%-20s  %-19s  %s\n", "KEY", "UPDATED", "BYTES")
			for _, e := range entries {
				fmt.Printf("%-20s  %-19s  %d\n", e.Key, formatUnix(e.UpdatedAt), len(e.Value))
				if storeFlags.values {
					fmt.Printf("  %s\n", e.Value)
				}
			}
			return nil
		})
	},
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a stored key, e.g. whitelist to clear it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(func(d *sql.DB) error {
			if err := db.DeleteValue(d, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deleted %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeListCmd, storeDeleteCmd)
	storeListCmd.Flags().BoolVar(&storeFlags.values, "values", false, "print stored JSON values")
}
