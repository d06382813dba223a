package main

import (
	"fmt"
	"os"

	"github.com/aditya/haggle/internal/config"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "haggle",
	Short: "Offer negotiation engine for marketplace listings",
	Long: `haggle runs price negotiations between buyers and sellers.
A buyer offers below the listed price, the seller accepts, rejects or
counters once, and offers nobody answers expire on their own.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		config.SetupLogging(loaded)
		cfg = loaded
		return nil
	},
	// Bare invocation starts the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, sweepCmd, migrateCmd, offersCmd, listingsCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
