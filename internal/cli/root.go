// Package cli provides the admin command-line interface for Catosphere.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/catosphere/catosphere-go/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	serverURL string
	api       *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "catosphere",
	Short: "Admin CLI for the Catosphere backend",
	Long: `Catosphere is a backend that onboards e-commerce stores and runs
background jobs that reprocess product classification data.

This CLI talks to a running catosphere-server: inspect job status and logs,
stop a running job, trigger a category discovery run, or onboard a store.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		api = client.New(serverURL)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default CATOSPHERE_SERVER_URL or http://localhost:8686)")
}
