package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Trigger a category discovery run",
	Long: `Fires the category discovery engine out-of-band. The run completes
asynchronously on the server; this command only acknowledges the trigger.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.TriggerDiscovery(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("discovery run triggered")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
