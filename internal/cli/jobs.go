package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <store-key>",
	Short: "Show the current job status for a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := api.GetJobStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("store:    %s\n", status.StoreKey)
		fmt.Printf("state:    %s\n", status.State)
		fmt.Printf("progress: %d%% (%d/%d)\n", status.Progress, status.Done, status.Total)
		if status.StartedAt != nil {
			fmt.Printf("started:  %s\n", status.StartedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs <store-key>",
	Short: "Show the job logs for a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := api.GetJobLogs(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("state: %s (%d%%)\n", logs.State, logs.Progress)
		if len(logs.Logs) == 0 {
			fmt.Println("no log lines")
			return nil
		}
		for _, line := range logs.Logs {
			fmt.Println(line)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <store-key>",
	Short: "Request cancellation of a store's running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := api.StopJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(result.Detail)
		return nil
	},
}

var reprocessSoftOnly bool

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <store-key>",
	Short: "Start a reprocessing job for a store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := api.StartReprocess(cmd.Context(), args[0], reprocessSoftOnly); err != nil {
			return err
		}
		fmt.Println("reprocess started, poll with: catosphere status", args[0])
		return nil
	},
}

func init() {
	reprocessCmd.Flags().BoolVar(&reprocessSoftOnly, "soft-only", false, "run only the soft-category stage")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(reprocessCmd)
}
