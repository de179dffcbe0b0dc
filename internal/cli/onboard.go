package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	onboardStoreKey   string
	onboardPlatform   string
	onboardCreds      []string
	onboardCategories []string
	onboardTypes      []string
	onboardSyncMode   string
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Onboard or re-onboard a store",
	Long: `Submits an onboarding payload. For a first-time store all of
--store-key, --platform, --cred, --category and --type are required; for a
store that is already onboarded, only the provided flags override the stored
configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]any{}
		if onboardStoreKey != "" {
			payload["store_key"] = onboardStoreKey
		}
		if onboardPlatform != "" {
			payload["platform"] = onboardPlatform
		}
		if len(onboardCreds) > 0 {
			creds := map[string]string{}
			for _, kv := range onboardCreds {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid credential %q, expected key=value", kv)
				}
				creds[k] = v
			}
			payload["credentials"] = creds
		}
		if len(onboardCategories) > 0 {
			payload["categories"] = onboardCategories
		}
		if len(onboardTypes) > 0 {
			payload["types"] = onboardTypes
		}
		if onboardSyncMode != "" {
			payload["sync_mode"] = onboardSyncMode
		}

		cfg, err := api.Onboard(cmd.Context(), payload)
		if err != nil {
			return err
		}

		fmt.Printf("onboarded store %v (platform %v)\n", cfg["store_key"], cfg["platform"])
		return nil
	},
}

func init() {
	onboardCmd.Flags().StringVar(&onboardStoreKey, "store-key", "", "store key")
	onboardCmd.Flags().StringVar(&onboardPlatform, "platform", "", "e-commerce platform (shopify, woocommerce, ...)")
	onboardCmd.Flags().StringArrayVar(&onboardCreds, "cred", nil, "credential as key=value (repeatable)")
	onboardCmd.Flags().StringSliceVar(&onboardCategories, "category", nil, "category term (repeatable)")
	onboardCmd.Flags().StringSliceVar(&onboardTypes, "type", nil, "product type (repeatable)")
	onboardCmd.Flags().StringVar(&onboardSyncMode, "sync-mode", "", "sync mode override")

	rootCmd.AddCommand(onboardCmd)
}
