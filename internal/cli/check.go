package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pricepilot/internal/app"
)

var (
	checkShop   string
	checkNotify bool
)

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Fetch a single product URL and print the parsed offer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkShop == "" {
			return errors.New("--shop is required")
		}
		return getApp().Check(cmd.Context(), app.CheckOptions{
			Shop:   checkShop,
			URL:    args[0],
			Notify: checkNotify,
		})
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkShop, "shop", "", "Shop slug whose adapter parses the URL")
	checkCmd.Flags().BoolVar(&checkNotify, "notify", false, "Also push the offer through the alert channels")
}
