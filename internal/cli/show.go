package cli

import (
	"time"

	"github.com/spf13/cobra"

	"pricepilot/internal/app"
)

var (
	showShop    string
	showProduct string
	showLimit   int
	showWindow  time.Duration
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent alerts, or one product's price history",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Show(cmd.Context(), app.ShowOptions{
			Shop:    showShop,
			Product: showProduct,
			Limit:   showLimit,
			Window:  showWindow,
		})
	},
}

func init() {
	showCmd.Flags().StringVar(&showShop, "shop", "", "Shop slug (with --product, shows price samples)")
	showCmd.Flags().StringVar(&showProduct, "product", "", "Product ID (canonical URL)")
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Maximum rows to display")
	showCmd.Flags().DurationVar(&showWindow, "window", 0, "Sample lookback window (default 720h)")
}
