package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"market-resolver/internal/app"
)

var (
	showLimit  int
	showMarket string
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recently stored resolutions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:    showLimit,
			MarketID: showMarket,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of resolutions to display")
	showCmd.Flags().StringVar(&showMarket, "market", "", "Only show the latest resolution for this market")
}
