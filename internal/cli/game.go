package cli

import (
	"github.com/spf13/cobra"

	"market-resolver/internal/app"
)

var gameOpts app.GameOptions

var gameCmd = &cobra.Command{
	Use:     "game",
	Short:   "Resolve whether a team beat its opponent on a given date",
	Example: `  resolver game --sport nba --date 2025-01-02 --team NYK --opponent BOS`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Game(cmd.Context(), gameOpts)
	},
}

func init() {
	fs := gameCmd.Flags()
	fs.StringVar(&gameOpts.MarketID, "market", "", "Market id (0x condition id or slug) recorded with the result")
	fs.StringVar(&gameOpts.Sport, "sport", "", "League path segment, e.g. nba or mlb (defaults to games.sport)")
	fs.StringVar(&gameOpts.Date, "date", "", "Game date (YYYY-MM-DD)")
	fs.StringVar(&gameOpts.Team, "team", "", "Team the market asks about")
	fs.StringVar(&gameOpts.Opponent, "opponent", "", "Opposing team")
	fs.BoolVar(&gameOpts.UntilResolved, "until-resolved", false, "Keep re-resolving on the scheduler until the game is final")

	_ = gameCmd.MarkFlagRequired("date")
	_ = gameCmd.MarkFlagRequired("team")
	_ = gameCmd.MarkFlagRequired("opponent")
}
