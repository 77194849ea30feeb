package evaluator

import (
	"strings"

	"market-resolver/internal/fetcher"
)

var finalStatuses = map[string]bool{
	"FINAL":   true,
	"F/OT":    true,
	"F/SO":    true,
	"FORFEIT": true,
}

// Winner answers "did team beat opponent" from one date's listing.
// A missing game, a doubleheader or an unfinished game cannot be determined;
// a canceled game is a tie.
func Winner(games []fetcher.Game, team, opponent string) Outcome {
	var matched []fetcher.Game
	for _, g := range games {
		if g.Involves(team, opponent) {
			matched = append(matched, g)
		}
	}
	if len(matched) != 1 {
		return Unresolved
	}

	game := matched[0]
	status := strings.ToUpper(strings.TrimSpace(game.Status))
	switch {
	case status == "CANCELED" || status == "CANCELLED":
		return Tie
	case !finalStatuses[status]:
		return Unresolved
	}

	own, ok := game.ScoreOf(team)
	if !ok {
		return Unresolved
	}
	other, ok := game.ScoreOf(opponent)
	if !ok {
		return Unresolved
	}
	return Margin(own - other)
}
