package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"market-resolver/internal/timewindow"
	"market-resolver/internal/upstream"
)

// Game carries the subset of a GamesByDate entry needed to pick a winner.
type Game struct {
	GameID    int64
	Status    string
	HomeTeam  string
	AwayTeam  string
	HomeScore *int64
	AwayScore *int64
	DateTime  string
}

// Involves reports whether the game is between a and b, in either order.
func (g Game) Involves(a, b string) bool {
	home, away := strings.ToUpper(g.HomeTeam), strings.ToUpper(g.AwayTeam)
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	return (home == a && away == b) || (home == b && away == a)
}

// ScoreOf returns the score of team, if the game reports one.
func (g Game) ScoreOf(team string) (int64, bool) {
	team = strings.ToUpper(strings.TrimSpace(team))
	var s *int64
	switch team {
	case strings.ToUpper(g.HomeTeam):
		s = g.HomeScore
	case strings.ToUpper(g.AwayTeam):
		s = g.AwayScore
	}
	if s == nil {
		return 0, false
	}
	return *s, true
}

// Games fetches the GamesByDate listing.
type Games struct {
	fallback *upstream.Fallback
	logger   zerolog.Logger
}

// NewGames constructs a games fetcher on top of a fallback client.
func NewGames(fallback *upstream.Fallback, logger zerolog.Logger) *Games {
	return &Games{fallback: fallback, logger: logger.With().Str("component", "game_fetcher").Logger()}
}

// FetchGames returns all games listed for date (YYYY-MM-DD). A 404 yields no games.
func (g *Games) FetchGames(ctx context.Context, date string, endpoints upstream.EndpointSet) ([]Game, error) {
	day, err := time.Parse(timewindow.DateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, upstream.DataErrorf("", "game date %q: %v", date, err)
	}

	resp, err := g.fallback.Get(ctx, endpoints, "GamesByDate/"+strings.ToUpper(day.Format("2006-Jan-02")), nil)
	if err != nil {
		return nil, err
	}
	if resp.Empty {
		g.logger.Debug().Str("date", date).Msg("no games listed")
		return nil, nil
	}
	games, err := parseGames(resp.Endpoint, resp.Body)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().Str("date", date).Int("games", len(games)).Msg("fetched games")
	return games, nil
}

func parseGames(endpoint string, body []byte) ([]Game, error) {
	if !gjson.ValidBytes(body) {
		return nil, upstream.DataErrorf(endpoint, "games payload is not valid json")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, upstream.DataErrorf(endpoint, "games payload is not an array")
	}

	items := root.Array()
	out := make([]Game, 0, len(items))
	for i, item := range items {
		if !item.IsObject() {
			return nil, upstream.DataErrorf(endpoint, "game %d is not an object", i)
		}
		home, away := item.Get("HomeTeam"), item.Get("AwayTeam")
		if home.Type != gjson.String || away.Type != gjson.String {
			return nil, upstream.DataErrorf(endpoint, "game %d is missing team names", i)
		}
		out = append(out, Game{
			GameID:    item.Get("GameID").Int(),
			Status:    item.Get("Status").String(),
			HomeTeam:  home.String(),
			AwayTeam:  away.String(),
			HomeScore: firstNumber(item, "HomeTeamScore", "HomeTeamRuns"),
			AwayScore: firstNumber(item, "AwayTeamScore", "AwayTeamRuns"),
			DateTime:  item.Get("DateTime").String(),
		})
	}
	return out, nil
}

// firstNumber returns the first numeric field among paths; null scores stay nil.
func firstNumber(item gjson.Result, paths ...string) *int64 {
	for _, p := range paths {
		if v := item.Get(p); v.Type == gjson.Number {
			n := v.Int()
			return &n
		}
	}
	return nil
}

var _ GameFetcher = (*Games)(nil)
