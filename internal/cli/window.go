package cli

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"market-resolver/internal/app"
)

// windowFlags are the window-selection flags shared by threshold and export.
type windowFlags struct {
	date     string
	endDate  string
	clock    string
	timezone string
	width    time.Duration
	from     string
	to       string
}

func (w *windowFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&w.date, "date", "", "Local calendar date (YYYY-MM-DD)")
	fs.StringVar(&w.endDate, "end-date", "", "Last local date of a multi-day range (defaults to --date)")
	fs.StringVar(&w.clock, "time", "", "Local time of day (HH:MM); omit to cover whole days")
	fs.StringVar(&w.timezone, "tz", "", "IANA timezone (defaults to resolution.timezone)")
	fs.DurationVar(&w.width, "duration", 0, "Window width when --time is set (defaults to one interval)")
	fs.StringVar(&w.from, "from", "", "Explicit UTC start (RFC3339, inclusive)")
	fs.StringVar(&w.to, "to", "", "Explicit UTC end (RFC3339, exclusive)")
}

func (w *windowFlags) options() (app.WindowOptions, error) {
	opts := app.WindowOptions{
		Date:     w.date,
		EndDate:  w.endDate,
		Clock:    w.clock,
		Timezone: w.timezone,
		Width:    w.width,
	}
	if w.from != "" {
		from, err := time.Parse(time.RFC3339, w.from)
		if err != nil {
			return opts, fmt.Errorf("invalid --from value: %w", err)
		}
		opts.From = &from
	}
	if w.to != "" {
		to, err := time.Parse(time.RFC3339, w.to)
		if err != nil {
			return opts, fmt.Errorf("invalid --to value: %w", err)
		}
		opts.To = &to
	}
	return opts, nil
}
