package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5"

	"market-resolver/internal/storage"
)

// Show prints recently stored resolutions, or the latest one for a market.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show resolutions")
	}
	defer closeStore()

	var records []storage.ResolutionRecord
	if opts.MarketID != "" {
		rec, err := store.LatestForMarket(ctx, opts.MarketID)
		if errors.Is(err, pgx.ErrNoRows) {
			fmt.Fprintf(a.Out, "no resolutions found for %s\n", opts.MarketID)
			return nil
		}
		if err != nil {
			return err
		}
		records = append(records, rec)
	} else {
		records, err = store.ListRecentResolutions(ctx, opts.Limit)
		if err != nil {
			return err
		}
	}

	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no resolutions found")
		return nil
	}
	return a.renderResolutions(records)
}

func (a *App) renderResolutions(records []storage.ResolutionRecord) error {
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tMarket\tProfile\tSubject\tOutcome\tCode\tRecords\tFailure")

	for _, rec := range records {
		failure := ""
		if rec.Failed() {
			failure = *rec.FailureKind
			if rec.FailureMsg != nil {
				failure += ": " + sanitizeInline(*rec.FailureMsg)
			}
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			orDash(rec.MarketID),
			rec.Profile,
			sanitizeInline(rec.Subject),
			rec.Outcome,
			rec.Code,
			rec.RecordCount,
			failure,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
