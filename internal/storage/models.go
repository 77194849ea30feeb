package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResolutionRecord is one audited resolution run. Fetched candles are never stored.
type ResolutionRecord struct {
	ID          int64
	RunID       uuid.UUID
	MarketID    string
	Profile     string
	Subject     string
	WindowStart *time.Time
	WindowEnd   *time.Time
	Outcome     string
	Code        string
	FailureKind *string
	FailureMsg  *string
	RecordCount int
	Evidence    json.RawMessage
	CreatedAt   time.Time
}

// Failed reports whether the run ended on a fetch failure.
func (r ResolutionRecord) Failed() bool {
	return r.FailureKind != nil
}
