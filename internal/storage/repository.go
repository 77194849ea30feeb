package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createResolutionsSQL = `CREATE TABLE IF NOT EXISTS resolutions (
        id            BIGSERIAL PRIMARY KEY,
        run_id        UUID        NOT NULL UNIQUE,
        market_id     TEXT        NOT NULL DEFAULT '',
        profile       TEXT        NOT NULL,
        subject       TEXT        NOT NULL,
        window_start  TIMESTAMPTZ,
        window_end    TIMESTAMPTZ,
        outcome       TEXT        NOT NULL,
        code          TEXT        NOT NULL,
        failure_kind  TEXT,
        failure_msg   TEXT,
        record_count  INTEGER     NOT NULL DEFAULT 0,
        evidence      JSONB,
        created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS resolutions_market_idx ON resolutions (market_id, created_at DESC);`

	insertResolutionSQL = `INSERT INTO resolutions (
        run_id,
        market_id,
        profile,
        subject,
        window_start,
        window_end,
        outcome,
        code,
        failure_kind,
        failure_msg,
        record_count,
        evidence
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    RETURNING id, created_at;`

	selectResolutionColumns = `SELECT
        id,
        run_id,
        market_id,
        profile,
        subject,
        window_start,
        window_end,
        outcome,
        code,
        failure_kind,
        failure_msg,
        record_count,
        evidence,
        created_at
    FROM resolutions`

	listRecentResolutionsSQL = selectResolutionColumns + `
    ORDER BY created_at DESC
    LIMIT $1;`

	latestForMarketSQL = selectResolutionColumns + `
    WHERE market_id = $1
    ORDER BY created_at DESC
    LIMIT 1;`
)

// ResolutionStore defines the audit trail operations.
type ResolutionStore interface {
	InsertResolution(ctx context.Context, rec ResolutionRecord) (ResolutionRecord, error)
	ListRecentResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error)
	LatestForMarket(ctx context.Context, marketID string) (ResolutionRecord, error)
}

// Store persists resolution outcomes in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the resolutions table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, createResolutionsSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertResolution appends one run to the audit trail.
func (s *Store) InsertResolution(ctx context.Context, rec ResolutionRecord) (ResolutionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ResolutionRecord{}, err
	}

	var evidence interface{}
	if len(rec.Evidence) > 0 {
		evidence = []byte(rec.Evidence)
	}

	row := pool.QueryRow(ctx, insertResolutionSQL,
		rec.RunID,
		strings.ToLower(rec.MarketID),
		rec.Profile,
		rec.Subject,
		rec.WindowStart,
		rec.WindowEnd,
		rec.Outcome,
		rec.Code,
		rec.FailureKind,
		rec.FailureMsg,
		rec.RecordCount,
		evidence,
	)
	if scanErr := row.Scan(&rec.ID, &rec.CreatedAt); scanErr != nil {
		return ResolutionRecord{}, fmt.Errorf("insert resolution: %w", scanErr)
	}
	return rec, nil
}

// ListRecentResolutions lists the most recent runs, newest first.
func (s *Store) ListRecentResolutions(ctx context.Context, limit int) ([]ResolutionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentResolutionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent resolutions: %w", queryErr)
	}
	defer rows.Close()

	out := make([]ResolutionRecord, 0, limit)
	for rows.Next() {
		rec, scanErr := scanResolution(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// LatestForMarket returns the newest run for a market, or pgx.ErrNoRows.
func (s *Store) LatestForMarket(ctx context.Context, marketID string) (ResolutionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ResolutionRecord{}, err
	}
	rows, queryErr := pool.Query(ctx, latestForMarketSQL, strings.ToLower(marketID))
	if queryErr != nil {
		return ResolutionRecord{}, fmt.Errorf("latest resolution: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return ResolutionRecord{}, rows.Err()
		}
		return ResolutionRecord{}, pgx.ErrNoRows
	}
	return scanResolution(rows)
}

func scanResolution(rows pgx.Rows) (ResolutionRecord, error) {
	var (
		rec      ResolutionRecord
		evidence []byte
	)
	if err := rows.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.MarketID,
		&rec.Profile,
		&rec.Subject,
		&rec.WindowStart,
		&rec.WindowEnd,
		&rec.Outcome,
		&rec.Code,
		&rec.FailureKind,
		&rec.FailureMsg,
		&rec.RecordCount,
		&evidence,
		&rec.CreatedAt,
	); err != nil {
		return ResolutionRecord{}, fmt.Errorf("scan resolution: %w", err)
	}
	if len(evidence) > 0 {
		rec.Evidence = evidence
	}
	return rec, nil
}

var _ ResolutionStore = (*Store)(nil)
