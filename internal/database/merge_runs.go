package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// MergeRunRow is the input for inserting a finished merge.
type MergeRunRow struct {
	ID                  string // uuid
	SourceID            string // caller's reference, e.g. a call or file id
	Strategy            string
	MinOverlapThreshold float64
	ConfidenceThreshold float64
	SegmentCount        int
	UnknownCount        int
	Segments            json.RawMessage
	Metrics             json.RawMessage
	Diagnostics         json.RawMessage
}

// MergeRunAPI is the merge run representation for API responses.
type MergeRunAPI struct {
	ID                  string          `json:"id"`
	SourceID            string          `json:"source_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	Strategy            string          `json:"strategy"`
	MinOverlapThreshold float64         `json:"min_overlap_threshold"`
	ConfidenceThreshold float64         `json:"confidence_threshold"`
	SegmentCount        int             `json:"segment_count"`
	UnknownCount        int             `json:"unknown_count"`
	Segments            json.RawMessage `json:"segments,omitempty"`
	Metrics             json.RawMessage `json:"metrics,omitempty"`
	Diagnostics         json.RawMessage `json:"diagnostics,omitempty"`
}

// MergeRunFilter specifies filters for listing merge runs.
type MergeRunFilter struct {
	SourceID string
	Strategy string
	Limit    int
	Offset   int
}

// InsertMergeRun stores a merge result and returns its creation time.
func (db *DB) InsertMergeRun(ctx context.Context, row *MergeRunRow) (time.Time, error) {
	var createdAt time.Time
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO merge_runs (
			id, source_id, strategy, min_overlap_threshold, confidence_threshold,
			segment_count, unknown_count, segments, metrics, diagnostics
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`,
		row.ID, pqString(row.SourceID), row.Strategy, row.MinOverlapThreshold, row.ConfidenceThreshold,
		row.SegmentCount, row.UnknownCount, row.Segments, row.Metrics, row.Diagnostics,
	).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("insert merge run: %w", err)
	}
	return createdAt, nil
}

// GetMergeRun returns a stored merge run with its full output.
func (db *DB) GetMergeRun(ctx context.Context, id string) (*MergeRunAPI, error) {
	var r MergeRunAPI
	var sourceID *string
	err := db.Pool.QueryRow(ctx, `
		SELECT id::text, source_id, created_at, strategy, min_overlap_threshold, confidence_threshold,
			segment_count, unknown_count, segments, metrics, diagnostics
		FROM merge_runs
		WHERE id = $1::uuid
	`, id).Scan(
		&r.ID, &sourceID, &r.CreatedAt, &r.Strategy, &r.MinOverlapThreshold, &r.ConfidenceThreshold,
		&r.SegmentCount, &r.UnknownCount, &r.Segments, &r.Metrics, &r.Diagnostics,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get merge run %s: %w", id, err)
	}
	if sourceID != nil {
		r.SourceID = *sourceID
	}
	return &r, nil
}

// ListMergeRuns returns run summaries (without segments) newest first,
// along with the total number of matching runs.
func (db *DB) ListMergeRuns(ctx context.Context, filter MergeRunFilter) ([]MergeRunAPI, int, error) {
	args := []any{pqString(filter.SourceID), pqString(filter.Strategy)}
	const where = `WHERE ($1::text IS NULL OR source_id = $1)
		AND ($2::text IS NULL OR strategy = $2)`

	var total int
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM merge_runs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count merge runs: %w", err)
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT id::text, COALESCE(source_id, ''), created_at, strategy, min_overlap_threshold,
			confidence_threshold, segment_count, unknown_count, metrics
		FROM merge_runs `+where+`
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list merge runs: %w", err)
	}
	defer rows.Close()

	runs := []MergeRunAPI{}
	for rows.Next() {
		var r MergeRunAPI
		if err := rows.Scan(
			&r.ID, &r.SourceID, &r.CreatedAt, &r.Strategy, &r.MinOverlapThreshold,
			&r.ConfidenceThreshold, &r.SegmentCount, &r.UnknownCount, &r.Metrics,
		); err != nil {
			return nil, 0, fmt.Errorf("scan merge run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, total, rows.Err()
}

// StrategyStats aggregates stored runs for one strategy.
type StrategyStats struct {
	Strategy     string
	Runs         int
	Segments     int64
	UnknownRatio float64 // unknown segments / segments across all runs
	LastRunAt    time.Time
}

// MergeRunStats summarizes stored runs per strategy, most used first.
func (db *DB) MergeRunStats(ctx context.Context) ([]StrategyStats, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT strategy, count(*), COALESCE(sum(segment_count), 0),
			COALESCE(sum(unknown_count)::float8 / NULLIF(sum(segment_count), 0), 0),
			max(created_at)
		FROM merge_runs
		GROUP BY strategy
		ORDER BY count(*) DESC, strategy
	`)
	if err != nil {
		return nil, fmt.Errorf("merge run stats: %w", err)
	}
	defer rows.Close()

	var stats []StrategyStats
	for rows.Next() {
		var s StrategyStats
		if err := rows.Scan(&s.Strategy, &s.Runs, &s.Segments, &s.UnknownRatio, &s.LastRunAt); err != nil {
			return nil, fmt.Errorf("scan merge run stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// CountMergeRunsBefore returns how many runs were created before cutoff.
func (db *DB) CountMergeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	if err := db.Pool.QueryRow(ctx, `SELECT count(*) FROM merge_runs WHERE created_at < $1`, cutoff).Scan(&n); err != nil {
		return 0, fmt.Errorf("count merge runs: %w", err)
	}
	return n, nil
}

// DeleteMergeRunsBefore removes runs created before cutoff.
func (db *DB) DeleteMergeRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM merge_runs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete merge runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
