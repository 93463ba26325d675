package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
var migrations = []migration{
	{
		name: "create merge_runs",
		sql: `CREATE TABLE IF NOT EXISTS merge_runs (
			id                    uuid PRIMARY KEY,
			created_at            timestamptz NOT NULL DEFAULT now(),
			strategy              text NOT NULL,
			min_overlap_threshold double precision NOT NULL,
			confidence_threshold  double precision NOT NULL,
			segment_count         int NOT NULL,
			unknown_count         int NOT NULL,
			segments              jsonb NOT NULL,
			metrics               jsonb NOT NULL,
			diagnostics           jsonb NOT NULL
		)`,
		check: `SELECT EXISTS (SELECT FROM pg_tables WHERE schemaname = 'public' AND tablename = 'merge_runs')`,
	},
	{
		name:  "add merge_runs created_at index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_merge_runs_created_at ON merge_runs (created_at DESC)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_merge_runs_created_at')`,
	},
	{
		name:  "add merge_runs.source_id",
		sql:   `ALTER TABLE merge_runs ADD COLUMN IF NOT EXISTS source_id text`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'merge_runs' AND column_name = 'source_id')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails (e.g. insufficient
// privileges), the error is returned; the caller should treat this as fatal
// since the store's queries depend on these tables existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		db.log.Debug().Msg("schema up to date")
		return nil
	}

	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart segmerge.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}
