package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/snarg/segmerge/internal/config"
	"github.com/snarg/segmerge/internal/database"
)

func newRunsCommand(overrides *config.Overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and prune stored merge runs",
	}
	cmd.AddCommand(newRunsStatsCommand(overrides))
	cmd.AddCommand(newRunsPruneCommand(overrides))
	return cmd
}

func openStore(cmd *cobra.Command, overrides config.Overrides) (*database.DB, error) {
	cfg, err := config.Load(overrides)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	log := newLogger(cfg.LogLevel, cmd.ErrOrStderr()).With().Str("component", "database").Logger()
	return database.Connect(cmd.Context(), cfg.DatabasePool(), log)
}

func newRunsStatsCommand(overrides *config.Overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show stored runs per strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openStore(cmd, *overrides)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.MergeRunStats(cmd.Context())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No merge runs stored.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), statsTable(stats))
			return nil
		},
	}
}

func statsTable(stats []database.StrategyStats) string {
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			s.Strategy,
			strconv.Itoa(s.Runs),
			strconv.FormatInt(s.Segments, 10),
			strconv.FormatFloat(s.UnknownRatio*100, 'f', 1, 64) + "%",
			s.LastRunAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"Strategy", "Runs", "Segments", "Unknown", "Last run"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func newRunsPruneCommand(overrides *config.Overrides) *cobra.Command {
	var olderThan time.Duration
	var apply bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a retention window (dry run unless --apply)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive, got %s", olderThan)
			}
			db, err := openStore(cmd, *overrides)
			if err != nil {
				return err
			}
			defer db.Close()

			cutoff := time.Now().Add(-olderThan)
			out := cmd.OutOrStdout()
			if !apply {
				n, err := db.CountMergeRunsBefore(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Would delete %d runs created before %s (rerun with --apply)\n", n, cutoff.Format(time.RFC3339))
				return nil
			}

			n, err := db.DeleteMergeRunsBefore(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Deleted %d runs created before %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Retention window")
	cmd.Flags().BoolVar(&apply, "apply", false, "Delete instead of reporting")
	return cmd
}
