package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/snarg/segmerge/internal/config"
)

func newRootCommand() *cobra.Command {
	var overrides config.Overrides

	rootCmd := &cobra.Command{
		Use:           "segmerge",
		Short:         "Merge diarization and transcript segments into speaker-attributed text",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&overrides.EnvFile, "env-file", "", "Path to .env file (default .env)")
	pf.StringVar(&overrides.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&overrides.MergeStrategy, "strategy", "", "Merge strategy: best_overlap, weighted, majority_vote")
	pf.StringVar(&overrides.DatabaseURL, "database-url", "", "PostgreSQL URL for merge history")

	rootCmd.AddCommand(newServeCommand(&overrides))
	rootCmd.AddCommand(newMergeCommand(&overrides))
	rootCmd.AddCommand(newRunsCommand(&overrides))

	return rootCmd
}

// newLogger builds the process logger. Unknown levels fall back to info.
func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if w == nil {
		w = os.Stdout
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
