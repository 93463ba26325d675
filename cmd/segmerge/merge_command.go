package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/config"
	"github.com/snarg/segmerge/internal/merge"
)

func newMergeCommand(overrides *config.Overrides) *cobra.Command {
	var input string
	var format string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge one request file and print the result",
		Long: "Reads a merge request (the POST /api/v1/merge body) from a file or stdin,\n" +
			"runs the engine locally and prints the result. Nothing is stored.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "table" {
				return fmt.Errorf("unknown format %q (want json or table)", format)
			}

			cfg, err := config.Load(*overrides)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := newLogger(cfg.LogLevel, cmd.ErrOrStderr())

			req, err := readMergeRequest(input, cmd.InOrStdin())
			if err != nil {
				return err
			}

			opts, err := cfg.MergeOptions()
			if err != nil {
				return err
			}
			engine, err := align.NewEngine(opts, log)
			if err != nil {
				return err
			}
			resp, err := merge.NewService(engine, cfg.PauseGap, log).Run(req)
			if err != nil {
				return err
			}

			if format == "table" {
				fmt.Fprintln(cmd.OutOrStdout(), segmentsTable(resp.Segments))
				return nil
			}
			return writeJSON(cmd, resp)
		},
	}

	cmd.Flags().StringVarP(&input, "in", "i", "-", "Request JSON file, - for stdin")
	cmd.Flags().StringVar(&format, "format", "json", "Output format: json or table")
	return cmd
}

func readMergeRequest(path string, stdin io.Reader) (*merge.Request, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req merge.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("decode merge request: %w", err)
	}
	return &req, nil
}

func segmentsTable(segs []align.MergedSegment) string {
	rows := make([][]string, 0, len(segs))
	for _, s := range segs {
		rows = append(rows, []string{
			formatSeconds(s.Start),
			formatSeconds(s.End),
			s.Speaker,
			strconv.FormatFloat(s.Confidence, 'f', 2, 64),
			s.Text,
		})
	}
	return renderTable(
		[]string{"Start", "End", "Speaker", "Conf", "Text"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft},
	)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
