package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/api"
	"github.com/snarg/segmerge/internal/config"
	"github.com/snarg/segmerge/internal/database"
	"github.com/snarg/segmerge/internal/ingest"
	"github.com/snarg/segmerge/internal/merge"
	"github.com/snarg/segmerge/internal/mqttclient"
)

func newServeCommand(overrides *config.Overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the merge HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cmd, *overrides)
		},
	}
	cmd.Flags().StringVar(&overrides.HTTPAddr, "listen", "", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(ctx context.Context, cmd *cobra.Command, overrides config.Overrides) error {
	startTime := time.Now()

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := newLogger(cfg.LogLevel, cmd.OutOrStdout())
	log.Info().Str("version", version).Msg("segmerge starting")

	opts, err := cfg.MergeOptions()
	if err != nil {
		return err
	}
	engine, err := align.NewEngine(opts, log.With().Str("component", "align").Logger())
	if err != nil {
		return err
	}
	log.Info().
		Str("strategy", string(opts.Strategy)).
		Float64("min_overlap_threshold", opts.MinOverlapThreshold).
		Float64("confidence_threshold", opts.ConfidenceThreshold).
		Msg("merge engine ready")

	// Database is optional; without it merges are served but not stored.
	var db *database.DB
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabasePool(), dbLog)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("DATABASE_URL not set, merge history disabled")
	}

	svc := merge.NewService(engine, cfg.PauseGap, log.With().Str("component", "merge").Logger())

	// MQTT ingest
	var mq *mqttclient.Client
	if cfg.MQTTBrokerURL != "" {
		mq, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topics:    cfg.MQTTTopics,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return fmt.Errorf("connect to mqtt broker: %w", err)
		}
		defer mq.Close()

		var store ingest.Store
		if db != nil {
			store = db
		}
		handler := ingest.NewHandler(ingest.HandlerOptions{
			Service:     svc,
			Store:       store,
			Publisher:   mq,
			ResultTopic: cfg.MQTTResultTopic,
			Log:         log,
		})
		mq.SetMessageHandler(handler.HandleMessage)
		go handler.Run(ctx)
	}

	httpLog := log.With().Str("component", "http").Logger()
	srv := api.NewServer(cfg, svc, db, mq, version, startTime, httpLog)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Error().Err(serveErr).Msg("http server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}

	log.Info().Msg("segmerge stopped")
	return serveErr
}
