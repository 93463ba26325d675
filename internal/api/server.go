package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/segmerge/internal/config"
	"github.com/snarg/segmerge/internal/database"
	"github.com/snarg/segmerge/internal/merge"
	"github.com/snarg/segmerge/internal/metrics"
	"github.com/snarg/segmerge/internal/mqttclient"
)

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

// NewServer wires the HTTP API. db may be nil, in which case merges are
// served but not stored. mq is nil when MQTT ingest is off.
func NewServer(cfg *config.Config, svc *merge.Service, db *database.DB, mq *mqttclient.Client, version string, startTime time.Time, log zerolog.Logger) *Server {
	var (
		store  MergeStore
		pinger Pinger
		pool   *pgxpool.Pool
		broker ConnChecker
	)
	if db != nil {
		store, pinger, pool = db, db, db.Pool
	}
	if mq != nil {
		broker = mq
	}

	merges := NewMergeHandler(svc, store)
	health := NewHealthHandler(pinger, broker, svc.Options(), version, startTime)

	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer)
	r.Use(CORS)

	if cfg.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)

		// Live gauges are registered per server.
		reg := prometheus.NewRegistry()
		reg.MustRegister(metrics.NewCollector(pool, svc))
		r.Handle("/metrics", promhttp.HandlerFor(
			prometheus.Gatherers{prometheus.DefaultGatherer, reg},
			promhttp.HandlerOpts{},
		))
	}

	// Health endpoint, no auth
	r.Get("/api/v1/health", health.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(cfg.AuthToken))
		r.Use(MaxBytes(cfg.MaxRequestBytes))
		merges.Routes(r)
	})

	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler returns the root router.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
