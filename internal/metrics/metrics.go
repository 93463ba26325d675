package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/snarg/segmerge/internal/align"
)

const namespace = "segmerge"

// HTTP metrics (counter/histogram — incremented by middleware).
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests processed.",
	}, []string{"method", "path_pattern", "status_code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path_pattern"})
)

// Merge metrics (incremented by ObserveMerge).
var (
	MergesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merges_total",
		Help:      "Total merges run, by strategy.",
	}, []string{"strategy"})

	MergeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "merge_duration_seconds",
		Help:      "Time spent inside the merge engine.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8), // 100µs → ~1.6s
	}, []string{"strategy"})

	MergedSegmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "merged_segments_total",
		Help:      "Total speaker-attributed segments produced.",
	})

	UnknownSegmentsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_segments_total",
		Help:      "Merged segments labelled UNK or UNK_<speaker>.",
	})

	SegmentConfidence = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "segment_confidence",
		Help:      "Speaker confidence of merged segments.",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	ValidationIssuesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "issues_total",
		Help:      "Input-quality issues found during merges, by kind.",
	}, []string{"kind"})

	OverlapRepairsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "overlap_repairs_total",
		Help:      "Overlap repairs between merged segments, by tier.",
	}, []string{"tier"})
)

// MQTT ingest metrics.
var IngestMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "ingest_messages_total",
	Help:      "MQTT messages handled, by outcome.",
}, []string{"outcome"})

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MergesTotal,
		MergeDuration,
		MergedSegmentsTotal,
		UnknownSegmentsTotal,
		SegmentConfidence,
		ValidationIssuesTotal,
		OverlapRepairsTotal,
		IngestMessagesTotal,
	)
}

// ObserveMerge records one finished merge.
func ObserveMerge(strategy align.Strategy, res *align.Result, elapsed time.Duration) {
	st := string(strategy)
	MergesTotal.WithLabelValues(st).Inc()
	MergeDuration.WithLabelValues(st).Observe(elapsed.Seconds())

	MergedSegmentsTotal.Add(float64(len(res.Segments)))
	UnknownSegmentsTotal.Add(float64(res.Metrics.UnknownSegments))
	for _, s := range res.Segments {
		SegmentConfidence.Observe(s.Confidence)
	}

	for kind, n := range res.Diagnostics.IssueCounts() {
		ValidationIssuesTotal.WithLabelValues(string(kind)).Add(float64(n))
	}
	d := res.Diagnostics
	for tier, n := range map[string]int{
		"snapped":  d.Snapped,
		"split":    d.Split,
		"replaced": d.Replaced,
		"dropped":  d.Dropped,
	} {
		if n > 0 {
			OverlapRepairsTotal.WithLabelValues(tier).Add(float64(n))
		}
	}
}

// InstrumentHandler returns middleware that records HTTP request metrics.
// It uses chi's route pattern as the path label to avoid cardinality explosion.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		pattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		method := r.Method

		HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(sw.status)).Inc()
		HTTPRequestDuration.WithLabelValues(method, pattern).Observe(time.Since(start).Seconds())
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap supports http.ResponseController and middleware that check for
// wrapped writers.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
