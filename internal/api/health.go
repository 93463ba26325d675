package api

import (
	"context"
	"net/http"
	"time"

	"github.com/snarg/segmerge/internal/align"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// ConnChecker reports whether a broker connection is up.
type ConnChecker interface {
	IsConnected() bool
}

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Merge         align.Options     `json:"merge"`
}

type HealthHandler struct {
	db        Pinger
	mqtt      ConnChecker
	opts      align.Options
	version   string
	startTime time.Time
}

// NewHealthHandler returns a health handler. db and mqtt may be nil when not
// configured.
func NewHealthHandler(db Pinger, mqtt ConnChecker, opts align.Options, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		db:        db,
		mqtt:      mqtt,
		opts:      opts,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	if h.db == nil {
		checks["database"] = "not_configured"
	} else if err := h.db.HealthCheck(r.Context()); err != nil {
		checks["database"] = "error"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.mqtt == nil:
		checks["mqtt"] = "not_configured"
	case h.mqtt.IsConnected():
		checks["mqtt"] = "ok"
	default:
		checks["mqtt"] = "disconnected"
		if status == "healthy" {
			status = "degraded"
		}
	}

	WriteJSON(w, httpStatus, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
		Merge:         h.opts,
	})
}
