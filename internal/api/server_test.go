package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/config"
	"github.com/snarg/segmerge/internal/merge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		MergeStrategy:       "best_overlap",
		MinOverlapThreshold: 0.1,
		ConfidenceThreshold: 0.5,
		PauseGap:            0.8,
		HTTPAddr:            ":0",
		MaxRequestBytes:     1 << 20,
		MetricsEnabled:      true,
		AuthToken:           "secret",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	opts, err := cfg.MergeOptions()
	require.NoError(t, err)
	engine, err := align.NewEngine(opts, zerolog.Nop())
	require.NoError(t, err)
	svc := merge.NewService(engine, cfg.PauseGap, zerolog.Nop())
	return NewServer(cfg, svc, nil, nil, "test", time.Now(), zerolog.Nop()).Handler()
}

func TestServer_HealthWithoutDatabase(t *testing.T) {
	h := newTestServer(t, testConfig())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "not_configured", resp.Checks["database"])
	assert.Equal(t, "not_configured", resp.Checks["mqtt"])
	assert.Equal(t, align.BestOverlap, resp.Merge.Strategy)
}

func TestServer_MergeRequiresAuth(t *testing.T) {
	h := newTestServer(t, testConfig())
	body := `{"transcript": [{"start": 0, "end": 1, "text": "hi"}]}`

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/merge", strings.NewReader(body)))
	require.Equal(t, http.StatusUnauthorized, rec.Code, "without token")

	req := httptest.NewRequest("POST", "/api/v1/merge", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "with token: %s", rec.Body.String())
}

func TestServer_Metrics(t *testing.T) {
	cfg := testConfig()
	h := newTestServer(t, cfg)
	// A second server in the same process must not panic on registration.
	_ = newTestServer(t, cfg)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "segmerge_merges_in_flight")

	cfg.MetricsEnabled = false
	rec = httptest.NewRecorder()
	newTestServer(t, cfg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code, "metrics disabled")
}

type fakePinger struct{ err error }

func (p fakePinger) HealthCheck(context.Context) error { return p.err }

func TestHealthHandler_Database(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		check  string
	}{
		{"ok", nil, http.StatusOK, "ok"},
		{"down", errors.New("connection refused"), http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(fakePinger{err: tt.err}, nil, align.DefaultOptions(), "test", time.Now())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))
			assert.Equal(t, tt.status, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.check, resp.Checks["database"])
		})
	}
}

type fakeBroker bool

func (b fakeBroker) IsConnected() bool { return bool(b) }

func TestHealthHandler_MQTT(t *testing.T) {
	h := NewHealthHandler(nil, fakeBroker(false), align.DefaultOptions(), "test", time.Now())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/health", nil))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "disconnected", resp.Checks["mqtt"])
}
