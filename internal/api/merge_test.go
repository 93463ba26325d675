package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/database"
	"github.com/snarg/segmerge/internal/merge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory MergeStore.
type memStore struct {
	mu         sync.Mutex
	runs       map[string]database.MergeRunAPI
	insertErr  error
	lastFilter database.MergeRunFilter
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[string]database.MergeRunAPI)}
}

func (s *memStore) InsertMergeRun(_ context.Context, row *database.MergeRunRow) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return time.Time{}, s.insertErr
	}
	now := time.Now()
	s.runs[row.ID] = database.MergeRunAPI{
		ID:                  row.ID,
		SourceID:            row.SourceID,
		CreatedAt:           now,
		Strategy:            row.Strategy,
		MinOverlapThreshold: row.MinOverlapThreshold,
		ConfidenceThreshold: row.ConfidenceThreshold,
		SegmentCount:        row.SegmentCount,
		UnknownCount:        row.UnknownCount,
		Segments:            row.Segments,
		Metrics:             row.Metrics,
		Diagnostics:         row.Diagnostics,
	}
	return now, nil
}

func (s *memStore) GetMergeRun(_ context.Context, id string) (*database.MergeRunAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &r, nil
}

func (s *memStore) ListMergeRuns(_ context.Context, f database.MergeRunFilter) ([]database.MergeRunAPI, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = f
	runs := []database.MergeRunAPI{}
	for _, r := range s.runs {
		if f.SourceID != "" && r.SourceID != f.SourceID {
			continue
		}
		if f.Strategy != "" && r.Strategy != f.Strategy {
			continue
		}
		runs = append(runs, r)
	}
	return runs, len(runs), nil
}

func newTestRouter(t *testing.T, store MergeStore) http.Handler {
	t.Helper()
	engine, err := align.NewEngine(align.DefaultOptions(), zerolog.Nop())
	require.NoError(t, err)
	h := NewMergeHandler(merge.NewService(engine, 0.8, zerolog.Nop()), store)
	r := chi.NewRouter()
	r.Use(MaxBytes(4096))
	h.Routes(r)
	return r
}

func postMerge(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/merge", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeMerge(t *testing.T, rec *httptest.ResponseRecorder) merge.Response {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, "body = %s", rec.Body.String())
	var resp merge.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Result, "response has no result")
	return resp
}

func TestMerge_TwoSpeakers(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := postMerge(t, router, `{
		"diarization": [
			{"start": 0, "end": 2, "speaker": "A"},
			{"start": 2, "end": 4, "speaker": "B"}
		],
		"transcript": [
			{"start": 0.5, "end": 1.5, "text": "hello"},
			{"start": 2.5, "end": 3.5, "text": "world"}
		]
	}`)

	resp := decodeMerge(t, rec)
	assert.Empty(t, resp.ID, "no id without a store")
	assert.Equal(t, align.BestOverlap, resp.Options.Strategy)
	require.Len(t, resp.Segments, 2)
	assert.Equal(t, "A", resp.Segments[0].Speaker)
	assert.Equal(t, "hello", resp.Segments[0].Text)
	assert.Equal(t, "B", resp.Segments[1].Speaker)
	assert.Equal(t, "world", resp.Segments[1].Text)
	assert.Equal(t, 2, resp.Metrics.MergedSegments)
}

func TestMerge_SrcListAndSTT(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := postMerge(t, router, `{
		"src_list": [{"src": 101, "tag": "Engine 1", "pos": 0}, {"src": 202, "pos": 2}],
		"duration": 4,
		"stt": {
			"text": "Hello, world. Bye.",
			"language": "en",
			"words": [
				{"word": "hello", "start": 0, "end": 0.4},
				{"word": "world", "start": 0.5, "end": 0.9},
				{"word": "bye", "start": 3.0, "end": 3.4}
			]
		}
	}`)

	resp := decodeMerge(t, rec)
	require.Len(t, resp.Segments, 2)
	first, second := resp.Segments[0], resp.Segments[1]
	assert.Equal(t, "Engine 1", first.Speaker)
	assert.Equal(t, "Hello, world.", first.Text)
	assert.Equal(t, "en", first.Language)
	assert.Len(t, first.Words, 2)
	assert.Equal(t, "202", second.Speaker)
	assert.Equal(t, "Bye.", second.Text)
	assert.Equal(t, 2, resp.Metrics.DiarizationSegments)
}

func TestMerge_Overrides(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := postMerge(t, router, `{
		"strategy": "weighted",
		"confidence_threshold": 0.9,
		"diarization": [
			{"start": 0, "end": 1, "speaker": "A"},
			{"start": 1, "end": 2, "speaker": "B"}
		],
		"transcript": [{"start": 0, "end": 2, "text": "split evenly"}]
	}`)

	resp := decodeMerge(t, rec)
	assert.Equal(t, align.Weighted, resp.Options.Strategy)
	assert.Equal(t, 0.9, resp.Options.ConfidenceThreshold)
	require.Len(t, resp.Segments, 1)
	// A and B tie at 0.5; A is seen first and then gated below 0.9.
	assert.Equal(t, "UNK_A", resp.Segments[0].Speaker)
}

func TestMerge_BadRequests(t *testing.T) {
	router := newTestRouter(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"diarization": [`, http.StatusBadRequest},
		{"wrong_container", `{"diarization": {"start": 0}}`, http.StatusBadRequest},
		{"unknown_strategy", `{"strategy": "loudest"}`, http.StatusBadRequest},
		{"threshold_out_of_range", `{"min_overlap_threshold": 2}`, http.StatusBadRequest},
		{"bad_src_list", `{"src_list": {"src": 1}}`, http.StatusBadRequest},
		{"too_large", `{"source_id": "` + strings.Repeat("x", 5000) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postMerge(t, router, tt.body)
			require.Equal(t, tt.status, rec.Code, "body = %s", rec.Body.String())
			var er ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&er))
			assert.NotEmpty(t, er.Error)
		})
	}
}

func TestMerge_MalformedSegmentsAreDiagnosed(t *testing.T) {
	router := newTestRouter(t, nil)
	rec := postMerge(t, router, `{
		"diarization": [
			{"start": 0, "end": 2, "speaker": "A"},
			{"start": 3, "end": 1, "speaker": "B"}
		],
		"transcript": [
			{"start": 0, "end": 1, "text": "ok"},
			{"start": -1, "end": 1, "text": "bad"}
		]
	}`)

	resp := decodeMerge(t, rec)
	assert.Len(t, resp.Segments, 1)
	assert.Equal(t, 1, resp.Diagnostics.SkippedDiarization)
	assert.Equal(t, 1, resp.Diagnostics.SkippedTranscript)
}

func TestMerge_StoresRun(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	rec := postMerge(t, router, `{
		"source_id": "call-42",
		"diarization": [{"start": 0, "end": 2, "speaker": "A"}],
		"transcript": [{"start": 0, "end": 1, "text": "hi"}, {"start": 5, "end": 6, "text": "later"}]
	}`)
	resp := decodeMerge(t, rec)
	require.NotEmpty(t, resp.ID, "expected run id")

	get := httptest.NewRecorder()
	router.ServeHTTP(get, httptest.NewRequest(http.MethodGet, "/api/v1/merges/"+resp.ID, nil))
	require.Equal(t, http.StatusOK, get.Code, "body = %s", get.Body.String())

	var run database.MergeRunAPI
	require.NoError(t, json.NewDecoder(get.Body).Decode(&run))
	assert.Equal(t, "call-42", run.SourceID)
	assert.Equal(t, "best_overlap", run.Strategy)
	assert.Equal(t, 2, run.SegmentCount)
	assert.Equal(t, 1, run.UnknownCount)

	var segs []align.MergedSegment
	require.NoError(t, json.Unmarshal(run.Segments, &segs))
	require.Len(t, segs, 2)
	assert.Equal(t, "hi", segs[0].Text)
}

func TestMerge_StoreFailure(t *testing.T) {
	store := newMemStore()
	store.insertErr = errors.New("disk full")
	router := newTestRouter(t, store)

	rec := postMerge(t, router, `{"transcript": [{"start": 0, "end": 1, "text": "hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRun(t *testing.T) {
	router := newTestRouter(t, newMemStore())

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/merges/not-a-uuid", http.StatusBadRequest},
		{"/api/v1/merges/1b4e28ba-2fa1-11d2-883f-0016d3cca427", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.status, rec.Code, "GET %s", tt.path)
	}
}

func TestRunsWithoutStore(t *testing.T) {
	router := newTestRouter(t, nil)
	for _, path := range []string{"/api/v1/merges", "/api/v1/merges/1b4e28ba-2fa1-11d2-883f-0016d3cca427"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "GET %s", path)
	}
}

func TestListRuns(t *testing.T) {
	store := newMemStore()
	router := newTestRouter(t, store)

	for _, src := range []string{"a", "b", "a"} {
		rec := postMerge(t, router, `{"source_id": "`+src+`", "transcript": [{"start": 0, "end": 1, "text": "hi"}]}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/merges?source_id=a&strategy=BEST_OVERLAP&limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code, "body = %s", rec.Body.String())

	var body struct {
		Runs  []database.MergeRunAPI `json:"runs"`
		Total int                    `json:"total"`
		Limit int                    `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.Total)
	assert.Len(t, body.Runs, 2)
	assert.Equal(t, 10, body.Limit)
	assert.Equal(t, "best_overlap", store.lastFilter.Strategy, "strategy filter is normalized")

	for _, q := range []string{"?limit=0", "?offset=-1", "?strategy=nope"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/merges"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "GET %s", q)
	}
}
