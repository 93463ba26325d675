package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/database"
	"github.com/snarg/segmerge/internal/merge"
)

// MergeStore persists finished merges. *database.DB implements it.
type MergeStore interface {
	InsertMergeRun(ctx context.Context, row *database.MergeRunRow) (time.Time, error)
	GetMergeRun(ctx context.Context, id string) (*database.MergeRunAPI, error)
	ListMergeRuns(ctx context.Context, filter database.MergeRunFilter) ([]database.MergeRunAPI, int, error)
}

// MergeHandler serves the merge endpoints.
type MergeHandler struct {
	svc   *merge.Service
	store MergeStore
}

// NewMergeHandler returns a handler merging through svc. store may be nil,
// in which case runs are not persisted and the run lookup endpoints answer
// 503.
func NewMergeHandler(svc *merge.Service, store MergeStore) *MergeHandler {
	return &MergeHandler{svc: svc, store: store}
}

// Routes mounts the merge endpoints on r.
func (h *MergeHandler) Routes(r chi.Router) {
	r.Post("/api/v1/merge", h.Merge)
	r.Get("/api/v1/merges", h.ListRuns)
	r.Get("/api/v1/merges/{id}", h.GetRun)
}

// Merge handles POST /api/v1/merge. The body is a merge.Request; the
// response is a merge.Response.
func (h *MergeHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req merge.Request
	if err := DecodeJSON(r, &req); err != nil {
		WriteErrorDetail(w, decodeStatus(err), "invalid request body", err.Error())
		return
	}

	resp, err := h.svc.Run(&req)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid merge request", err.Error())
		return
	}

	if h.store != nil {
		row, err := merge.Row(uuid.NewString(), resp)
		if err == nil {
			_, err = h.store.InsertMergeRun(r.Context(), row)
		}
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("failed to store merge run")
			WriteError(w, http.StatusInternalServerError, "failed to store merge run")
			return
		}
		resp.ID = row.ID
	}

	hlog.FromRequest(r).Debug().
		Str("id", resp.ID).
		Str("source_id", resp.SourceID).
		Int("segments", len(resp.Segments)).
		Int("issues", len(resp.Diagnostics.Issues)).
		Msg("merge served")
	WriteJSON(w, http.StatusOK, resp)
}

// GetRun handles GET /api/v1/merges/{id}.
func (h *MergeHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, "merge history not configured")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid merge id", err.Error())
		return
	}

	run, err := h.store.GetMergeRun(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "merge run not found")
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("id", id).Msg("failed to get merge run")
		WriteError(w, http.StatusInternalServerError, "failed to get merge run")
		return
	}
	WriteJSON(w, http.StatusOK, run)
}

// ListRuns handles GET /api/v1/merges.
func (h *MergeHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteError(w, http.StatusServiceUnavailable, "merge history not configured")
		return
	}
	p, err := ParsePagination(r)
	if err != nil {
		WriteErrorDetail(w, http.StatusBadRequest, "invalid pagination", err.Error())
		return
	}

	filter := database.MergeRunFilter{Limit: p.Limit, Offset: p.Offset}
	filter.SourceID, _ = QueryString(r, "source_id")
	if v, ok := QueryString(r, "strategy"); ok {
		st, err := align.ParseStrategy(v)
		if err != nil {
			WriteErrorDetail(w, http.StatusBadRequest, "invalid strategy", err.Error())
			return
		}
		filter.Strategy = string(st)
	}

	runs, total, err := h.store.ListMergeRuns(r.Context(), filter)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("failed to list merge runs")
		WriteError(w, http.StatusInternalServerError, "failed to list merge runs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"total":  total,
		"limit":  p.Limit,
		"offset": p.Offset,
	})
}
