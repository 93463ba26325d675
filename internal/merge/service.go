// Package merge runs merge requests against an align.Engine on behalf of the
// HTTP API, the MQTT ingest and the CLI.
package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/segmerge/internal/align"
	"github.com/snarg/segmerge/internal/database"
	"github.com/snarg/segmerge/internal/metrics"
	"github.com/snarg/segmerge/internal/transcribe"
)

// ErrInvalidRequest wraps every error caused by the request itself.
var ErrInvalidRequest = errors.New("invalid merge request")

// Request is one merge job.
//
// Speaker turns come from Diarization, or from a trunk-recorder SrcList
// (with Duration closing the last transmission) when Diarization is absent.
// Text comes from Transcript, or from a raw STT response when Transcript is
// absent.
type Request struct {
	SourceID string `json:"source_id,omitempty"`

	Diarization []align.DiarizationSegment `json:"diarization"`
	SrcList     json.RawMessage            `json:"src_list,omitempty"`
	Duration    float64                    `json:"duration,omitempty"`

	Transcript []align.TranscriptSegment `json:"transcript"`
	STT        *transcribe.Response      `json:"stt,omitempty"`

	Strategy            string   `json:"strategy,omitempty"`
	MinOverlapThreshold *float64 `json:"min_overlap_threshold,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

// Options applies the request's overrides on top of base.
func (req *Request) Options(base align.Options) (align.Options, error) {
	opts := base
	if req.Strategy != "" {
		st, err := align.ParseStrategy(req.Strategy)
		if err != nil {
			return opts, err
		}
		opts.Strategy = st
	}
	if req.MinOverlapThreshold != nil {
		opts.MinOverlapThreshold = *req.MinOverlapThreshold
	}
	if req.ConfidenceThreshold != nil {
		opts.ConfidenceThreshold = *req.ConfidenceThreshold
	}
	return opts, opts.Validate()
}

// Inputs resolves the diarization and transcript lists the engine will see.
// pauseGap splits STT word timings into segments.
func (req *Request) Inputs(pauseGap float64) ([]align.DiarizationSegment, []align.TranscriptSegment, error) {
	diar := req.Diarization
	if diar == nil && len(req.SrcList) > 0 && string(req.SrcList) != "null" {
		txs := transcribe.ParseSrcList(req.SrcList, req.Duration)
		if txs == nil {
			return nil, nil, errors.New("src_list must be an array of {src, tag, pos}")
		}
		diar = transcribe.Diarization(txs)
	}

	transcript := req.Transcript
	if transcript == nil && req.STT != nil {
		transcript = req.STT.Segments(pauseGap)
	}
	return diar, transcript, nil
}

// Response is a finished merge. ID is set once the run has been assigned a
// storage identifier.
type Response struct {
	ID       string        `json:"id,omitempty"`
	SourceID string        `json:"source_id,omitempty"`
	Options  align.Options `json:"options"`
	*align.Result
}

// Service merges requests with a default engine, building a per-request
// engine when a request overrides the options.
type Service struct {
	engine   *align.Engine
	pauseGap float64
	log      zerolog.Logger

	inFlight atomic.Int64
}

func NewService(engine *align.Engine, pauseGap float64, log zerolog.Logger) *Service {
	return &Service{engine: engine, pauseGap: pauseGap, log: log}
}

// Options returns the default engine options.
func (s *Service) Options() align.Options { return s.engine.Options() }

// InFlightMerges reports merges currently inside the engine.
func (s *Service) InFlightMerges() int64 { return s.inFlight.Load() }

// Run validates req and merges it. Errors wrap ErrInvalidRequest.
func (s *Service) Run(req *Request) (*Response, error) {
	opts, err := req.Options(s.engine.Options())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	engine := s.engine
	if opts != s.engine.Options() {
		if engine, err = align.NewEngine(opts, s.log); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	diar, transcript, err := req.Inputs(s.pauseGap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	s.inFlight.Add(1)
	start := time.Now()
	res := engine.Merge(diar, transcript)
	elapsed := time.Since(start)
	s.inFlight.Add(-1)
	metrics.ObserveMerge(opts.Strategy, res, elapsed)

	return &Response{SourceID: req.SourceID, Options: opts, Result: res}, nil
}

// Row encodes resp for storage under id.
func Row(id string, resp *Response) (*database.MergeRunRow, error) {
	segments, err := json.Marshal(resp.Segments)
	if err != nil {
		return nil, fmt.Errorf("encode segments: %w", err)
	}
	m, err := json.Marshal(resp.Metrics)
	if err != nil {
		return nil, fmt.Errorf("encode metrics: %w", err)
	}
	diag, err := json.Marshal(resp.Diagnostics)
	if err != nil {
		return nil, fmt.Errorf("encode diagnostics: %w", err)
	}
	return &database.MergeRunRow{
		ID:                  id,
		SourceID:            resp.SourceID,
		Strategy:            string(resp.Options.Strategy),
		MinOverlapThreshold: resp.Options.MinOverlapThreshold,
		ConfidenceThreshold: resp.Options.ConfidenceThreshold,
		SegmentCount:        len(resp.Segments),
		UnknownCount:        resp.Metrics.UnknownSegments,
		Segments:            segments,
		Metrics:             m,
		Diagnostics:         diag,
	}, nil
}
