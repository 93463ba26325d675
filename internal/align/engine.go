// Package align fuses speaker-diarization segments and speech-to-text
// segments into one sequence of speaker-attributed text spans.
//
// An Engine holds only immutable options, so one instance may serve
// concurrent merges for different files.
package align

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for Options.
const (
	DefaultMinOverlapThreshold = 0.1
	DefaultConfidenceThreshold = 0.5
)

var ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

// Options configures an Engine.
type Options struct {
	Strategy            Strategy `json:"strategy"`
	MinOverlapThreshold float64  `json:"min_overlap_threshold"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
}

// DefaultOptions returns best_overlap with the default thresholds.
func DefaultOptions() Options {
	return Options{
		Strategy:            BestOverlap,
		MinOverlapThreshold: DefaultMinOverlapThreshold,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Validate checks the strategy tag and both thresholds.
func (o Options) Validate() error {
	if _, err := ParseStrategy(string(o.Strategy)); err != nil {
		return err
	}
	if !inUnit(o.MinOverlapThreshold) {
		return fmt.Errorf("min_overlap_threshold %v: %w", o.MinOverlapThreshold, ErrInvalidThreshold)
	}
	if !inUnit(o.ConfidenceThreshold) {
		return fmt.Errorf("confidence_threshold %v: %w", o.ConfidenceThreshold, ErrInvalidThreshold)
	}
	return nil
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Result is the outcome of one Merge call. Segments is sorted by start and
// free of temporal overlaps.
type Result struct {
	Segments    []MergedSegment `json:"segments"`
	Metrics     Metrics         `json:"metrics"`
	Diagnostics Diagnostics     `json:"diagnostics"`
}

// Engine merges diarization and transcript segments.
type Engine struct {
	opts Options
	log  zerolog.Logger
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options, log zerolog.Logger) (*Engine, error) {
	st, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	opts.Strategy = st
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Engine{opts: opts, log: log}, nil
}

// Options returns the engine configuration.
func (e *Engine) Options() Options { return e.opts }

// Merge runs the full pipeline: validate, assign speakers, repair overlaps,
// coalesce, and report.
func (e *Engine) Merge(diar []DiarizationSegment, transcript []TranscriptSegment) *Result {
	start := time.Now()

	merged, diag := e.assign(diar, transcript)
	merged = resolveOverlaps(merged, &diag)
	merged = coalesce(merged, &diag)

	res := &Result{
		Segments:    merged,
		Metrics:     Report(diar, transcript, merged),
		Diagnostics: diag,
	}

	e.log.Debug().
		Str("strategy", string(e.opts.Strategy)).
		Int("diarization", len(diar)).
		Int("transcript", len(transcript)).
		Int("merged", len(merged)).
		Int("unknown", res.Metrics.UnknownSegments).
		Int("issues", len(diag.Issues)).
		Dur("elapsed", time.Since(start)).
		Msg("merge complete")

	return res
}

// Assign maps every valid transcript segment to a speaker. The result has
// exactly one entry per valid transcript segment, in start order, and has
// not been overlap-repaired or coalesced.
func (e *Engine) Assign(diar []DiarizationSegment, transcript []TranscriptSegment) ([]MergedSegment, Diagnostics) {
	return e.assign(diar, transcript)
}

func (e *Engine) assign(diar []DiarizationSegment, transcript []TranscriptSegment) ([]MergedSegment, Diagnostics) {
	var diag Diagnostics

	ts := e.validTranscript(transcript, &diag)
	if len(ts) == 0 {
		return []MergedSegment{}, diag
	}
	ds, pos := e.validDiarization(diar, &diag)

	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Start < ts[j].Start })

	out := make([]MergedSegment, len(ts))
	if len(ds) == 0 {
		for i, t := range ts {
			out[i] = newMerged(t, Unknown, 0)
		}
		return out, diag
	}

	// pos[i] is the caller's index of ds[i]; it travels with the sort.
	sort.Stable(byStart{ds, pos})
	for i := 1; i < len(ds); i++ {
		if ds[i].Start < ds[i-1].End {
			diag.add(IssueDiarizationOverlap, SourceDiarization, pos[i],
				fmt.Sprintf("starts at %.3f before previous segment ends at %.3f", ds[i].Start, ds[i-1].End))
		}
	}

	for i, t := range ts {
		speaker, conf := resolveSpeaker(e.opts.Strategy, t.TimeSegment, ds, e.opts.MinOverlapThreshold)
		conf = clamp01(conf)
		if conf < e.opts.ConfidenceThreshold && speaker != Unknown {
			speaker = unknownPrefix + speaker
		}
		out[i] = newMerged(t, speaker, conf)
	}
	return out, diag
}

func newMerged(t TranscriptSegment, speaker string, conf float64) MergedSegment {
	m := MergedSegment{
		TimeSegment: t.TimeSegment,
		Speaker:     speaker,
		Text:        strings.TrimSpace(t.Text),
		Confidence:  conf,
		Language:    t.Language,
	}
	if len(t.Words) > 0 {
		m.Words = append([]Word(nil), t.Words...)
	}
	return m
}

func (e *Engine) validTranscript(in []TranscriptSegment, diag *Diagnostics) []TranscriptSegment {
	out := make([]TranscriptSegment, 0, len(in))
	for i, t := range in {
		if !t.Valid() {
			e.skip(diag, IssueInvalidTiming, SourceTranscript, i, timingReason(t.TimeSegment))
			diag.SkippedTranscript++
			continue
		}
		out = append(out, t)
	}
	return out
}

// validDiarization returns the usable segments and, for each, its index in in.
func (e *Engine) validDiarization(in []DiarizationSegment, diag *Diagnostics) ([]DiarizationSegment, []int) {
	out := make([]DiarizationSegment, 0, len(in))
	pos := make([]int, 0, len(in))
	for i, d := range in {
		if !d.Valid() {
			e.skip(diag, IssueInvalidTiming, SourceDiarization, i, timingReason(d.TimeSegment))
			diag.SkippedDiarization++
			continue
		}
		if strings.TrimSpace(d.Speaker) == "" {
			e.skip(diag, IssueMissingSpeaker, SourceDiarization, i, "empty speaker label")
			diag.SkippedDiarization++
			continue
		}
		// Confidence is advisory; a bad value is discarded, the segment kept.
		if d.Confidence != nil && !inUnit(*d.Confidence) {
			diag.add(IssueInvalidConfidence, SourceDiarization, i, fmt.Sprintf("confidence %v outside [0, 1]", *d.Confidence))
			d.Confidence = nil
		}
		out = append(out, d)
		pos = append(pos, i)
	}
	return out, pos
}

// byStart orders diarization segments by start, permuting pos alongside.
type byStart struct {
	segs []DiarizationSegment
	pos  []int
}

func (b byStart) Len() int           { return len(b.segs) }
func (b byStart) Less(i, j int) bool { return b.segs[i].Start < b.segs[j].Start }
func (b byStart) Swap(i, j int) {
	b.segs[i], b.segs[j] = b.segs[j], b.segs[i]
	b.pos[i], b.pos[j] = b.pos[j], b.pos[i]
}

func (e *Engine) skip(diag *Diagnostics, kind IssueKind, source string, index int, reason string) {
	diag.add(kind, source, index, reason)
	e.log.Warn().
		Str("kind", string(kind)).
		Str("source", source).
		Int("index", index).
		Str("reason", reason).
		Msg("skipping malformed segment")
}

func timingReason(t TimeSegment) string {
	return fmt.Sprintf("invalid span start=%v end=%v", t.Start, t.End)
}
