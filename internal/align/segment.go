package align

import (
	"math"
	"strings"
)

// Unknown is the speaker label for spans no diarization speaker could be
// assigned to. Low-confidence assignments are written as "UNK_<label>".
const Unknown = "UNK"

const unknownPrefix = Unknown + "_"

// IsUnknown reports whether speaker is the Unknown sentinel or a
// low-confidence "UNK_<label>" hint.
func IsUnknown(speaker string) bool {
	return speaker == Unknown || strings.HasPrefix(speaker, unknownPrefix)
}

// TimeSegment is a span of audio in seconds.
type TimeSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start.
func (t TimeSegment) Duration() float64 { return t.End - t.Start }

// Valid reports whether the span is finite, starts at or after zero and has
// positive length.
func (t TimeSegment) Valid() bool {
	if math.IsNaN(t.Start) || math.IsNaN(t.End) || math.IsInf(t.Start, 0) || math.IsInf(t.End, 0) {
		return false
	}
	return t.Start >= 0 && t.End > t.Start
}

// Contains reports whether instant x falls within [Start, End).
func (t TimeSegment) Contains(x float64) bool {
	return x >= t.Start && x < t.End
}

// DiarizationSegment is a span attributed to an anonymous speaker label by a
// diarization process.
type DiarizationSegment struct {
	TimeSegment
	Speaker    string   `json:"speaker"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Word is a timestamped word from an STT provider.
type Word struct {
	Word        string   `json:"word"`
	Start       float64  `json:"start"`
	End         float64  `json:"end"`
	Probability *float64 `json:"probability,omitempty"`
}

// TranscriptSegment is a span of recognized text.
type TranscriptSegment struct {
	TimeSegment
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Words    []Word `json:"words,omitempty"`
}

// MergedSegment is a speaker-attributed span of text.
type MergedSegment struct {
	TimeSegment
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language,omitempty"`
	Words      []Word  `json:"words,omitempty"`
}

// Overlap returns the temporal overlap of a and b in seconds, and that
// duration as a fraction of a's own length. A zero-length a has ratio 0.
func Overlap(a, b TimeSegment) (duration, ratio float64) {
	duration = math.Max(0, math.Min(a.End, b.End)-math.Max(a.Start, b.Start))
	if span := a.Duration(); span > 0 {
		ratio = duration / span
	}
	return duration, ratio
}
