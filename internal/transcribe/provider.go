package transcribe

import (
	"strings"

	"github.com/snarg/segmerge/internal/align"
)

// Word is a timestamped word from any STT provider.
type Word = align.Word

// Response is the common transcription result from any STT provider.
type Response struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"` // audio duration in seconds
	Words    []Word  `json:"words,omitempty"`    // nil if provider doesn't support word timestamps
}

// Segments splits the response into transcript segments at pauses of at
// least maxGap seconds. Without word timings the whole text becomes one
// segment spanning [0, Duration], or nothing if Duration is unknown.
func (r *Response) Segments(maxGap float64) []align.TranscriptSegment {
	if len(r.Words) > 0 {
		return SegmentWords(r.Words, r.Text, r.Language, maxGap)
	}
	text := strings.TrimSpace(r.Text)
	if text == "" || r.Duration <= 0 {
		return []align.TranscriptSegment{}
	}
	return []align.TranscriptSegment{{
		TimeSegment: align.TimeSegment{Start: 0, End: r.Duration},
		Text:        text,
		Language:    r.Language,
	}}
}
