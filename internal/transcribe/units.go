package transcribe

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/snarg/segmerge/internal/align"
)

// DefaultPauseGap is the silence between words, in seconds, that starts a new
// transcript segment.
const DefaultPauseGap = 0.8

// Transmission represents a unit's transmission within a call, parsed from src_list.
type Transmission struct {
	Src      int     `json:"src"`      // unit/radio ID
	Tag      string  `json:"tag"`      // unit alpha tag
	Pos      float64 `json:"pos"`      // start position in audio (seconds)
	Duration float64 `json:"duration"` // transmission duration (seconds)
}

// Speaker returns the label used for this unit in diarization output:
// the alpha tag when known, otherwise the numeric unit ID.
func (t Transmission) Speaker() string {
	if tag := strings.TrimSpace(t.Tag); tag != "" {
		return tag
	}
	return strconv.Itoa(t.Src)
}

// ParseSrcList parses a trunk-recorder src_list into Transmission entries.
// Each entry lasts until the next entry's position; the last one lasts until
// totalDuration. Returns nil for empty or malformed input.
func ParseSrcList(srcListJSON json.RawMessage, totalDuration float64) []Transmission {
	if len(srcListJSON) == 0 || string(srcListJSON) == "null" {
		return nil
	}

	var raw []struct {
		Src int     `json:"src"`
		Tag string  `json:"tag"`
		Pos float64 `json:"pos"`
	}
	if err := json.Unmarshal(srcListJSON, &raw); err != nil {
		return nil
	}

	txs := make([]Transmission, len(raw))
	for i, r := range raw {
		end := totalDuration
		if i+1 < len(raw) {
			end = raw[i+1].Pos
		}
		txs[i] = Transmission{
			Src:      r.Src,
			Tag:      r.Tag,
			Pos:      r.Pos,
			Duration: max(0, end-r.Pos),
		}
	}
	return txs
}

// Diarization converts transmissions into diarization segments, one speaker
// per radio unit. Zero-length transmissions are dropped.
func Diarization(txs []Transmission) []align.DiarizationSegment {
	out := make([]align.DiarizationSegment, 0, len(txs))
	for _, tx := range txs {
		if tx.Duration <= 0 {
			continue
		}
		out = append(out, align.DiarizationSegment{
			TimeSegment: align.TimeSegment{Start: tx.Pos, End: tx.Pos + tx.Duration},
			Speaker:     tx.Speaker(),
		})
	}
	return out
}

// SegmentWords groups word timings into transcript segments, starting a new
// segment wherever the pause before a word is at least maxGap seconds
// (DefaultPauseGap when maxGap <= 0).
//
// fullText is the complete transcription text (with punctuation) from the STT
// provider. When provided, segment text is sliced from it so punctuation
// absent from individual word tokens is kept.
func SegmentWords(words []Word, fullText, language string, maxGap float64) []align.TranscriptSegment {
	if len(words) == 0 {
		return []align.TranscriptSegment{}
	}
	if maxGap <= 0 {
		maxGap = DefaultPauseGap
	}

	// Each group is the half-open word index range [first, last+1).
	type group struct{ first, last int }
	groups := []group{{0, 0}}
	for i := 1; i < len(words); i++ {
		if words[i].Start-words[i-1].End >= maxGap {
			groups = append(groups, group{i, i})
			continue
		}
		groups[len(groups)-1].last = i
	}

	var positions []int
	if fullText != "" {
		positions = mapWordPositions(words, fullText)
	}

	segments := make([]align.TranscriptSegment, len(groups))
	for i, g := range groups {
		var text string
		if positions != nil {
			textEnd := len(fullText)
			if i+1 < len(groups) {
				textEnd = positions[groups[i+1].first]
			}
			text = fullText[positions[g.first]:textEnd]
		} else {
			text = joinWords(words[g.first : g.last+1])
		}
		segments[i] = align.TranscriptSegment{
			TimeSegment: align.TimeSegment{Start: words[g.first].Start, End: words[g.last].End},
			Text:        strings.TrimSpace(text),
			Language:    language,
			Words:       append([]Word(nil), words[g.first:g.last+1]...),
		}
	}
	return segments
}

// mapWordPositions maps each word token to its byte offset in fullText using
// sequential case-insensitive forward scanning. Each word is matched only once,
// advancing past previous matches to handle repeated words correctly.
// Returns nil when lower-casing changes the byte length of fullText, since
// offsets into the lowered copy would no longer index fullText.
func mapWordPositions(words []Word, fullText string) []int {
	lower := strings.ToLower(fullText)
	if len(lower) != len(fullText) {
		return nil
	}
	positions := make([]int, len(words))
	searchFrom := 0

	for i, w := range words {
		wLower := strings.ToLower(strings.TrimSpace(w.Word))
		idx := strings.Index(lower[searchFrom:], wLower)
		if wLower != "" && idx >= 0 {
			positions[i] = searchFrom + idx
			searchFrom += idx + len(wLower)
		} else {
			// Word not found; use current search position as best guess
			positions[i] = searchFrom
		}
	}
	return positions
}

func joinWords(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Word); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
