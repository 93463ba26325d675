package align

import "math"

// SpeakerStats is one speaker's share of the merged output.
type SpeakerStats struct {
	Speaker  string  `json:"speaker"`
	Segments int     `json:"segments"`
	Duration float64 `json:"duration"`
}

// Metrics are diagnostics over one merge. They are not needed for
// correctness of the merged output.
type Metrics struct {
	DiarizationSegments int            `json:"diarization_segments"`
	TranscriptSegments  int            `json:"transcript_segments"`
	MergedSegments      int            `json:"merged_segments"`
	Speakers            []SpeakerStats `json:"speakers"`
	MeanConfidence      float64        `json:"mean_confidence"`
	UnknownSegments     int            `json:"unknown_segments"`
	UnknownRatio        float64        `json:"unknown_ratio"`
	// OverlapCoverage is the best single-segment diarization overlap summed
	// over transcript segments, divided by total transcript duration.
	OverlapCoverage float64 `json:"overlap_coverage"`
}

// Report computes Metrics. Invalid input spans are ignored. Empty inputs
// yield zero values.
func Report(diar []DiarizationSegment, transcript []TranscriptSegment, merged []MergedSegment) Metrics {
	m := Metrics{
		DiarizationSegments: len(diar),
		TranscriptSegments:  len(transcript),
		MergedSegments:      len(merged),
		Speakers:            []SpeakerStats{},
	}

	index := make(map[string]int)
	var confSum float64
	for _, s := range merged {
		confSum += s.Confidence
		if IsUnknown(s.Speaker) {
			m.UnknownSegments++
		}
		i, ok := index[s.Speaker]
		if !ok {
			i = len(m.Speakers)
			index[s.Speaker] = i
			m.Speakers = append(m.Speakers, SpeakerStats{Speaker: s.Speaker})
		}
		m.Speakers[i].Segments++
		m.Speakers[i].Duration += math.Max(0, s.Duration())
	}
	if len(merged) > 0 {
		m.MeanConfidence = confSum / float64(len(merged))
		m.UnknownRatio = float64(m.UnknownSegments) / float64(len(merged))
	}

	var covered, total float64
	for _, t := range transcript {
		if !t.Valid() {
			continue
		}
		total += t.Duration()
		var best float64
		for _, d := range diar {
			if !d.Valid() {
				continue
			}
			if dur, _ := Overlap(t.TimeSegment, d.TimeSegment); dur > best {
				best = dur
			}
		}
		covered += best
	}
	if total > 0 {
		m.OverlapCoverage = clamp01(covered / total)
	}
	return m
}
