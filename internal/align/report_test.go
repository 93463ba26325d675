package align

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	diar := []DiarizationSegment{dseg(0, 2, "A"), dseg(2.5, 3, "B")}
	asr := []TranscriptSegment{tseg(0, 1, "one"), tseg(1, 5, "two")}
	merged := []MergedSegment{
		mseg(0, 1, "A", 1),
		mseg(1, 3, "UNK_A", 0.25),
		mseg(3, 5, Unknown, 0),
	}

	m := Report(diar, asr, merged)
	assert.Equal(t, 2, m.DiarizationSegments)
	assert.Equal(t, 2, m.TranscriptSegments)
	assert.Equal(t, 3, m.MergedSegments)
	assert.Equal(t, 2, m.UnknownSegments)
	assert.InDelta(t, 2.0/3.0, m.UnknownRatio, 1e-9)
	assert.InDelta(t, 1.25/3, m.MeanConfidence, 1e-9)
	// Best overlaps: 1s for "one", 1s for "two" (A over [1, 2]); 5s total.
	assert.InDelta(t, 0.4, m.OverlapCoverage, 1e-9)

	require.Len(t, m.Speakers, 3)
	assert.Equal(t, SpeakerStats{Speaker: "A", Segments: 1, Duration: 1}, m.Speakers[0])
	assert.Equal(t, "UNK_A", m.Speakers[1].Speaker)
	assert.Equal(t, Unknown, m.Speakers[2].Speaker)
}

func TestReport_Empty(t *testing.T) {
	m := Report(nil, nil, nil)
	assert.Equal(t, Metrics{Speakers: []SpeakerStats{}}, m)
}

func TestReport_IgnoresInvalidSpans(t *testing.T) {
	m := Report(
		[]DiarizationSegment{dseg(5, 1, "A")},
		[]TranscriptSegment{tseg(0, 1, "x"), tseg(3, 2, "bad")},
		nil,
	)
	assert.Zero(t, m.OverlapCoverage)
	assert.Equal(t, 2, m.TranscriptSegments)
}

func TestMerge_ReportsDiagnostics(t *testing.T) {
	e := newTestEngine(t, BestOverlap)
	diar := []DiarizationSegment{dseg(0, 4, "A")}
	asr := []TranscriptSegment{tseg(0, 1, "a"), tseg(1.2, 2, "b"), tseg(2.1, 3, " ")}

	res := e.Merge(diar, asr)
	require.Len(t, res.Segments, 1)
	assert.Equal(t, "a b", res.Segments[0].Text)
	assert.Equal(t, 1, res.Diagnostics.Folded)
	assert.Equal(t, 1, res.Diagnostics.Pruned)
	assert.Equal(t, 1, res.Metrics.MergedSegments)
}
