package align

// IssueKind classifies an input-quality problem found during a merge.
type IssueKind string

const (
	IssueInvalidTiming      IssueKind = "invalid_timing"
	IssueMissingSpeaker     IssueKind = "missing_speaker"
	IssueInvalidConfidence  IssueKind = "invalid_confidence"
	IssueDiarizationOverlap IssueKind = "diarization_overlap"
	IssueOverlapDropped     IssueKind = "overlap_dropped"
)

// Issue sources.
const (
	SourceDiarization = "diarization"
	SourceTranscript  = "transcript"
	SourceMerged      = "merged"
)

// Issue is one non-fatal problem. Index refers to the position in the
// caller's input slice for diarization/transcript issues, and to the sorted
// merged sequence for overlap repairs.
type Issue struct {
	Kind   IssueKind `json:"kind"`
	Source string    `json:"source"`
	Index  int       `json:"index"`
	Reason string    `json:"reason"`
}

// Diagnostics summarizes what a merge had to skip or repair.
type Diagnostics struct {
	Issues []Issue `json:"issues"`

	SkippedDiarization int `json:"skipped_diarization"`
	SkippedTranscript  int `json:"skipped_transcript"`

	// Overlap repair tiers.
	Snapped  int `json:"snapped"`
	Split    int `json:"split"`
	Replaced int `json:"replaced"`
	Dropped  int `json:"dropped"`

	Folded int `json:"folded"`
	Pruned int `json:"pruned"`
}

func (d *Diagnostics) add(kind IssueKind, source string, index int, reason string) {
	d.Issues = append(d.Issues, Issue{Kind: kind, Source: source, Index: index, Reason: reason})
}

// IssueCounts returns the number of issues per kind.
func (d Diagnostics) IssueCounts() map[IssueKind]int {
	counts := make(map[IssueKind]int, len(d.Issues))
	for _, is := range d.Issues {
		counts[is.Kind]++
	}
	return counts
}
