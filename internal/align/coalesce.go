package align

import "strings"

// maxFoldGap is the largest silence between two same-speaker segments that
// still folds them into one.
const maxFoldGap = 1.0

// Coalesce drops segments with no text and folds neighbours that share a
// speaker and are less than a second apart. Folded segments join text with a
// single space, average confidence, and concatenate word timings.
// segs must already be sorted by start. Coalescing its own output is a no-op.
func Coalesce(segs []MergedSegment) []MergedSegment {
	var diag Diagnostics
	return coalesce(segs, &diag)
}

func coalesce(segs []MergedSegment, diag *Diagnostics) []MergedSegment {
	out := make([]MergedSegment, 0, len(segs))
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			diag.Pruned++
			continue
		}

		if n := len(out); n > 0 {
			prev := &out[n-1]
			if prev.Speaker == s.Speaker && s.Start-prev.End < maxFoldGap {
				if s.End > prev.End {
					prev.End = s.End
				}
				prev.Text += " " + s.Text
				prev.Confidence = (prev.Confidence + s.Confidence) / 2
				if len(s.Words) > 0 {
					// Full slice expression so folding never writes into a
					// backing array the caller still holds.
					prev.Words = append(prev.Words[:len(prev.Words):len(prev.Words)], s.Words...)
				}
				diag.Folded++
				continue
			}
		}
		out = append(out, s)
	}
	return out
}
