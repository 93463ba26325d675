package align

import (
	"fmt"
	"sort"
)

// Overlap repair tiers, in seconds, and the confidence margin a segment needs
// to claim a large overlap outright.
const (
	negligibleOverlap = 0.1
	smallOverlap      = 0.5
	confidenceMargin  = 0.1
)

// ResolveOverlaps re-sorts segs by start and repairs temporal collisions
// between neighbours so that out[i].End <= out[i+1].Start:
//
//   - under 0.1s the earlier segment is trimmed to where the later starts;
//   - under 0.5s both meet at the midpoint of the overlap;
//   - otherwise the segment more confident by over 0.1 keeps the span and
//     the other is dropped, falling back to the midpoint split.
//
// segs is not modified.
func ResolveOverlaps(segs []MergedSegment) []MergedSegment {
	var diag Diagnostics
	return resolveOverlaps(segs, &diag)
}

func resolveOverlaps(segs []MergedSegment, diag *Diagnostics) []MergedSegment {
	sorted := make([]MergedSegment, len(segs))
	copy(sorted, segs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	k := &kept{segs: make([]MergedSegment, 0, len(sorted)), pos: make([]int, 0, len(sorted))}
	for i, cur := range sorted {
		if keep := repair(k, i, &cur, diag); keep {
			k.segs = append(k.segs, cur)
			k.pos = append(k.pos, i)
		}
	}
	return k.segs
}

// kept is the repaired sequence so far; pos[i] is the sorted position segs[i]
// came from.
type kept struct {
	segs []MergedSegment
	pos  []int
}

func (k *kept) pop() {
	k.segs = k.segs[:len(k.segs)-1]
	k.pos = k.pos[:len(k.pos)-1]
}

// repair settles cur, at sorted position index, against the tail of k,
// popping tail segments that lose to it. It reports whether cur survives.
func repair(k *kept, index int, cur *MergedSegment, diag *Diagnostics) bool {
	for len(k.segs) > 0 {
		last := len(k.segs) - 1
		prev := &k.segs[last]
		prevIndex := k.pos[last]
		if cur.Start >= prev.End {
			return true
		}

		overlap := prev.End - cur.Start
		mid := cur.Start + overlap/2

		switch {
		case overlap < negligibleOverlap:
			prev.End = cur.Start
			diag.Snapped++

		case overlap >= smallOverlap && cur.Confidence > prev.Confidence+confidenceMargin:
			diag.Replaced++
			diag.add(IssueOverlapDropped, SourceMerged, prevIndex, fmt.Sprintf(
				"%q (%.2f) replaced by more confident %q (%.2f) over %.2fs overlap",
				prev.Speaker, prev.Confidence, cur.Speaker, cur.Confidence, overlap))
			k.pop()
			continue

		case overlap >= smallOverlap && prev.Confidence > cur.Confidence+confidenceMargin:
			diag.Dropped++
			diag.add(IssueOverlapDropped, SourceMerged, index, fmt.Sprintf(
				"%q (%.2f) dropped in favour of more confident %q (%.2f) over %.2fs overlap",
				cur.Speaker, cur.Confidence, prev.Speaker, prev.Confidence, overlap))
			return false

		default:
			if mid >= cur.End {
				diag.Dropped++
				diag.add(IssueOverlapDropped, SourceMerged, index, fmt.Sprintf(
					"%q [%.3f, %.3f] contained in preceding segment", cur.Speaker, cur.Start, cur.End))
				return false
			}
			prev.End, cur.Start = mid, mid
			diag.Split++
		}

		if prev.End > prev.Start {
			return true
		}
		// Trimming collapsed prev; cur now has to settle against the one before.
		diag.Dropped++
		diag.add(IssueOverlapDropped, SourceMerged, prevIndex, fmt.Sprintf("%q collapsed to zero length", prev.Speaker))
		k.pop()
	}
	return true
}
