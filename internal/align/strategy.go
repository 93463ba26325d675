package align

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Strategy selects how a transcript segment is mapped to a speaker.
type Strategy string

const (
	// BestOverlap picks the single diarization segment with the longest
	// qualifying overlap.
	BestOverlap Strategy = "best_overlap"
	// Weighted accumulates duration*ratio per speaker, which tolerates
	// diarization that splits one speaker's turn into fragments.
	Weighted Strategy = "weighted"
	// MajorityVote samples the transcript span and lets each sample vote
	// for the diarization segment containing it.
	MajorityVote Strategy = "majority_vote"
)

// samplesPerSecond is the MajorityVote sampling rate.
const samplesPerSecond = 10

var ErrUnknownStrategy = errors.New("unknown merge strategy")

// Strategies lists the supported strategies in documentation order.
func Strategies() []Strategy {
	return []Strategy{BestOverlap, Weighted, MajorityVote}
}

// ParseStrategy converts a configuration value to a Strategy.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case BestOverlap, Weighted, MajorityVote:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// resolveSpeaker maps one transcript span to (speaker, confidence) against
// diar, which must be sorted by start. Ties go to the candidate seen first.
func resolveSpeaker(st Strategy, seg TimeSegment, diar []DiarizationSegment, minOverlap float64) (string, float64) {
	if len(diar) == 0 {
		return Unknown, 0
	}
	switch st {
	case BestOverlap:
		return resolveBestOverlap(seg, diar, minOverlap)
	case Weighted:
		return resolveWeighted(seg, diar, minOverlap)
	case MajorityVote:
		return resolveMajorityVote(seg, diar)
	}
	// NewEngine rejects anything else.
	panic(fmt.Sprintf("align: unhandled strategy %q", st))
}

func resolveBestOverlap(seg TimeSegment, diar []DiarizationSegment, minOverlap float64) (string, float64) {
	best := -1
	var bestDur, bestRatio float64
	for i, d := range diar {
		dur, ratio := Overlap(seg, d.TimeSegment)
		if dur <= 0 || ratio < minOverlap {
			continue
		}
		if dur > bestDur {
			best, bestDur, bestRatio = i, dur, ratio
		}
	}
	if best < 0 {
		return Unknown, 0
	}
	return diar[best].Speaker, math.Min(1, bestRatio*2)
}

// tally accumulates a score per speaker while remembering first-seen order,
// so winner selection never depends on map iteration.
type tally struct {
	index  map[string]int
	labels []string
	scores []float64
	total  float64
}

func newTally() *tally {
	return &tally{index: make(map[string]int)}
}

func (t *tally) add(speaker string, v float64) {
	i, ok := t.index[speaker]
	if !ok {
		i = len(t.labels)
		t.index[speaker] = i
		t.labels = append(t.labels, speaker)
		t.scores = append(t.scores, 0)
	}
	t.scores[i] += v
	t.total += v
}

// winner returns the highest-scoring speaker; the earliest wins ties.
func (t *tally) winner() (string, float64, bool) {
	best := -1
	for i, s := range t.scores {
		if best < 0 || s > t.scores[best] {
			best = i
		}
	}
	if best < 0 {
		return "", 0, false
	}
	return t.labels[best], t.scores[best], true
}

func resolveWeighted(seg TimeSegment, diar []DiarizationSegment, minOverlap float64) (string, float64) {
	t := newTally()
	for _, d := range diar {
		dur, ratio := Overlap(seg, d.TimeSegment)
		if dur <= 0 || ratio < minOverlap {
			continue
		}
		t.add(d.Speaker, dur*ratio)
	}
	speaker, weight, ok := t.winner()
	if !ok || t.total <= 0 {
		return Unknown, 0
	}
	return speaker, clamp01(weight / t.total)
}

func resolveMajorityVote(seg TimeSegment, diar []DiarizationSegment) (string, float64) {
	n := int(seg.Duration() * samplesPerSecond)
	if n < 1 {
		n = 1
	}
	step := seg.Duration() / float64(n)

	t := newTally()
	for i := 0; i < n; i++ {
		at := seg.Start + (float64(i)+0.5)*step
		for _, d := range diar {
			if d.Contains(at) {
				t.add(d.Speaker, 1)
				break
			}
		}
	}
	// Samples outside every diarization segment cast no vote.
	speaker, votes, ok := t.winner()
	if !ok || t.total <= 0 {
		return Unknown, 0
	}
	return speaker, clamp01(votes / t.total)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
