package dedup

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// stringSimilarity is 1 minus the normalized edit distance, case-insensitive.
// Two empty strings count as no signal, not a perfect match.
func stringSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// techOverlap is the Jaccard index of two technology sets, case-insensitive
func techOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// temporalProximity decays linearly from 1 (same day) to 0 over the window.
// Missing dates give no signal.
func temporalProximity(a, b time.Time, window time.Duration) float64 {
	if a.IsZero() || b.IsZero() || window <= 0 {
		return 0
	}
	delta := a.Sub(b)
	if delta < 0 {
		delta = -delta
	}
	if delta >= window {
		return 0
	}
	return 1 - float64(delta)/float64(window)
}
