package companymatch

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// legalSuffixes are entity-form markers dropped before any name comparison.
// Covers the Bulgarian registry forms (AD, EOOD, OOD) alongside the usual
// western ones.
var legalSuffixes = map[string]struct{}{
	"ltd": {}, "limited": {}, "llc": {}, "llp": {}, "inc": {}, "corp": {},
	"corporation": {}, "co": {}, "plc": {}, "gmbh": {}, "ag": {}, "sa": {},
	"sarl": {}, "bv": {}, "ad": {}, "ead": {}, "ood": {}, "eood": {}, "jsc": {},
}

// fillerWords carry no identity signal and are dropped the same way
var fillerWords = map[string]struct{}{
	"company": {}, "group": {}, "solutions": {}, "technologies": {},
	"technology": {}, "software": {}, "services": {}, "consulting": {},
	"labs": {}, "studio": {}, "digital": {}, "global": {}, "international": {},
	"holdings": {}, "the": {},
}

// normalizeName lowercases, strips punctuation, and drops legal-entity
// suffixes and generic filler words. "UKG Bulgaria EOOD" and "ukg bulgaria"
// normalize identically.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r >= 'а' && r <= 'я':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	var kept []string
	for _, word := range strings.Fields(b.String()) {
		if _, ok := legalSuffixes[word]; ok {
			continue
		}
		if _, ok := fillerWords[word]; ok {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		// Everything was filler; fall back to the raw fields so the name
		// still participates in matching.
		return strings.Join(strings.Fields(b.String()), " ")
	}
	return strings.Join(kept, " ")
}

// nameWords returns the normalized name split for candidate filtering
func nameWords(name string) []string {
	return strings.Fields(normalizeName(name))
}

// extractDomain reduces a website URL to its bare host: scheme, "www." and
// path stripped, lowercased. Returns "" when no host survives.
func extractDomain(rawURL string) string {
	s := strings.TrimSpace(strings.ToLower(rawURL))
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	for _, sep := range []string{"/", "?", "#", ":"} {
		if idx := strings.Index(s, sep); idx >= 0 {
			s = s[:idx]
		}
	}
	return s
}

// nameSimilarity compares two already-normalized names. Containment of one
// inside the other (subsidiary naming) scores a fixed high constant without
// running full edit distance.
const containmentScore = 0.85

func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return containmentScore
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	dist := levenshtein.ComputeDistance(a, b)
	if dist >= longest {
		return 0
	}
	return 1 - float64(dist)/float64(longest)
}

// fieldSimilarity is a case-insensitive fuzzy compare for free-text fields
// like location and industry
func fieldSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
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
