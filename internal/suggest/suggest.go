// Package suggest provides fuzzy matching for exercise names using
// Levenshtein distance. The CLI uses it to flag a freshly logged name
// that looks like a typo of one already in the workout.
package suggest

import (
	"strings"
)

// levenshtein calculates the edit distance between two strings
func levenshtein(a, b string) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create matrix
	matrix := make([][]int, len(a)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(b)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	// Fill matrix
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			matrix[i][j] = min(
				matrix[i-1][j]+1,      // deletion
				matrix[i][j-1]+1,      // insertion
				matrix[i-1][j-1]+cost, // substitution
			)
		}
	}

	return matrix[len(a)][len(b)]
}

// Exercise finds known exercise names similar to name, sorted by
// similarity (best first), at most 3. Exact matches are not suggestions
// and are skipped.
func Exercise(name string, known []string) []string {
	name = strings.ToLower(strings.TrimSpace(name))

	type scored struct {
		name  string
		score int
	}
	var candidates []scored

	for _, k := range known {
		dist := levenshtein(name, strings.ToLower(strings.TrimSpace(k)))
		if dist == 0 {
			continue
		}
		// Only suggest if close (within 2 edits or a third of the length).
		// Exercise names are longer than CLI flags, so the flag-style
		// half-length threshold would pull in unrelated lifts.
		maxDist := max(2, len(name)/3)
		if dist <= maxDist {
			candidates = append(candidates, scored{k, dist})
		}
	}

	// Sort by score (lower is better)
	for i := 0; i < len(candidates)-1; i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].score < candidates[i].score {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	var result []string
	for i := 0; i < len(candidates) && i < 3; i++ {
		result = append(result, candidates[i].name)
	}
	return result
}

// CommonShorthand maps gym abbreviations to full exercise names.
var CommonShorthand = map[string]string{
	"bp":  "bench press",
	"ohp": "overhead press",
	"dl":  "deadlift",
	"rdl": "romanian deadlift",
	"sq":  "squat",
	"fs":  "front squat",
	"bor": "barbell row",
}

// Shorthand returns the full exercise name for a known gym abbreviation,
// or "" when name is not one.
func Shorthand(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if full, ok := CommonShorthand[name]; ok {
		return full
	}
	return ""
}
