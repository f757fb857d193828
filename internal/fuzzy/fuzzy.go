// Package fuzzy compares noisy OCR output against an expected string.
package fuzzy

import "strings"

// DefaultTolerance accepts up to 40% of the target's length in edits.
const DefaultTolerance = 0.4

// Distance returns the Levenshtein edit distance between a and b, counted in runes.
// Insertion, deletion and substitution all cost 1.
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	// Keep the rolling row over the shorter string.
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		diag := row[0] // d[i-1][j-1]
		row[0] = i
		for j := 1; j <= len(rb); j++ {
			up := row[j] // d[i-1][j]
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			row[j] = min(up+1, row[j-1]+1, diag+cost)
			diag = up
		}
	}
	return row[len(rb)]
}

// Ratio is the case-insensitive edit distance normalized by the target's length.
// An empty target is maximally dissimilar (1.0) from anything but itself.
func Ratio(recognized, target string) float64 {
	recognized, target = strings.ToLower(recognized), strings.ToLower(target)
	n := len([]rune(target))
	if n == 0 {
		if recognized == "" {
			return 0
		}
		return 1
	}
	return float64(Distance(recognized, target)) / float64(n)
}

// Similar reports whether recognized is within tolerance of target.
func Similar(recognized, target string, tolerance float64) bool {
	return Ratio(recognized, target) <= tolerance
}
