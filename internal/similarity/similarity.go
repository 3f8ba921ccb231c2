// Package similarity implements Unicode-aware edit-distance comparisons.
package similarity

import (
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// Distance returns the Levenshtein distance between a and b counted in
// code points, with unit insertion, deletion and substitution costs.
func Distance(a, b string) int {
	return levenshtein.Distance(a, b, nil)
}

// Ratio returns 1 - Distance(a, b)/max(len(a), len(b)) with lengths in code
// points. Two empty strings are identical.
func Ratio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1
	}
	return 1 - float64(Distance(a, b))/float64(longest)
}
