// Package fingerprint implements tolerant equality comparison of the short
// textual fingerprints participants submit at each sync point.
package fingerprint

import (
	"math"
	"strconv"
	"strings"
)

// Epsilon is the absolute tolerance applied when both corresponding tokens
// parse as finite decimal numbers.
const Epsilon = 1e-10

// Compare reports whether a and b match under the fingerprint comparison
// rules: both are tokenized on runs of space and '=', and compared token by
// token in order. A pair of tokens that both parse as finite float64 values
// match iff their absolute difference is at most Epsilon, plus two units in
// the last place of the larger operand to absorb the rounding of the decimal
// text into float64; otherwise the tokens must be byte-identical. The
// sequences must have equal length to match.
//
// Compare is total: it never panics, regardless of input.
func Compare(a, b string) bool {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) != len(tb) {
		return false
	}
	for i := range ta {
		if !tokensMatch(ta[i], tb[i]) {
			return false
		}
	}
	return true
}

func tokensMatch(a, b string) bool {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil && isFinite(fa) && isFinite(fb) {
		diff := fa - fb
		if diff < 0 {
			diff = -diff
		}
		m := math.Max(math.Abs(fa), math.Abs(fb))
		slack := 2 * (m - math.Nextafter(m, 0))
		return diff <= Epsilon+slack
	}
	return a == b
}

func isFinite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '='
	})
}
