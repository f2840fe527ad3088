// Package textsim implements the "certainty" string-similarity score
// used to rank SearchResults: a sequence-matcher ratio rounded to 2
// decimals.
package textsim

// Ratio approximates difflib's SequenceMatcher(a=a, b=b).ratio():
// 2*M / T where M is the length of the longest common subsequence (a
// stand-in for the sum of matching block lengths) and T is the
// combined length of both strings.
func Ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	m := lcsLength(ra, rb)
	ratio := 2.0 * float64(m) / float64(len(ra)+len(rb))
	return round2(ratio)
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
