// similarity.go - Rune level edit distance primitives

package processor

// levenshteinDistance counts single rune edits between s1 and s2
func levenshteinDistance(s1, s2 []rune) int {
	len1, len2 := len(s1), len(s2)
	if len1 == 0 {
		return len2
	}
	if len2 == 0 {
		return len1
	}

	// two rows are enough
	prev := make([]int, len2+1)
	curr := make([]int, len2+1)
	for j := 0; j <= len2; j++ {
		prev[j] = j
	}

	for i := 1; i <= len1; i++ {
		curr[0] = i
		for j := 1; j <= len2; j++ {
			cost := 0
			if s1[i-1] != s2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len2]
}

// levenshteinRatio is 1 - distance / longer length, in [0,1]
func levenshteinRatio(a, b string) float64 {
	r1, r2 := []rune(a), []rune(b)
	maxLen := max(len(r1), len(r2))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(r1, r2))/float64(maxLen)
}

// longestCommonSubsequence over runes
func longestCommonSubsequence(s1, s2 []rune) int {
	if len(s1) == 0 || len(s2) == 0 {
		return 0
	}
	prev := make([]int, len(s2)+1)
	curr := make([]int, len(s2)+1)
	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			switch {
			case s1[i-1] == s2[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
		clear(curr)
	}
	return prev[len(s2)]
}

// indelRatio is the normalized insert/delete similarity: 2*LCS / (len(a)+len(b))
func indelRatio(a, b string) float64 {
	r1, r2 := []rune(a), []rune(b)
	total := len(r1) + len(r2)
	if total == 0 {
		return 1
	}
	return 2 * float64(longestCommonSubsequence(r1, r2)) / float64(total)
}
