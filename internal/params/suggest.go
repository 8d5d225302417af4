package params

// suggest returns the candidate closest to key by edit distance, or ""
// when nothing is within half the key's length (beyond that the match is
// more likely noise than a typo).
func suggest(key string, candidates []string) string {
	best := ""
	bestDist := len(key)/2 + 1
	for _, c := range candidates {
		if d := levenshtein(key, c); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// levenshtein computes the edit distance between a and b using a
// two-row rolling table.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
