package metadata

import (
	"sort"
	"strings"
)

// rankSuggestions orders candidates by closeness to the target: prefix
// matches first, then by edit distance.
func rankSuggestions(target string, candidates []string, limit int) []string {
	type scored struct {
		value string
		score int
	}
	lower := strings.ToLower(target)
	ranked := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		s := strings.ToLower(candidate)
		if strings.HasPrefix(s, lower) {
			ranked = append(ranked, scored{value: candidate, score: 0})
			continue
		}
		ranked = append(ranked, scored{value: candidate, score: levenshtein(lower, s)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].value < ranked[j].value
		}
		return ranked[i].score < ranked[j].score
	})
	if len(ranked) < limit {
		limit = len(ranked)
	}
	out := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, ranked[i].value)
	}
	return out
}

// levenshtein computes the edit distance between a and b.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		ai := a[i-1]
		for j := 1; j <= lb; j++ {
			cost := 0
			if ai != b[j-1] {
				cost = 1
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			m := del
			if ins < m {
				m = ins
			}
			if sub < m {
				m = sub
			}
			curr[j] = m
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
