package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// SuggestModules returns known module names close to input, closest first.
// Used to hint at typos such as "member" or "finance".
func SuggestModules(input string, modules []string) []string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return nil
	}

	ranks := fuzzy.RankFindFold(input, modules)
	seen := make(map[string]bool, len(ranks))
	for _, r := range ranks {
		seen[r.Target] = true
	}

	// Names the input does not subsequence-match can still be a near miss
	for _, m := range modules {
		if seen[m] {
			continue
		}
		if d := fuzzy.LevenshteinDistance(input, m); d <= maxEditDistance(m) {
			ranks = append(ranks, fuzzy.Rank{Source: input, Target: m, Distance: d, OriginalIndex: -1})
		}
	}

	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})

	out := make([]string, len(ranks))
	for i, r := range ranks {
		out[i] = r.Target
	}
	return out
}

func maxEditDistance(name string) int {
	if len(name) <= 4 {
		return 1
	}
	return 2
}
