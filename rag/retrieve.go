package rag

import (
	"sort"
	"strings"
)

// DefaultTopK is the number of fragments handed to the models when not configured.
const DefaultTopK = 3

// Retrieve scores every fragment by the number of distinct query terms it
// contains and returns the text of the k best ones, best first. Fragments with
// the same score keep their document order.
//
// Matching is exact on lowercase whitespace-delimited tokens: no stemming,
// no stop words, no substring matches.
func Retrieve(query string, fragments []string, k int) []string {
	if k <= 0 || len(fragments) == 0 {
		return []string{}
	}

	queryTerms := termSet(query)

	type scored struct {
		index int
		score int
	}

	scores := make([]scored, len(fragments))
	for i, fragment := range fragments {
		score := 0
		for term := range termSet(fragment) {
			if _, ok := queryTerms[term]; ok {
				score++
			}
		}
		scores[i] = scored{index: i, score: score}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if k > len(scores) {
		k = len(scores)
	}

	ranked := make([]string, 0, k)
	for _, s := range scores[:k] {
		ranked = append(ranked, fragments[s.index])
	}
	return ranked
}

func termSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, term := range strings.Fields(strings.ToLower(s)) {
		set[term] = struct{}{}
	}
	return set
}
