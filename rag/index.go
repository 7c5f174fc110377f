package rag

import (
	"sort"
	"strings"
)

// BuildTermFrequency counts lowercase whitespace-delimited tokens across all fragments.
// The result does not depend on the order of fragments.
func BuildTermFrequency(fragments []string) map[string]int {
	tf := make(map[string]int)
	for _, f := range fragments {
		for _, term := range strings.Fields(strings.ToLower(f)) {
			tf[term]++
		}
	}
	return tf
}

// TermCount is a single entry of a term-frequency table.
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// TopTerms returns the n most frequent terms, ties broken alphabetically.
// n <= 0 returns every term.
func TopTerms(tf map[string]int, n int) []TermCount {
	terms := make([]TermCount, 0, len(tf))
	for term, count := range tf {
		terms = append(terms, TermCount{Term: term, Count: count})
	}

	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	if n > 0 && len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
