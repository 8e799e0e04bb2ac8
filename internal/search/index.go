package search

import (
	"github.com/orchestrix-io/orchestrix/internal/model"
	"regexp"
	"sort"
	"strings"
)

const minPrefixLength = 3

// DefaultMaxResults caps a search when no limit is given
const DefaultMaxResults = 1000

const (
	phraseScore   = 5.0
	termScore     = 1.0
	boundaryBonus = 0.5
	prefixBonus   = 1.0
)

var (
	wordRe   = regexp.MustCompile(`\w+`)
	phraseRe = regexp.MustCompile(`"([^"]*)"|(\S+)`)
)

type field struct {
	weight float64
	value  func(model.Row) string
}

var indexedFields = []field{
	{3, func(r model.Row) string { return r.Name }},
	{2, func(r model.Row) string { return r.Namespace }},
	{2.5, func(r model.Row) string { return r.Status }},
	{1.5, func(r model.Row) string { return r.Message }},
	{2, func(r model.Row) string { return r.Reason }},
	{2, func(r model.Row) string { return r.Type }},
}

// Result is one scored match; Index is the position of the row in the indexed slice
type Result struct {
	Index int
	Row   model.Row
	Score float64
}

// Index maps terms and their prefixes to the rows containing them
type Index struct {
	rows  []model.Row
	terms map[string]map[int]bool
}

func NewIndex(rows []model.Row) *Index {
	idx := &Index{terms: make(map[string]map[int]bool)}
	idx.Add(rows...)
	return idx
}

// Add indexes more rows, e.g. after a page was appended
func (idx *Index) Add(rows ...model.Row) {
	for _, r := range rows {
		i := len(idx.rows)
		idx.rows = append(idx.rows, r)
		for _, f := range indexedFields {
			for _, tok := range tokens(f.value(r)) {
				idx.put(tok, i)
				for n := minPrefixLength; n < len(tok); n++ {
					idx.put(tok[:n], i)
				}
			}
		}
	}
}

func (idx *Index) put(term string, row int) {
	set, ok := idx.terms[term]
	if !ok {
		set = make(map[int]bool)
		idx.terms[term] = set
	}
	set[row] = true
}

// termRows are the rows with a token starting with t. Prefixes from minPrefixLength up are indexed, shorter
// terms are matched against every indexed term.
func (idx *Index) termRows(t string) map[int]bool {
	if len(t) >= minPrefixLength {
		return idx.terms[t]
	}
	rows := make(map[int]bool)
	for term, set := range idx.terms {
		if !strings.HasPrefix(term, t) {
			continue
		}
		for i := range set {
			rows[i] = true
		}
	}
	return rows
}

func (idx *Index) Len() int {
	return len(idx.rows)
}

func tokens(s string) []string {
	return wordRe.FindAllString(strings.ToLower(s), -1)
}

// parseQuery splits a query into quoted phrases and bare terms, lowercased
func parseQuery(query string) (phrases, terms []string) {
	for _, m := range phraseRe.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			phrases = append(phrases, strings.ToLower(m[1]))
			continue
		}
		terms = append(terms, tokens(m[2])...)
	}
	return phrases, terms
}

// Search returns the rows matching every term and phrase of query, best first, at most limit of them or
// DefaultMaxResults when limit is not positive. Ties keep row order.
func (idx *Index) Search(query string, limit int) []Result {
	phrases, terms := parseQuery(query)
	if len(phrases) == 0 && len(terms) == 0 {
		return nil
	}

	var candidates map[int]bool
	intersect := func(set map[int]bool) {
		if candidates == nil {
			candidates = make(map[int]bool, len(set))
			for i := range set {
				candidates[i] = true
			}
			return
		}
		for i := range candidates {
			if !set[i] {
				delete(candidates, i)
			}
		}
	}
	for _, t := range terms {
		intersect(idx.termRows(t))
	}
	for _, p := range phrases {
		// phrase words narrow the candidates before the substring check below
		for _, t := range tokens(p) {
			intersect(idx.terms[t])
		}
	}
	if candidates == nil {
		candidates = make(map[int]bool, len(idx.rows))
		for i := range idx.rows {
			candidates[i] = true
		}
	}

	var maxScore float64
	for _, f := range indexedFields {
		maxScore += f.weight * (phraseScore*float64(len(phrases)) + (termScore+boundaryBonus+prefixBonus)*float64(len(terms)))
	}

	var results []Result
	for i := range candidates {
		r := idx.rows[i]
		score, ok := scoreRow(r, phrases, terms)
		if !ok {
			continue
		}
		if maxScore > 0 {
			score /= maxScore
		}
		if score > 1 {
			score = 1
		}
		results = append(results, Result{Index: i, Row: r, Score: score})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Index < results[b].Index
	})
	if limit <= 0 {
		limit = DefaultMaxResults
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// scoreRow reports false when a phrase is not found in any field
func scoreRow(r model.Row, phrases, terms []string) (float64, bool) {
	var score float64
	for _, p := range phrases {
		found := false
		for _, f := range indexedFields {
			if strings.Contains(strings.ToLower(f.value(r)), p) {
				score += phraseScore * f.weight
				found = true
			}
		}
		if !found {
			return 0, false
		}
	}
	for _, t := range terms {
		for _, f := range indexedFields {
			value := strings.ToLower(f.value(r))
			if !strings.Contains(value, t) {
				continue
			}
			score += termScore * f.weight
			for _, tok := range tokens(value) {
				if strings.HasPrefix(tok, t) {
					score += boundaryBonus * f.weight
					break
				}
			}
			if strings.HasPrefix(value, t) {
				score += prefixBonus * f.weight
			}
		}
	}
	return score, true
}
