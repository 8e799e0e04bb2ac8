// Package search narrows resource rows down by plain text, CEL expressions or a scored term index.
package search

import (
	"github.com/orchestrix-io/orchestrix/internal/model"
	"strings"
	"time"
)

// ExpressionPrefix marks a query as a CEL expression
const ExpressionPrefix = "?"

// Filter decides whether a row is shown
type Filter interface {
	Match(row model.Row) bool
	// Query is the text the filter was compiled from
	Query() string
}

// Compile turns query into a Filter. Queries starting with ExpressionPrefix are CEL expressions and may fail to
// compile; everything else is a case-insensitive substring match.
func Compile(query string, now func() time.Time) (Filter, error) {
	trimmed := strings.TrimSpace(query)
	if strings.HasPrefix(trimmed, ExpressionPrefix) {
		return compileExpression(strings.TrimSpace(strings.TrimPrefix(trimmed, ExpressionPrefix)), query, now)
	}
	return substringFilter{query: query, needle: strings.ToLower(trimmed)}, nil
}

type substringFilter struct {
	query  string
	needle string
}

func (f substringFilter) Query() string { return f.query }

func (f substringFilter) Match(row model.Row) bool {
	if f.needle == "" {
		return true
	}
	if contains(row.Name, f.needle) || contains(row.Namespace, f.needle) || contains(row.Status, f.needle) {
		return true
	}
	for _, c := range row.Cells {
		if contains(c, f.needle) {
			return true
		}
	}
	return false
}

func contains(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}

// Apply returns the rows f matches, keeping their order. A nil filter matches everything.
func Apply(f Filter, rows []model.Row) []model.Row {
	if f == nil {
		return rows
	}
	out := make([]model.Row, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}
