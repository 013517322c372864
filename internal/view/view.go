// Package view derives the visible subset of a catalog from filter criteria.
// Every function here is pure: it never mutates its input and keeps no state.
package view

import (
	"strings"

	"github.com/kalambet/dexview/internal/catalog"
)

// Visible returns the items of raw that satisfy both criteria, in raw order.
// An empty search term and the "all" category each match everything. The
// result is never nil.
func Visible(raw []catalog.Item, c catalog.Criteria) []catalog.Item {
	c = c.Normalized()
	term := strings.ToLower(c.Search)

	out := make([]catalog.Item, 0, len(raw))
	for _, it := range raw {
		if term != "" && !strings.Contains(strings.ToLower(it.Name), term) {
			continue
		}
		if c.Category != catalog.AllCategories && !it.HasCategory(c.Category) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Categories returns the deduplicated categories of raw in first-seen order.
func Categories(raw []catalog.Item) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, it := range raw {
		for _, c := range it.Categories {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Find returns the item with the given ID.
func Find(raw []catalog.Item, id int) (catalog.Item, bool) {
	for _, it := range raw {
		if it.ID == id {
			return it, true
		}
	}
	return catalog.Item{}, false
}

// ValidCategory reports whether c is usable as a filter against index.
func ValidCategory(index []string, c string) bool {
	if c == "" || c == catalog.AllCategories {
		return true
	}
	for _, have := range index {
		if have == c {
			return true
		}
	}
	return false
}
