package tui

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// filterRows narrows the report rows to those matching query. Substring
// matches come first, ranked by how early the match starts; rows whose
// name is merely a near-miss of the query trail behind, so a typo still
// finds its item.
func filterRows(rows []reportRow, query string) []reportRow {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return rows
	}

	type ranked struct {
		row  reportRow
		rank int
	}
	var direct []ranked
	var fuzzy []reportRow
	for _, row := range rows {
		name := strings.ToLower(row.name)
		if at := strings.Index(name, q); at >= 0 {
			direct = append(direct, ranked{row: row, rank: at})
			continue
		}
		if nearMiss(name, q) {
			fuzzy = append(fuzzy, row)
		}
	}
	sort.SliceStable(direct, func(i, j int) bool { return direct[i].rank < direct[j].rank })

	out := make([]reportRow, 0, len(direct)+len(fuzzy))
	for _, d := range direct {
		out = append(out, d.row)
	}
	return append(out, fuzzy...)
}

// nearMiss reports whether the edit distance between name and query
// stays under 40% of the longer string.
func nearMiss(name, query string) bool {
	dist := levenshtein.ComputeDistance(name, query)
	maxlen := float64(len(name))
	if len(query) > len(name) {
		maxlen = float64(len(query))
	}
	if maxlen == 0 {
		return false
	}
	return float64(dist)/maxlen < 0.4
}
