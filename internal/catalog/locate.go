package catalog

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Match is a fuzzy lookup hit.
type Match struct {
	Record   Record
	Distance int
}

// Locate ranks cities by edit distance between query and the city part of
// the key ("Akron" in "Akron,US-OH"). Queries containing a comma are
// compared against the whole key. Ties keep catalog order.
func (c *Catalog) Locate(query string, limit int) []Match {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || limit <= 0 {
		return nil
	}
	full := strings.Contains(q, ",")

	matches := make([]Match, 0, len(c.records))
	for _, r := range c.records {
		name := strings.ToLower(r.Key)
		if !full {
			name, _, _ = strings.Cut(name, ",")
		}
		matches = append(matches, Match{Record: r, Distance: levenshtein.ComputeDistance(q, name)})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}
