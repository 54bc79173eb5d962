package index

import (
	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/grid"
)

// Result is what a search area resolved to.
type Result struct {
	City     string            `json:"city"`     // First city met; empty when nothing was found
	Geo      grid.Geo          `json:"geo"`      // City position, or the probed origin when empty
	Cities   []string          `json:"cities"`   // Unique cities in discovery order
	Stations []catalog.Station `json:"stations"` // Unique by name, discovery order
}

// Found reports whether any city was hit.
func (r Result) Found() bool { return r.City != "" }

// Names returns the station names.
func (r Result) Names() []string {
	out := make([]string, len(r.Stations))
	for i, s := range r.Stations {
		out[i] = s.Name
	}
	return out
}

// URLs returns the station URLs, parallel to Names.
func (r Result) URLs() []string {
	out := make([]string, len(r.Stations))
	for i, s := range r.Stations {
		out[i] = s.URL
	}
	return out
}

// Resolve walks cells in search order and gathers every station of every
// city found. The first city becomes the anchor shown on the display.
// Keys the catalog no longer holds are skipped.
func Resolve(cells []grid.Coord, idx *Index, cat *catalog.Catalog) Result {
	res := Result{Cities: []string{}, Stations: []catalog.Station{}}
	if len(cells) > 0 {
		res.Geo = grid.ToGeo(cells[0], idx.res)
	}

	seenCity := make(map[string]struct{})
	seenName := make(map[string]struct{})
	for _, c := range cells {
		for _, city := range idx.Cities(c) {
			if _, ok := seenCity[city]; ok {
				continue
			}
			seenCity[city] = struct{}{}

			rec, ok := cat.Get(city)
			if !ok {
				continue
			}
			res.Cities = append(res.Cities, city)
			if res.City == "" {
				res.City = city
				res.Geo = rec.Geo
			}
			for _, s := range rec.Stations {
				if _, ok := seenName[s.Name]; ok {
					continue
				}
				seenName[s.Name] = struct{}{}
				res.Stations = append(res.Stations, s)
			}
		}
	}
	return res
}

// ResolveCities is the cheap probe: unique city keys in discovery order,
// without expanding stations.
func ResolveCities(cells []grid.Coord, idx *Index) []string {
	var cities []string
	seen := make(map[string]struct{})
	for _, c := range cells {
		for _, city := range idx.Cities(c) {
			if _, ok := seen[city]; ok {
				continue
			}
			seen[city] = struct{}{}
			cities = append(cities, city)
		}
	}
	return cities
}
