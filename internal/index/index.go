// Package index maps grid cells to the catalog cities that round onto them,
// encodes that map in a compact sparse file, and resolves search areas to
// stations.
package index

import (
	"fmt"
	"sort"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/grid"
)

// Unoccupied is the reserved city reference meaning "no city". It is never
// stored as a payload, which caps the catalog at 65535 cities.
const Unoccupied uint16 = 0xFFFF

// Index is read-only after Build or Deserialize.
type Index struct {
	res   grid.Resolution
	keys  []string
	cells map[grid.Coord][]uint16
	pairs int
}

// Build places every catalog city on the grid. Cities that round onto the
// same cell are all kept, in catalog order.
func Build(cat *catalog.Catalog, res grid.Resolution) (*Index, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	if cat.Len() > int(Unoccupied) {
		return nil, fmt.Errorf("index: %d cities exceed the %d addressable", cat.Len(), Unoccupied)
	}

	idx := newIndex(res, cat.Keys())
	for i := 0; i < cat.Len(); i++ {
		idx.add(grid.ToGrid(cat.At(i).Geo, res), uint16(i))
	}
	return idx, nil
}

func newIndex(res grid.Resolution, keys []string) *Index {
	return &Index{
		res:   res,
		keys:  keys,
		cells: make(map[grid.Coord][]uint16),
	}
}

func (x *Index) add(c grid.Coord, ref uint16) {
	x.cells[c] = append(x.cells[c], ref)
	x.pairs++
}

// Resolution returns the grid the index was built for.
func (x *Index) Resolution() grid.Resolution { return x.res }

// Len returns the number of occupied cells.
func (x *Index) Len() int { return len(x.cells) }

// Entries returns the number of (cell, city) pairs, i.e. serialized records.
func (x *Index) Entries() int { return x.pairs }

// Cities returns the keys at c in insertion order, or nil.
func (x *Index) Cities(c grid.Coord) []string {
	refs := x.cells[c]
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = x.keys[ref]
	}
	return out
}

// Collisions returns the cells holding more than one city, row-major.
func (x *Index) Collisions() []grid.Coord {
	var out []grid.Coord
	for _, c := range x.occupied() {
		if len(x.cells[c]) > 1 {
			out = append(out, c)
		}
	}
	return out
}

// occupied lists occupied cells in row-major (x, then y) order.
func (x *Index) occupied() []grid.Coord {
	cells := make([]grid.Coord, 0, len(x.cells))
	for c := range x.cells {
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].X != cells[j].X {
			return cells[i].X < cells[j].X
		}
		return cells[i].Y < cells[j].Y
	})
	return cells
}
