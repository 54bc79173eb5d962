package index

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shaunagostinho/globe-radio/internal/grid"
)

// RecordSize is the width of one sparse record: x, y and city reference,
// each a little-endian uint16.
const RecordSize = 6

var (
	ErrTruncatedIndex = errors.New("index: truncated")
	ErrMalformedIndex = errors.New("index: malformed record")
)

// MarshalBinary emits one record per (cell, city) pair, scanning cells in
// row-major order and keeping insertion order inside a cell. Without
// collisions that is exactly one record per occupied cell.
func (x *Index) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, x.pairs*RecordSize)
	var rec [RecordSize]byte
	for _, c := range x.occupied() {
		for _, ref := range x.cells[c] {
			if ref == Unoccupied {
				return nil, fmt.Errorf("%w: reserved reference at %+v", ErrMalformedIndex, c)
			}
			binary.LittleEndian.PutUint16(rec[0:2], uint16(c.X))
			binary.LittleEndian.PutUint16(rec[2:4], uint16(c.Y))
			binary.LittleEndian.PutUint16(rec[4:6], ref)
			buf = append(buf, rec[:]...)
		}
	}
	return buf, nil
}

// Deserialize rebuilds an index from its sparse form. keys is the catalog
// key table the references point into.
func Deserialize(data []byte, res grid.Resolution, keys []string) (*Index, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	if len(data)%RecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrTruncatedIndex, len(data), RecordSize)
	}

	idx := newIndex(res, keys)
	for off := 0; off < len(data); off += RecordSize {
		cx := int(binary.LittleEndian.Uint16(data[off : off+2]))
		cy := int(binary.LittleEndian.Uint16(data[off+2 : off+4]))
		ref := binary.LittleEndian.Uint16(data[off+4 : off+6])

		switch {
		case cx >= int(res) || cy >= int(res):
			return nil, fmt.Errorf("%w: cell (%d,%d) outside %dx%d at offset %d", ErrMalformedIndex, cx, cy, res, res, off)
		case ref == Unoccupied:
			return nil, fmt.Errorf("%w: reserved reference at offset %d", ErrMalformedIndex, off)
		case int(ref) >= len(keys):
			return nil, fmt.Errorf("%w: reference %d beyond %d cities at offset %d", ErrMalformedIndex, ref, len(keys), off)
		}
		idx.add(grid.Coord{X: cx, Y: cy}, ref)
	}
	return idx, nil
}
