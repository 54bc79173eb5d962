package grid

import "fmt"

// Search returns the probe order around origin. Each layer L in [0, fuzziness)
// covers the (2L+1)×(2L+1) block centred on origin and is scanned starting
// from the bottom-left corner: longitude offset in the outer loop, latitude
// offset in the inner loop, both ascending from -L. Cells already emitted by
// a smaller layer are skipped, so a fuzziness of F yields (2F-1)² cells.
//
// The order is part of the contract: the resolver reports the first city it
// meets.
func Search(origin Coord, fuzziness int, r Resolution) ([]Coord, error) {
	if fuzziness < 1 {
		return nil, fmt.Errorf("%w: fuzziness %d < 1", ErrInvalidConfig, fuzziness)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}

	side := 2*fuzziness - 1
	area := make([]Coord, 0, side*side)
	seen := make(map[Coord]struct{}, side*side)

	for layer := 0; layer < fuzziness; layer++ {
		for dy := -layer; dy <= layer; dy++ {
			for dx := -layer; dx <= layer; dx++ {
				c := Coord{X: r.Wrap(origin.X + dx), Y: r.Wrap(origin.Y + dy)}
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				area = append(area, c)
			}
		}
	}
	return area, nil
}
