package encoder

import (
	"fmt"

	"github.com/shaunagostinho/globe-radio/internal/grid"
)

// Offsets is the zero-point calibration added to every reading, mod R.
type Offsets struct {
	Lat int `json:"lat"`
	Lon int `json:"lon"`
}

// Conditioner turns encoder positions into grid coordinates.
type Conditioner struct {
	res grid.Resolution
}

// NewConditioner validates the target grid.
func NewConditioner(res grid.Resolution) (*Conditioner, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("conditioner: %w", err)
	}
	return &Conditioner{res: res}, nil
}

// Resolution returns the grid the conditioner maps onto.
func (c *Conditioner) Resolution() grid.Resolution { return c.res }

// Orient scales both positions onto the grid and inverts latitude to undo
// the sensor's mounting orientation. No calibration is applied.
func (c *Conditioner) Orient(rawLat, rawLon uint16) grid.Coord {
	lat := int(rawLat) * int(c.res) / Resolution
	lon := int(rawLon) * int(c.res) / Resolution
	return grid.Coord{
		X: c.res.Wrap(int(c.res) - lat),
		Y: c.res.Wrap(lon),
	}
}

// Raw is the inverse of Orient: the encoder positions that orient onto c.
// Exact when the grid matches the encoder resolution.
func (c *Conditioner) Raw(coord grid.Coord) (rawLat, rawLon uint16) {
	lat := c.res.Wrap(int(c.res)-coord.X) * Resolution / int(c.res)
	lon := c.res.Wrap(coord.Y) * Resolution / int(c.res)
	return uint16(lat), uint16(lon)
}

// Apply adds the calibration offsets to an oriented reading.
func (c *Conditioner) Apply(oriented grid.Coord, off Offsets) grid.Coord {
	return grid.Coord{
		X: c.res.Wrap(oriented.X + off.Lat),
		Y: c.res.Wrap(oriented.Y + off.Lon),
	}
}

// Condition is Orient followed by Apply.
func (c *Conditioner) Condition(rawLat, rawLon uint16, off Offsets) grid.Coord {
	return c.Apply(c.Orient(rawLat, rawLon), off)
}

// Zero returns the offsets that move the current oriented reading to the
// centre of the grid.
func (c *Conditioner) Zero(current grid.Coord) Offsets {
	half := int(c.res) / 2
	return Offsets{
		Lat: half - current.X,
		Lon: half - current.Y,
	}
}
