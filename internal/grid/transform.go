// Package grid maps geographic coordinates onto the R×R encoder torus and
// enumerates the search neighborhood around a pointer position.
package grid

import (
	"errors"
	"fmt"
	"math"
)

// DefaultResolution matches the 10-bit absolute encoders on both axes.
const DefaultResolution Resolution = 1024

// MaxResolution is the largest torus the sparse index can address with its
// 16-bit coordinate fields.
const MaxResolution Resolution = 1 << 16

// ErrInvalidConfig reports a non-positive resolution, fuzziness or
// stickiness. It is fatal at construction time.
var ErrInvalidConfig = errors.New("invalid config")

// Resolution is the number of discrete positions per axis.
type Resolution int

// Validate rejects resolutions the grid cannot represent.
func (r Resolution) Validate() error {
	if r <= 0 || r > MaxResolution {
		return fmt.Errorf("%w: resolution %d out of range (1..%d)", ErrInvalidConfig, r, MaxResolution)
	}
	return nil
}

// Wrap reduces v onto [0, r).
func (r Resolution) Wrap(v int) int {
	n := int(r)
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// Distance is the shortest distance between a and b on one torus axis.
func (r Resolution) Distance(a, b int) int {
	d := r.Wrap(a - b)
	if alt := int(r) - d; alt < d {
		return alt
	}
	return d
}

// Geo is a position in signed degrees.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// String formats the position the way the globe display shows it,
// e.g. "41.08N, 81.52W".
func (g Geo) String() string {
	ns, ew := "N", "E"
	if g.Lat < 0 {
		ns = "S"
	}
	if g.Lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.2f%s, %.2f%s", math.Abs(g.Lat), ns, math.Abs(g.Lon), ew)
}

// Coord is a cell on the torus. X runs along the latitude encoder,
// Y along the longitude encoder.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// ToGrid scales latitude over its 180° span and longitude over its 360° span
// so both axes get uniform cell spacing. Halves round away from zero.
func ToGrid(g Geo, r Resolution) Coord {
	return Coord{
		X: r.Wrap(roundInt((g.Lat + 90) * float64(r) / 180)),
		Y: r.Wrap(roundInt((g.Lon + 180) * float64(r) / 360)),
	}
}

// ToGeo is the approximate inverse of ToGrid, rounded to two decimals for
// display.
func ToGeo(c Coord, r Resolution) Geo {
	return Geo{
		Lat: round2(float64(c.X)*180/float64(r) - 90),
		Lon: round2(float64(c.Y)*360/float64(r) - 180),
	}
}

func roundInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int(math.Round(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
