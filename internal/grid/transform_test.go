package grid

import (
	"errors"
	"math"
	"testing"
)

func TestToGridStaysOnTorus(t *testing.T) {
	for _, r := range []Resolution{1, 7, 360, 1024, 4096} {
		for lat := -90.0; lat <= 90.0; lat += 2.5 {
			for lon := -180.0; lon <= 180.0; lon += 3.75 {
				c := ToGrid(Geo{Lat: lat, Lon: lon}, r)
				if c.X < 0 || c.X >= int(r) || c.Y < 0 || c.Y >= int(r) {
					t.Fatalf("R=%d ToGrid(%v,%v)=%+v out of range", r, lat, lon, c)
				}
			}
		}
	}
}

func TestToGridKnownCells(t *testing.T) {
	tests := []struct {
		name string
		geo  Geo
		want Coord
	}{
		{name: "origin", geo: Geo{Lat: 0, Lon: 0}, want: Coord{X: 512, Y: 512}},
		{name: "south_west_corner", geo: Geo{Lat: -90, Lon: -180}, want: Coord{X: 0, Y: 0}},
		{name: "north_east_wraps", geo: Geo{Lat: 90, Lon: 180}, want: Coord{X: 0, Y: 0}},
		{name: "akron", geo: Geo{Lat: 41.08, Lon: -81.52}, want: Coord{X: 746, Y: 280}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToGrid(tt.geo, DefaultResolution); got != tt.want {
				t.Fatalf("ToGrid=%+v want %+v", got, tt.want)
			}
		})
	}
}

func TestToGridRoundsHalfAwayFromZero(t *testing.T) {
	// (lon+180)*1024/360 lands exactly on .5 for these longitudes; banker's
	// rounding would give 0 and 2.
	tests := []struct {
		lon  float64
		want int
	}{
		{lon: -180 + 0.17578125, want: 1}, // 0.5
		{lon: -180 + 0.87890625, want: 3}, // 2.5
	}
	for _, tt := range tests {
		got := ToGrid(Geo{Lat: 0, Lon: tt.lon}, DefaultResolution)
		if got.Y != tt.want {
			t.Fatalf("lon=%v Y=%d want %d", tt.lon, got.Y, tt.want)
		}
	}
}

func TestToGridNaNIsTotal(t *testing.T) {
	c := ToGrid(Geo{Lat: math.NaN(), Lon: math.Inf(1)}, DefaultResolution)
	if c != (Coord{}) {
		t.Fatalf("ToGrid(NaN, Inf)=%+v want zero cell", c)
	}
}

func TestToGeoApproximatesInverse(t *testing.T) {
	r := DefaultResolution
	cellLat := 180.0 / float64(r)
	cellLon := 360.0 / float64(r)
	for _, g := range []Geo{{41.08, -81.52}, {52.08, 4.27}, {22.54, 88.34}, {-33.87, 151.21}} {
		back := ToGeo(ToGrid(g, r), r)
		if math.Abs(back.Lat-g.Lat) > cellLat || math.Abs(back.Lon-g.Lon) > cellLon {
			t.Fatalf("ToGeo(ToGrid(%v))=%v drifted more than one cell", g, back)
		}
	}
}

func TestResolutionValidate(t *testing.T) {
	for _, r := range []Resolution{0, -1, MaxResolution + 1} {
		if err := r.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("Validate(%d)=%v want ErrInvalidConfig", r, err)
		}
	}
	if err := DefaultResolution.Validate(); err != nil {
		t.Fatalf("Validate(default)=%v", err)
	}
}

func TestResolutionDistanceWraps(t *testing.T) {
	r := DefaultResolution
	tests := []struct{ a, b, want int }{
		{a: 0, b: 1023, want: 1},
		{a: 1023, b: 0, want: 1},
		{a: 10, b: 14, want: 4},
		{a: 0, b: 512, want: 512},
	}
	for _, tt := range tests {
		if got := r.Distance(tt.a, tt.b); got != tt.want {
			t.Fatalf("Distance(%d,%d)=%d want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestGeoString(t *testing.T) {
	if got := (Geo{Lat: 41.0798, Lon: -81.5219}).String(); got != "41.08N, 81.52W" {
		t.Fatalf("String=%q", got)
	}
}
