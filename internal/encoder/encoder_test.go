package encoder

import (
	"errors"
	"testing"

	"github.com/shaunagostinho/globe-radio/internal/grid"
)

func TestReadAxisParity(t *testing.T) {
	tests := []struct {
		name    string
		frame   Frame
		want    uint16
		wantErr bool
	}{
		{name: "position_1", frame: 0x0041, want: 1},
		{name: "position_1_flipped", frame: 0x0040, wantErr: true},
		{name: "low_bits_discarded", frame: 0x0047, want: 1},
		{name: "low_bits_bad_parity", frame: 0x0046, wantErr: true},
		{name: "zero", frame: 0x0000, want: 0},
		{name: "max", frame: EncodeFrame(1023), want: 1023},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadAxis(tt.frame)
			if tt.wantErr {
				if !errors.Is(err, ErrParity) {
					t.Fatalf("err=%v want ErrParity", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("position=%d want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeFrameRoundTripsEveryPosition(t *testing.T) {
	for p := uint16(0); p < Resolution; p++ {
		f := EncodeFrame(p)
		got, err := ReadAxis(f)
		if err != nil || got != p {
			t.Fatalf("position %d: got %d err %v", p, got, err)
		}
		if _, err := ReadAxis(f ^ 1); !errors.Is(err, ErrParity) {
			t.Fatalf("position %d: flipped parity accepted", p)
		}
	}
}

func TestOrientInvertsLatitude(t *testing.T) {
	c, err := NewConditioner(grid.DefaultResolution)
	if err != nil {
		t.Fatalf("conditioner: %v", err)
	}
	tests := []struct {
		lat, lon uint16
		want     grid.Coord
	}{
		{lat: 0, lon: 0, want: grid.Coord{X: 0, Y: 0}},
		{lat: 1, lon: 1, want: grid.Coord{X: 1023, Y: 1}},
		{lat: 512, lon: 700, want: grid.Coord{X: 512, Y: 700}},
		{lat: 1023, lon: 1023, want: grid.Coord{X: 1, Y: 1023}},
	}
	for _, tt := range tests {
		if got := c.Orient(tt.lat, tt.lon); got != tt.want {
			t.Fatalf("Orient(%d,%d)=%+v want %+v", tt.lat, tt.lon, got, tt.want)
		}
		back, lon := c.Raw(tt.want)
		if back != tt.lat || lon != tt.lon {
			t.Fatalf("Raw(%+v)=(%d,%d) want (%d,%d)", tt.want, back, lon, tt.lat, tt.lon)
		}
	}
}

func TestConditionAppliesOffsetsModR(t *testing.T) {
	c, _ := NewConditioner(grid.DefaultResolution)
	got := c.Condition(1000, 1000, Offsets{Lat: -30, Lon: 30})
	// lat: 1024-1000=24, 24-30 wraps to 1018; lon: 1030 wraps to 6.
	if want := (grid.Coord{X: 1018, Y: 6}); got != want {
		t.Fatalf("Condition=%+v want %+v", got, want)
	}
}

func TestZeroCentresCurrentReading(t *testing.T) {
	for _, res := range []grid.Resolution{grid.DefaultResolution, 360, 4096} {
		c, err := NewConditioner(res)
		if err != nil {
			t.Fatalf("conditioner: %v", err)
		}
		for _, raw := range [][2]uint16{{100, 900}, {0, 0}, {1023, 512}, {600, 3}} {
			off := c.Zero(c.Orient(raw[0], raw[1]))
			got := c.Condition(raw[0], raw[1], off)
			want := grid.Coord{X: int(res) / 2, Y: int(res) / 2}
			if got != want {
				t.Fatalf("R=%d raw=%v: after zero got %+v want %+v", res, raw, got, want)
			}
		}
	}
}

func TestNewConditionerRejectsBadResolution(t *testing.T) {
	if _, err := NewConditioner(0); !errors.Is(err, grid.ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
}

func TestDecodeBridge(t *testing.T) {
	lat, lon := EncodeFrame(300), EncodeFrame(42)
	resp := []byte{'p', byte(lat >> 8), byte(lat), byte(lon >> 8), byte(lon)}
	gotLat, gotLon, err := decodeBridge(resp)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotLat != lat || gotLon != lon {
		t.Fatalf("frames=(%04X,%04X) want (%04X,%04X)", gotLat, gotLon, lat, lon)
	}

	resp[0] = 'x'
	if _, _, err := decodeBridge(resp); err == nil {
		t.Fatalf("bad echo accepted")
	}
	if _, _, err := decodeBridge(resp[:3]); err == nil {
		t.Fatalf("short response accepted")
	}
}

func TestDemoProviderReachesTargetAndGlitches(t *testing.T) {
	d := NewDemoProvider([][2]uint16{{300, 700}})
	if err := d.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !d.IsConnected() {
		t.Fatalf("not connected after Connect")
	}

	glitches, near := 0, 0
	for i := 0; i < 200; i++ {
		lat, lon, err := d.ReadFrames()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		la, errLat := ReadAxis(lat)
		lo, errLon := ReadAxis(lon)
		if errLat != nil || errLon != nil {
			glitches++
			continue
		}
		if absDiff(int(la), 300) <= 1 && absDiff(int(lo), 700) <= 1 {
			near++
		}
	}
	if glitches == 0 {
		t.Fatalf("expected occasional parity glitches")
	}
	if near == 0 {
		t.Fatalf("demo never reached its target")
	}
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
