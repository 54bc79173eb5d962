package encoder

import (
	"math/rand"
	"sync"
)

// DemoProvider simulates somebody spinning the globe: it drifts towards a
// target, rests there with sensor jitter, then moves on. Every so often it
// emits a frame with a broken parity bit, like the real encoders do.
type DemoProvider struct {
	mu      sync.Mutex
	running bool
	rng     *rand.Rand

	lat, lon int      // current raw positions
	targets  [][2]int // raw (lat, lon) rest points
	next     int
	dwell    int // reads left at the current target
	reads    int
}

const (
	demoStep        = 6  // positions per read while moving
	demoDwellReads  = 40 // ~8 s at 200 ms
	demoGlitchEvery = 37
)

// NewDemoProvider creates a demo provider visiting targets (raw encoder
// positions, latitude first) in turn. With no targets it wanders randomly.
func NewDemoProvider(targets [][2]uint16) *DemoProvider {
	d := &DemoProvider{rng: rand.New(rand.NewSource(1))}
	for _, t := range targets {
		d.targets = append(d.targets, [2]int{int(t[0]), int(t[1])})
	}
	if len(d.targets) == 0 {
		for i := 0; i < 8; i++ {
			d.targets = append(d.targets, [2]int{d.rng.Intn(Resolution), d.rng.Intn(Resolution)})
		}
	}
	d.lat, d.lon = Resolution/2, Resolution/2
	return d
}

func (d *DemoProvider) Name() string { return "Demo (Simulated)" }

func (d *DemoProvider) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	return nil
}

func (d *DemoProvider) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

func (d *DemoProvider) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

func (d *DemoProvider) ReadFrames() (Frame, Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reads++
	target := d.targets[d.next]

	if d.lat == target[0] && d.lon == target[1] {
		if d.dwell == 0 {
			d.dwell = demoDwellReads
		}
		d.dwell--
		if d.dwell == 0 {
			d.next = (d.next + 1) % len(d.targets)
		}
	} else {
		d.lat = stepTowards(d.lat, target[0])
		d.lon = stepTowards(d.lon, target[1])
	}

	// One position of jitter either way, like a resting encoder.
	lat := EncodeFrame(uint16(wrapRaw(d.lat + d.rng.Intn(3) - 1)))
	lon := EncodeFrame(uint16(wrapRaw(d.lon + d.rng.Intn(3) - 1)))

	if d.reads%demoGlitchEvery == 0 {
		lat ^= 1
	}
	return lat, lon, nil
}

// stepTowards moves from towards to along the shorter way round the dial.
func stepTowards(from, to int) int {
	diff := wrapRaw(to - from)
	switch {
	case diff == 0:
		return from
	case diff <= Resolution/2:
		if diff < demoStep {
			return to
		}
		return wrapRaw(from + demoStep)
	default:
		if Resolution-diff < demoStep {
			return to
		}
		return wrapRaw(from - demoStep)
	}
}

func wrapRaw(v int) int {
	v %= Resolution
	if v < 0 {
		v += Resolution
	}
	return v
}
