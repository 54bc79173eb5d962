package tuner

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/globe-radio/internal/catalog"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/index"
	"github.com/shaunagostinho/globe-radio/internal/latch"
	"github.com/shaunagostinho/globe-radio/internal/metrics"
	"github.com/shaunagostinho/globe-radio/internal/player"
)

// State is the tuner's mode.
type State int

const (
	// Starting waits out the startup delay so the network can come up
	// before the first stream is requested.
	Starting State = iota
	// Tuning searches around the pointer on every reading.
	Tuning
	// Playing holds the latched city until the globe is turned away.
	Playing
)

var stateNames = []string{"starting", "tuning", "playing"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config holds the tuning parameters.
type Config struct {
	Fuzziness    int
	Stickiness   int
	StartupDelay time.Duration
}

// Snapshot is an immutable view of the tuner, published after every
// change. Readers must not modify it.
type Snapshot struct {
	State      string            `json:"state"`
	Reading    Reading           `json:"reading"`
	Position   grid.Coord        `json:"position"` // reading after the latch
	Latched    bool              `json:"latched"`
	Geo        grid.Geo          `json:"geo"`
	Location   string            `json:"location"`
	City       string            `json:"city"`
	Cities     []string          `json:"cities"`
	Stations   []catalog.Station `json:"stations"`
	Station    int               `json:"station"` // index into Stations while playing
	Fuzziness  int               `json:"fuzziness"`
	Stickiness int               `json:"stickiness"`
	Updated    time.Time         `json:"updated"`
}

// Current returns the selected station, if any.
func (s *Snapshot) Current() (catalog.Station, bool) {
	if s.State != Playing.String() || s.Station >= len(s.Stations) {
		return catalog.Station{}, false
	}
	return s.Stations[s.Station], true
}

// Tuner owns the latch and the tuning state machine. Step, jog handling
// and the state itself belong to the Run goroutine; Snapshot, Jog and the
// setters are safe from any goroutine.
type Tuner struct {
	idx    *index.Index
	cat    *catalog.Catalog
	player player.Player
	latch  *latch.Latch
	delay  time.Duration

	state   State
	result  index.Result
	station int
	reading Reading
	pos     grid.Coord

	fuzziness  atomic.Int64
	stickiness atomic.Int64
	jogs       chan int
	snap       atomic.Pointer[Snapshot]
}

// New validates cfg and returns a tuner in the Starting state, or Tuning
// when there is no startup delay.
func New(idx *index.Index, cat *catalog.Catalog, p player.Player, cfg Config) (*Tuner, error) {
	l, err := latch.New(idx.Resolution())
	if err != nil {
		return nil, err
	}
	t := &Tuner{
		idx:    idx,
		cat:    cat,
		player: p,
		latch:  l,
		delay:  cfg.StartupDelay,
		jogs:   make(chan int, 8),
	}
	if err := t.SetFuzziness(cfg.Fuzziness); err != nil {
		return nil, err
	}
	if err := t.SetStickiness(cfg.Stickiness); err != nil {
		return nil, err
	}
	t.state = Tuning
	if cfg.StartupDelay > 0 {
		t.state = Starting
	}
	t.result = index.Result{Cities: []string{}, Stations: []catalog.Station{}}
	metrics.SetTunerState(t.state.String(), stateNames...)
	t.publish()
	return t, nil
}

// SetFuzziness changes the search radius from the next reading on.
func (t *Tuner) SetFuzziness(n int) error {
	if n < 1 {
		return fmt.Errorf("tuner: %w: fuzziness %d must be at least 1", grid.ErrInvalidConfig, n)
	}
	t.fuzziness.Store(int64(n))
	return nil
}

// SetStickiness changes the latch release distance, including for a latch
// already held.
func (t *Tuner) SetStickiness(n int) error {
	if n < 1 {
		return fmt.Errorf("tuner: %w: stickiness %d must be at least 1", grid.ErrInvalidConfig, n)
	}
	t.stickiness.Store(int64(n))
	return nil
}

// Snapshot returns the latest published state.
func (t *Tuner) Snapshot() *Snapshot { return t.snap.Load() }

// Jog asks for the next (delta > 0) or previous station. Dropped when the
// queue is full.
func (t *Tuner) Jog(delta int) {
	select {
	case t.jogs <- delta:
	default:
	}
}

// Run consumes readings until ctx is cancelled, then stops playback.
func (t *Tuner) Run(ctx context.Context, readings <-chan Reading) {
	var startup <-chan time.Time
	if t.state == Starting {
		timer := time.NewTimer(t.delay)
		defer timer.Stop()
		startup = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			if t.state == Playing {
				t.stop()
			}
			return
		case <-startup:
			startup = nil
			t.enter(Tuning)
			t.publish()
		case r := <-readings:
			t.Step(r)
		case d := <-t.jogs:
			t.handleJog(d)
		}
	}
}

// Step advances the state machine with one reading.
func (t *Tuner) Step(r Reading) {
	if t.latch.IsLatched() {
		// Cannot fail: the setter only stores positive values.
		_ = t.latch.SetStickiness(int(t.stickiness.Load()))
	}
	t.reading = r
	t.pos = t.latch.Update(r.Coord)

	switch t.state {
	case Tuning:
		t.tune()
	case Playing:
		if !t.latch.IsLatched() {
			metrics.LatchTransitions.WithLabelValues("released").Inc()
			log.Printf("[tuner] released %s at %+v", t.result.City, r.Coord)
			t.stop()
			t.enter(Tuning)
			t.tune()
		}
	}
	t.publish()
}

func (t *Tuner) tune() {
	cells, err := grid.Search(t.pos, int(t.fuzziness.Load()), t.idx.Resolution())
	if err != nil {
		log.Printf("[tuner] search: %v", err)
		return
	}
	t.result = index.Resolve(cells, t.idx, t.cat)
	metrics.StationsFound.Observe(float64(len(t.result.Stations)))
	if !t.result.Found() {
		return
	}

	if err := t.latch.Latch(t.pos, int(t.stickiness.Load())); err != nil {
		log.Printf("[tuner] latch: %v", err)
		return
	}
	metrics.LatchTransitions.WithLabelValues("latched").Inc()
	log.Printf("[tuner] latched %s at %+v: %d stations", t.result.City, t.pos, len(t.result.Stations))

	t.enter(Playing)
	t.station = 0
	t.play()
}

func (t *Tuner) handleJog(delta int) {
	n := len(t.result.Stations)
	if t.state != Playing || n == 0 {
		return
	}
	t.station = ((t.station+delta)%n + n) % n
	t.play()
	t.publish()
}

func (t *Tuner) play() {
	if t.station >= len(t.result.Stations) {
		return
	}
	if err := t.player.Play(t.result.City, t.result.Stations[t.station]); err != nil {
		metrics.PlayerErrors.Inc()
		log.Printf("[tuner] play: %v", err)
	}
}

func (t *Tuner) stop() {
	if err := t.player.Stop(); err != nil {
		metrics.PlayerErrors.Inc()
		log.Printf("[tuner] stop: %v", err)
	}
}

func (t *Tuner) enter(s State) {
	if t.state == s {
		return
	}
	log.Printf("[tuner] %s -> %s", t.state, s)
	t.state = s
	metrics.SetTunerState(s.String(), stateNames...)
}

func (t *Tuner) publish() {
	anchor, latched := t.latch.Anchor()
	pos := t.pos
	if latched {
		pos = anchor
	}
	t.snap.Store(&Snapshot{
		State:      t.state.String(),
		Reading:    t.reading,
		Position:   pos,
		Latched:    latched,
		Geo:        t.result.Geo,
		Location:   t.result.Geo.String(),
		City:       t.result.City,
		Cities:     t.result.Cities,
		Stations:   t.result.Stations,
		Station:    t.station,
		Fuzziness:  int(t.fuzziness.Load()),
		Stickiness: int(t.stickiness.Load()),
		Updated:    time.Now(),
	})
}
