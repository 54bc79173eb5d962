// Package tuner runs the globe's control loop: a sampler goroutine polls
// the encoders and a tuner goroutine turns readings into stations.
package tuner

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaunagostinho/globe-radio/internal/encoder"
	"github.com/shaunagostinho/globe-radio/internal/grid"
	"github.com/shaunagostinho/globe-radio/internal/metrics"
)

// Reading is one conditioned encoder sample.
type Reading struct {
	RawLat   uint16     `json:"rawLat"`
	RawLon   uint16     `json:"rawLon"`
	Oriented grid.Coord `json:"oriented"` // before calibration
	Coord    grid.Coord `json:"coord"`
	At       time.Time  `json:"at"`
}

// SamplerConfig controls polling.
type SamplerConfig struct {
	Poll        time.Duration
	ReadTimeout time.Duration
	// ReconnectAfter consecutive read errors triggers a reconnect. Zero
	// disables it.
	ReconnectAfter int
}

// ErrNoReading is returned by Zero before the first good reading.
var ErrNoReading = errors.New("tuner: no encoder reading yet")

// Sampler polls a Provider and hands the latest reading to a single
// consumer. Stale readings are overwritten, never queued.
type Sampler struct {
	prov encoder.Provider
	cond *encoder.Conditioner
	cfg  SamplerConfig

	mu       sync.Mutex
	offsets  encoder.Offsets
	last     grid.Coord // oriented
	haveLast bool

	out      chan Reading
	inflight atomic.Bool
	failures int
}

type readResult struct {
	lat, lon encoder.Frame
	err      error
}

// NewSampler creates a sampler starting from the given calibration.
func NewSampler(prov encoder.Provider, cond *encoder.Conditioner, off encoder.Offsets, cfg SamplerConfig) *Sampler {
	if cfg.Poll <= 0 {
		cfg.Poll = 200 * time.Millisecond
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = cfg.Poll
	}
	return &Sampler{
		prov:    prov,
		cond:    cond,
		cfg:     cfg,
		offsets: off,
		out:     make(chan Reading, 1),
	}
}

// Readings is the handoff channel. It holds at most the newest reading.
func (s *Sampler) Readings() <-chan Reading { return s.out }

// Offsets returns the calibration in use.
func (s *Sampler) Offsets() encoder.Offsets {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets
}

// Zero recalibrates so the latest reading sits at the grid centre and
// returns the new offsets for persisting.
func (s *Sampler) Zero() (encoder.Offsets, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.haveLast {
		return encoder.Offsets{}, ErrNoReading
	}
	s.offsets = s.cond.Zero(s.last)
	log.Printf("[sampler] zeroed at %+v: offsets lat=%d lon=%d", s.last, s.offsets.Lat, s.offsets.Lon)
	return s.offsets, nil
}

// Run polls until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Poll)
	defer ticker.Stop()

	log.Printf("[sampler] polling %s every %s (timeout %s)", s.prov.Name(), s.cfg.Poll, s.cfg.ReadTimeout)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

// poll performs one bounded read. A read still stuck from an earlier tick
// makes this tick a no-op.
func (s *Sampler) poll(ctx context.Context) {
	if !s.inflight.CompareAndSwap(false, true) {
		metrics.EncoderReads.WithLabelValues("busy").Inc()
		return
	}

	done := make(chan readResult, 1)
	start := time.Now()
	go func() {
		lat, lon, err := s.prov.ReadFrames()
		s.inflight.Store(false)
		done <- readResult{lat: lat, lon: lon, err: err}
	}()

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
		metrics.EncoderReads.WithLabelValues("timeout").Inc()
		log.Printf("[sampler] read timed out after %s", s.cfg.ReadTimeout)
	case r := <-done:
		metrics.EncoderReadDuration.Observe(time.Since(start).Seconds())
		s.handle(r, start)
	}
}

func (s *Sampler) handle(r readResult, at time.Time) {
	if r.err != nil {
		metrics.EncoderReads.WithLabelValues("error").Inc()
		s.failures++
		if s.failures == 1 {
			log.Printf("[sampler] read error: %v", r.err)
		}
		if s.cfg.ReconnectAfter > 0 && s.failures%s.cfg.ReconnectAfter == 0 {
			s.reconnect()
		}
		return
	}
	if s.failures > 0 {
		log.Printf("[sampler] reads recovered after %d failures", s.failures)
		s.failures = 0
	}

	lat, err := encoder.ReadAxis(r.lat)
	if err != nil {
		metrics.EncoderReads.WithLabelValues("parity").Inc()
		return
	}
	lon, err := encoder.ReadAxis(r.lon)
	if err != nil {
		metrics.EncoderReads.WithLabelValues("parity").Inc()
		return
	}
	metrics.EncoderReads.WithLabelValues("ok").Inc()

	oriented := s.cond.Orient(lat, lon)
	s.mu.Lock()
	s.last, s.haveLast = oriented, true
	coord := s.cond.Apply(oriented, s.offsets)
	s.mu.Unlock()

	s.publish(Reading{RawLat: lat, RawLon: lon, Oriented: oriented, Coord: coord, At: at})
}

func (s *Sampler) reconnect() {
	log.Printf("[sampler] %d consecutive failures, reconnecting %s", s.failures, s.prov.Name())
	s.prov.Close()
	metrics.EncoderConnected.Set(0)
	if err := s.prov.Connect(); err != nil {
		log.Printf("[sampler] reconnect failed: %v", err)
		return
	}
	metrics.EncoderConnected.Set(1)
}

// publish replaces whatever the consumer has not picked up yet. The
// sampler is the only writer, so the loop settles on the second pass.
func (s *Sampler) publish(r Reading) {
	for {
		select {
		case s.out <- r:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}
