// Package latch holds the tuner on a found station while the globe jitters
// around it, and lets go once the pointer has clearly moved away.
package latch

import (
	"fmt"

	"github.com/shaunagostinho/globe-radio/internal/grid"
)

// Latch is a two-state hysteresis filter over grid coordinates. It is not
// safe for concurrent use; the tuner goroutine owns it.
type Latch struct {
	res        grid.Resolution
	latched    bool
	anchor     grid.Coord
	stickiness int
}

// New returns an unlatched Latch for an R×R torus.
func New(res grid.Resolution) (*Latch, error) {
	if err := res.Validate(); err != nil {
		return nil, fmt.Errorf("latch: %w", err)
	}
	return &Latch{res: res}, nil
}

// Latch anchors at pos. Calling it while already latched moves the anchor.
func (l *Latch) Latch(pos grid.Coord, stickiness int) error {
	if stickiness <= 0 {
		return fmt.Errorf("latch: %w: stickiness %d must be positive", grid.ErrInvalidConfig, stickiness)
	}
	l.anchor = grid.Coord{X: l.res.Wrap(pos.X), Y: l.res.Wrap(pos.Y)}
	l.stickiness = stickiness
	l.latched = true
	return nil
}

// Update feeds a live reading. While latched it returns the anchor, unless
// the reading has strayed more than stickiness cells from it on either axis,
// in which case the latch releases and the reading is returned.
func (l *Latch) Update(reading grid.Coord) grid.Coord {
	if !l.latched {
		return reading
	}
	if l.res.Distance(reading.X, l.anchor.X) > l.stickiness ||
		l.res.Distance(reading.Y, l.anchor.Y) > l.stickiness {
		l.latched = false
		return reading
	}
	return l.anchor
}

// SetStickiness changes the release threshold of the current latch.
func (l *Latch) SetStickiness(stickiness int) error {
	if stickiness <= 0 {
		return fmt.Errorf("latch: %w: stickiness %d must be positive", grid.ErrInvalidConfig, stickiness)
	}
	l.stickiness = stickiness
	return nil
}

func (l *Latch) IsLatched() bool { return l.latched }

// Anchor returns the latched position; ok is false when unlatched.
func (l *Latch) Anchor() (grid.Coord, bool) {
	return l.anchor, l.latched
}
