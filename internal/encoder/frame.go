// Package encoder reads the two absolute rotary encoders on the globe's
// axes and conditions their raw frames into grid coordinates.
package encoder

import (
	"errors"
	"fmt"
	"math/bits"
)

// PositionBits is the encoder resolution; positions occupy the top bits of
// each frame.
const PositionBits = 10

// Resolution is the number of positions one encoder reports per turn.
const Resolution = 1 << PositionBits

// positionShift drops the low bits below the sensor's resolution floor,
// including the parity bit.
const positionShift = 16 - PositionBits

// ErrParity marks a frame whose parity bit disagrees with its payload. It is
// a transient read glitch: drop the frame and wait for the next poll.
var ErrParity = errors.New("encoder: parity mismatch")

// Frame is a raw 16-bit sensor word, most significant bit first as it comes
// off the wire. It is kept distinct from conditioned coordinates on purpose.
type Frame uint16

// Parity returns the XOR of bits 1..15, the value bit 0 must carry.
func (f Frame) Parity() uint16 {
	return uint16(bits.OnesCount16(uint16(f)>>1) & 1)
}

// Valid reports whether the parity bit matches.
func (f Frame) Valid() bool {
	return uint16(f)&1 == f.Parity()
}

// ReadAxis validates f and extracts its 10-bit position.
func ReadAxis(f Frame) (uint16, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("%w: frame 0x%04X", ErrParity, uint16(f))
	}
	return uint16(f) >> positionShift, nil
}

// EncodeFrame builds a frame for position with a correct parity bit. Used
// by the demo provider and the serial bridge tests.
func EncodeFrame(position uint16) Frame {
	f := Frame((position & (Resolution - 1)) << positionShift)
	return f | Frame(f.Parity())
}
