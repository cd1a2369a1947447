package logic

import "github.com/sweeney/rotary-volume/internal/gpio"

// Line identifies one of the two quadrature lines.
type Line int

const (
	LineA Line = iota
	LineB
)

// DefaultRotationThreshold is the sub-step count a detent must exceed. A
// detent fires on the fifth accepted sub-step after the previous one.
const DefaultRotationThreshold = 4

// transitions maps (previous<<2 | next) to a signed sub-step. States are
// A<<1 | B. Clockwise runs 00 -> 10 -> 11 -> 01 -> 00. Unchanged states and
// double jumps (both lines flipped) map to 0.
var transitions = [16]int8{
	0, -1, 1, 0,
	1, 0, 0, -1,
	-1, 0, 0, 1,
	0, 1, -1, 0,
}

// Transition returns the signed sub-step for moving from prev to next.
func Transition(prev, next uint8) int {
	return int(transitions[(prev&3)<<2|next&3])
}

// Decoder turns single-line edges into detent steps.
// Not safe for concurrent use; Controller provides the lock.
type Decoder struct {
	threshold int

	levelA uint8
	levelB uint8
	prior  uint8
	steps  int
}

// NewDecoder creates a decoder that emits a detent once the accepted sub-steps
// exceed rotationThreshold. Values below 1 select DefaultRotationThreshold.
func NewDecoder(rotationThreshold int) *Decoder {
	if rotationThreshold < 1 {
		rotationThreshold = DefaultRotationThreshold
	}
	return &Decoder{threshold: rotationThreshold}
}

// Seed sets both line levels and the prior state, e.g. from the lines'
// values at startup, and clears the step counter.
func (d *Decoder) Seed(a, b gpio.Level) {
	d.levelA = bit(a)
	d.levelB = bit(b)
	d.prior = d.levelA<<1 | d.levelB
	d.steps = 0
}

// Edge records a level on line and returns the sub-step it produced
// (0 for a rejected transition). detent is true when the sub-step completed
// a detent; step then carries the direction of the click.
// Timeout notifications are ignored entirely.
func (d *Decoder) Edge(line Line, level gpio.Level) (step int, detent bool) {
	if level == gpio.Timeout {
		return 0, false
	}

	switch line {
	case LineA:
		d.levelA = bit(level)
	case LineB:
		d.levelB = bit(level)
	}

	next := d.levelA<<1 | d.levelB
	step = Transition(d.prior, next)
	if step == 0 {
		return 0, false
	}

	d.prior = next
	d.steps++
	if d.steps <= d.threshold {
		return step, false
	}
	d.steps = 0
	return step, true
}

// State returns the prior combined state and the pending sub-step count.
func (d *Decoder) State() (prior uint8, steps int) {
	return d.prior, d.steps
}

// Levels returns the last level seen on each line.
func (d *Decoder) Levels() (a, b uint8) {
	return d.levelA, d.levelB
}

func bit(l gpio.Level) uint8 {
	if l == gpio.Low {
		return 0
	}
	return 1
}
