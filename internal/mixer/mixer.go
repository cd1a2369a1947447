// Package mixer applies volume commands to a named playback control.
//
// A Mixer hands out short-lived Control handles; every command opens one,
// queries and sets the volume, then closes it again. Nothing is held open
// between commands, so volume changes made by other software in the
// meantime are picked up on the next command.
package mixer

import (
	"errors"
	"fmt"
)

// Control is an open handle on one playback control.
type Control interface {
	// VolumeRange returns the raw volume limits of the control.
	VolumeRange() (min, max int64, err error)

	// Volume returns the current raw volume.
	Volume() (int64, error)

	// SetVolume sets the raw volume on all channels.
	SetVolume(raw int64) error

	// Close releases the handle.
	Close() error
}

// Mixer opens controls by name, e.g. "Digital" or "Headphone".
type Mixer interface {
	Open(control string) (Control, error)
}

// ErrControlNotFound is returned by Open when the backend has no such control.
var ErrControlNotFound = errors.New("mixer control not found")

// Kind discriminates the two command forms.
type Kind int

const (
	KindRelative Kind = iota
	KindAbsolute
)

// Command is either a signed percentage delta or an absolute percentage.
type Command struct {
	Kind    Kind
	Percent int
}

// Relative returns a command that moves the volume by percent of max.
func Relative(percent int) Command {
	return Command{Kind: KindRelative, Percent: percent}
}

// Absolute returns a command that sets the volume to percent of max.
func Absolute(percent int) Command {
	return Command{Kind: KindAbsolute, Percent: percent}
}

func (c Command) String() string {
	if c.Kind == KindAbsolute {
		return fmt.Sprintf("=%d%%", c.Percent)
	}
	return fmt.Sprintf("%+d%%", c.Percent)
}

// Compute returns the raw volume that cmd yields from current, clamped to
// [min, max]. Percentages are of max, matching how ALSA reports percent for
// zero-based controls.
func Compute(current, min, max int64, cmd Command) int64 {
	var v int64
	switch cmd.Kind {
	case KindAbsolute:
		v = int64(cmd.Percent) * max / 100
	default:
		d := int64(cmd.Percent)
		switch {
		case d > 0:
			v = current + d*max/100
		case d < 0:
			v = current - (-d)*max/100
		default:
			v = current
		}
	}
	return clamp(v, min, max)
}

// Percent converts a raw volume to a percentage of max.
func Percent(raw, max int64) int {
	if max <= 0 {
		return 0
	}
	return int(raw * 100 / max)
}

func clamp(v, min, max int64) int64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
