// Package gpio provides edge-triggered GPIO input with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "time"

// Level is the physical level reported with an edge event.
type Level int

const (
	Low  Level = 0
	High Level = 1

	// Timeout marks a "no edge seen" notification from a watchdog.
	// Consumers must ignore it rather than treat it as a transition.
	Timeout Level = 2
)

func (l Level) String() string {
	switch l {
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	case Timeout:
		return "TIMEOUT"
	}
	return "INVALID"
}

// Event is a single edge delivered by a Source.
type Event struct {
	Pin   int
	Level Level
	// Timestamp is the kernel event time, monotonic since an arbitrary origin.
	Timestamp time.Duration
}

// Handler receives edge events. It may be called from several goroutines
// at once, one per watched pin.
type Handler func(Event)

// Source configures input pins and delivers their edges.
type Source interface {
	// ConfigureInput marks pin as an input with optional pull-up and
	// a kernel debounce period. It must be called before Watch.
	ConfigureInput(pin int, pullUp bool, glitchFilter time.Duration) error

	// Watch registers handler for both edges on a configured pin.
	Watch(pin int, handler Handler) error

	// Value reads the current level of a watched pin.
	Value(pin int) (Level, error)

	// Close releases all pins.
	Close() error
}

// Pin defaults (BCM numbering)
const (
	DefaultPinA = 23 // encoder phase A
	DefaultPinB = 24 // encoder phase B
	DefaultPinC = 22 // push switch (mute)

	DefaultChip         = "gpiochip0"
	DefaultGlitchFilter = time.Millisecond
)
