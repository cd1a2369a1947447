package gpio

import (
	"fmt"
	"sync"
	"time"
)

// InputConfig records how a pin was configured on a FakeSource.
type InputConfig struct {
	PullUp       bool
	GlitchFilter time.Duration
}

// FakeSource is a test double that delivers scripted edges to watched pins.
type FakeSource struct {
	mu sync.Mutex

	// Inputs records ConfigureInput calls by pin.
	Inputs map[int]InputConfig

	// Levels holds the value returned by Value per pin. Emit updates it.
	Levels map[int]Level

	// ConfigureError, if set, is returned by ConfigureInput.
	ConfigureError error

	// WatchError, if set, is returned by Watch.
	WatchError error

	// Closed tracks if Close was called.
	Closed bool

	handlers map[int]Handler
	clock    time.Duration
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		Inputs:   make(map[int]InputConfig),
		Levels:   make(map[int]Level),
		handlers: make(map[int]Handler),
	}
}

// ConfigureInput records the configuration.
func (f *FakeSource) ConfigureInput(pin int, pullUp bool, glitchFilter time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.Inputs[pin] = InputConfig{PullUp: pullUp, GlitchFilter: glitchFilter}
	return nil
}

// Watch registers handler for pin.
func (f *FakeSource) Watch(pin int, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchError != nil {
		return f.WatchError
	}
	if _, ok := f.Inputs[pin]; !ok {
		return fmt.Errorf("pin %d not configured as input", pin)
	}
	f.handlers[pin] = handler
	return nil
}

// Value returns the last level set for pin (Low if never set).
func (f *FakeSource) Value(pin int) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.handlers[pin]; !ok {
		return Low, fmt.Errorf("pin %d not watched", pin)
	}
	return f.Levels[pin], nil
}

// Watched reports whether a handler is registered for pin.
func (f *FakeSource) Watched(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[pin]
	return ok
}

// Emit delivers one edge to the handler of pin, synchronously.
// Returns false if the pin is not watched.
func (f *FakeSource) Emit(pin int, level Level) bool {
	f.mu.Lock()
	h, ok := f.handlers[pin]
	if level != Timeout {
		f.Levels[pin] = level
	}
	f.clock += time.Millisecond
	ts := f.clock
	f.mu.Unlock()

	if !ok {
		return false
	}
	h(Event{Pin: pin, Level: level, Timestamp: ts})
	return true
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
