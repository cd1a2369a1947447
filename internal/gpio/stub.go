//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealSource is not available on non-Linux platforms.
type RealSource struct{}

// NewRealSource returns an error on non-Linux platforms.
func NewRealSource(chipName string) (*RealSource, error) {
	return nil, errUnsupported
}

// ConfigureInput is not implemented on non-Linux platforms.
func (s *RealSource) ConfigureInput(pin int, pullUp bool, glitchFilter time.Duration) error {
	return errUnsupported
}

// Watch is not implemented on non-Linux platforms.
func (s *RealSource) Watch(pin int, handler Handler) error {
	return errUnsupported
}

// Value is not implemented on non-Linux platforms.
func (s *RealSource) Value(pin int) (Level, error) {
	return Low, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (s *RealSource) Close() error {
	return nil
}
