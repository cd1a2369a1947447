//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

type inputConfig struct {
	pullUp       bool
	glitchFilter time.Duration
}

// RealSource watches pins on a Linux GPIO character device.
type RealSource struct {
	chip *gpiocdev.Chip

	mu     sync.Mutex
	inputs map[int]inputConfig
	lines  map[int]*gpiocdev.Line
}

// NewRealSource opens the named chip, e.g. "gpiochip0".
func NewRealSource(chipName string) (*RealSource, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("rotary-volume"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealSource{
		chip:   chip,
		inputs: make(map[int]inputConfig),
		lines:  make(map[int]*gpiocdev.Line),
	}, nil
}

// ConfigureInput records the input configuration for pin. The line itself is
// requested by Watch, because the character device applies bias, debounce and
// edge detection in a single request.
func (s *RealSource) ConfigureInput(pin int, pullUp bool, glitchFilter time.Duration) error {
	if pin < 0 || pin >= s.chip.Lines() {
		return fmt.Errorf("pin %d out of range (chip has %d lines)", pin, s.chip.Lines())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lines[pin]; ok {
		return fmt.Errorf("pin %d already watched", pin)
	}
	s.inputs[pin] = inputConfig{pullUp: pullUp, glitchFilter: glitchFilter}
	return nil
}

// Watch requests pin with both-edge detection and forwards every edge to handler.
func (s *RealSource) Watch(pin int, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, ok := s.inputs[pin]
	if !ok {
		return fmt.Errorf("pin %d not configured as input", pin)
	}
	if _, ok := s.lines[pin]; ok {
		return fmt.Errorf("pin %d already watched", pin)
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(Event{
				Pin:       evt.Offset,
				Level:     levelForEdge(evt.Type),
				Timestamp: evt.Timestamp,
			})
		}),
	}
	if cfg.pullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	}
	if cfg.glitchFilter > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.glitchFilter))
	}

	line, err := s.chip.RequestLine(pin, opts...)
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	s.lines[pin] = line
	return nil
}

// Value reads the current level of a watched pin.
func (s *RealSource) Value(pin int) (Level, error) {
	s.mu.Lock()
	line, ok := s.lines[pin]
	s.mu.Unlock()
	if !ok {
		return Low, fmt.Errorf("pin %d not watched", pin)
	}
	v, err := line.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v == 0 {
		return Low, nil
	}
	return High, nil
}

// Close releases all watched lines and the chip.
// Lines are reconfigured to plain pulled-up inputs first so edge detection
// stops before the request is dropped.
func (s *RealSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for pin, line := range s.lines {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(s.lines, pin)
	}
	if s.chip != nil {
		if err := s.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		s.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func levelForEdge(t gpiocdev.LineEventType) Level {
	if t == gpiocdev.LineEventRisingEdge {
		return High
	}
	return Low
}
