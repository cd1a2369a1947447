package mixer

import "fmt"

// Result describes the control after a command or read.
type Result struct {
	Control string
	Raw     int64
	Min     int64
	Max     int64
	Percent int
}

// Sink applies commands to a single named control, opening and closing the
// control around every call.
type Sink struct {
	mixer   Mixer
	control string
}

// NewSink creates a Sink for the named control.
func NewSink(m Mixer, control string) *Sink {
	return &Sink{mixer: m, control: control}
}

// Control returns the name of the control this sink drives.
func (s *Sink) Control() string {
	return s.control
}

// Apply opens the control, computes the clamped target for cmd and sets it.
// Absolute commands do not depend on the current volume, so a failed read
// does not stop them.
func (s *Sink) Apply(cmd Command) (Result, error) {
	ctl, err := s.mixer.Open(s.control)
	if err != nil {
		return Result{}, fmt.Errorf("open control %q: %w", s.control, err)
	}
	defer ctl.Close()

	min, max, err := ctl.VolumeRange()
	if err != nil {
		return Result{}, fmt.Errorf("volume range of %q: %w", s.control, err)
	}

	var current int64
	if cmd.Kind == KindRelative {
		current, err = ctl.Volume()
		if err != nil {
			return Result{}, fmt.Errorf("get volume of %q: %w", s.control, err)
		}
	}

	next := Compute(current, min, max, cmd)
	if err := ctl.SetVolume(next); err != nil {
		return Result{}, fmt.Errorf("set volume of %q to %d: %w", s.control, next, err)
	}

	return Result{
		Control: s.control,
		Raw:     next,
		Min:     min,
		Max:     max,
		Percent: Percent(next, max),
	}, nil
}

// Read returns the current state of the control without changing it.
func (s *Sink) Read() (Result, error) {
	ctl, err := s.mixer.Open(s.control)
	if err != nil {
		return Result{}, fmt.Errorf("open control %q: %w", s.control, err)
	}
	defer ctl.Close()

	min, max, err := ctl.VolumeRange()
	if err != nil {
		return Result{}, fmt.Errorf("volume range of %q: %w", s.control, err)
	}
	raw, err := ctl.Volume()
	if err != nil {
		return Result{}, fmt.Errorf("get volume of %q: %w", s.control, err)
	}

	return Result{
		Control: s.control,
		Raw:     raw,
		Min:     min,
		Max:     max,
		Percent: Percent(raw, max),
	}, nil
}

// Percent returns the current volume as a percentage of max.
func (s *Sink) Percent() (int, error) {
	r, err := s.Read()
	if err != nil {
		return 0, err
	}
	return r.Percent, nil
}
