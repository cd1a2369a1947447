package logic

import (
	"fmt"

	"github.com/sweeney/rotary-volume/internal/gpio"
	"github.com/sweeney/rotary-volume/internal/mixer"
)

// Mute toggles between muted and restored on each press of the switch line.
// While muted it remembers the volume to restore.
// Not safe for concurrent use; Controller provides the lock.
type Mute struct {
	sink       VolumeSink
	muted      bool
	remembered int
}

// NewMute creates an unmuted controller driving sink.
func NewMute(sink VolumeSink) *Mute {
	return &Mute{sink: sink}
}

// Muted returns the remembered volume and whether mute is active.
func (m *Mute) Muted() (percent int, ok bool) {
	return m.remembered, m.muted
}

// Press handles one edge of the switch line. Only High (press) toggles;
// Low (release) and Timeout return (nil, nil).
//
// A failed volume read leaves the controller unmuted. A failed set still
// moves the controller to the new state so the next press undoes it.
// On failure the returned Event is nil.
func (m *Mute) Press(level gpio.Level) (*Event, error) {
	if level != gpio.High {
		return nil, nil
	}

	if !m.muted {
		pct, err := m.sink.Percent()
		if err != nil {
			return nil, fmt.Errorf("read volume before mute: %w", err)
		}
		m.remembered, m.muted = pct, true

		res, err := m.sink.Apply(mixer.Absolute(0))
		if err != nil {
			return nil, fmt.Errorf("mute: %w", err)
		}
		return &Event{Type: EventMute, Percent: res.Percent, Raw: res.Raw}, nil
	}

	pct := m.remembered
	m.remembered, m.muted = 0, false

	res, err := m.sink.Apply(mixer.Absolute(pct))
	if err != nil {
		return nil, fmt.Errorf("unmute to %d%%: %w", pct, err)
	}
	return &Event{Type: EventUnmute, Percent: res.Percent, Raw: res.Raw}, nil
}
