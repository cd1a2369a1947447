// Package logic contains the volume knob state machines: quadrature
// decoding of the encoder lines, the mute toggle, and the Controller that
// serializes both behind one lock.
// This package does no GPIO or OS access of its own; the mixer is reached
// through the VolumeSink interface and time is always passed in.
package logic

import (
	"time"

	"github.com/sweeney/rotary-volume/internal/mixer"
)

// EventType names an applied volume change.
type EventType string

const (
	EventVolumeUp   EventType = "VOLUME_UP"
	EventVolumeDown EventType = "VOLUME_DOWN"
	EventMute       EventType = "MUTE"
	EventUnmute     EventType = "UNMUTE"
)

// Event is a volume change that reached the mixer.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Percent   int   // resulting volume, percent of max
	Raw       int64 // resulting raw mixer value
}

// VolumeSink is the mixer side of the controller. *mixer.Sink implements it.
type VolumeSink interface {
	Apply(cmd mixer.Command) (mixer.Result, error)
	Percent() (int, error)
}

// EventCounts tracks the number of each outcome since startup.
type EventCounts struct {
	VolumeUp    int
	VolumeDown  int
	Mute        int
	Unmute      int
	Ignored     int // quadrature transitions rejected by the table
	MixerErrors int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
	Muted     bool
}
