package logic

import (
	"sync"
	"time"

	"github.com/sweeney/rotary-volume/internal/gpio"
	"github.com/sweeney/rotary-volume/internal/mixer"
)

// Pins maps the three knob lines to GPIO offsets.
type Pins struct {
	A int // encoder phase A
	B int // encoder phase B
	C int // push switch
}

// Options configures a Controller.
type Options struct {
	Pins Pins

	// RotationThreshold is the sub-step count that must be exceeded before a
	// volume command is issued.
	RotationThreshold int

	// PercentPerDetent is the volume change per detent, percent of max.
	PercentPerDetent int
}

// Controller owns the decoder and mute state and applies their commands to
// the mixer. Every edge is handled under one mutex, so edges from
// different pins may be delivered from different goroutines.
type Controller struct {
	mu sync.Mutex

	pins             Pins
	percentPerDetent int
	sink             VolumeSink
	decoder          *Decoder
	mute             *Mute

	startTime     time.Time
	lastHeartbeat time.Time
	counts        EventCounts
}

// NewController creates a controller. The startTime is used for calculating
// uptime in heartbeat events.
func NewController(opts Options, sink VolumeSink, startTime time.Time) *Controller {
	pct := opts.PercentPerDetent
	if pct < 1 {
		pct = 1
	}
	return &Controller{
		pins:             opts.Pins,
		percentPerDetent: pct,
		sink:             sink,
		decoder:          NewDecoder(opts.RotationThreshold),
		mute:             NewMute(sink),
		startTime:        startTime,
		lastHeartbeat:    startTime,
	}
}

// Seed initialises the decoder from the encoder lines' current levels.
func (c *Controller) Seed(a, b gpio.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decoder.Seed(a, b)
}

// Handle processes one edge. It returns the applied change, nil when the
// edge changed nothing at the mixer, or an *EventError when the mixer
// failed or the pin is unknown. Errors never leave the state unusable.
func (c *Controller) Handle(ev gpio.Event, now time.Time) (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Level == gpio.Timeout {
		return nil, nil
	}

	switch ev.Pin {
	case c.pins.A:
		return c.rotate(LineA, ev, now)
	case c.pins.B:
		return c.rotate(LineB, ev, now)
	case c.pins.C:
		return c.press(ev, now)
	}
	return nil, &EventError{Pin: ev.Pin, Op: "dispatch", Err: ErrUnknownPin}
}

func (c *Controller) rotate(line Line, ev gpio.Event, now time.Time) (*Event, error) {
	step, detent := c.decoder.Edge(line, ev.Level)
	if step == 0 {
		c.counts.Ignored++
		return nil, nil
	}
	if !detent {
		return nil, nil
	}

	res, err := c.sink.Apply(mixer.Relative(step * c.percentPerDetent))
	if err != nil {
		c.counts.MixerErrors++
		return nil, &EventError{Pin: ev.Pin, Op: "change volume", Err: err}
	}

	typ := EventVolumeUp
	if step < 0 {
		typ = EventVolumeDown
		c.counts.VolumeDown++
	} else {
		c.counts.VolumeUp++
	}
	return &Event{Timestamp: now, Type: typ, Percent: res.Percent, Raw: res.Raw}, nil
}

func (c *Controller) press(ev gpio.Event, now time.Time) (*Event, error) {
	event, err := c.mute.Press(ev.Level)
	if err != nil {
		c.counts.MixerErrors++
		return nil, &EventError{Pin: ev.Pin, Op: "toggle mute", Err: err}
	}
	if event == nil {
		return nil, nil
	}

	event.Timestamp = now
	if event.Type == EventMute {
		c.counts.Mute++
	} else {
		c.counts.Unmute++
	}
	return event, nil
}

// Muted returns the remembered volume and whether mute is active.
func (c *Controller) Muted() (percent int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mute.Muted()
}

// EventCountsSnapshot returns a copy of the current event counts.
func (c *Controller) EventCountsSnapshot() EventCounts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	_, muted := c.mute.Muted()
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
		Muted:     muted,
	}
}
