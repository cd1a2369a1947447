// Package status provides a thread-safe status tracker for the rotary-volume
// daemon. Snapshots feed the MQTT lifecycle payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/rotary-volume/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Backend           string
	Control           string
	PinA              int
	PinB              int
	PinC              int
	GlitchFilterMs    int64
	RotationThreshold int
	PercentPerDetent  int
	HeartbeatMs       int64
	Broker            string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	HaveVolume    bool // false until the mixer has been read once
	Percent       int
	Muted         bool
	Remembered    int // volume restored on unmute, valid while Muted
	Counts        logic.EventCounts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Host          *HostInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetVolume records the last known mixer volume.
func (t *Tracker) SetVolume(percent int) {
	t.mu.Lock()
	t.snap.HaveVolume = true
	t.snap.Percent = percent
	t.mu.Unlock()
}

// Update sets mute state and event counts.
// Called from runLoop after every handled edge and on every tick.
func (t *Tracker) Update(muted bool, remembered int, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Muted = muted
	t.snap.Remembered = remembered
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// SetHost sets the host info.
func (t *Tracker) SetHost(info *HostInfo) {
	t.mu.Lock()
	t.snap.Host = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
