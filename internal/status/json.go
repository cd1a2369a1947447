package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Volume        VolumeJSON   `json:"volume"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Host          *HostJSON    `json:"host,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// VolumeJSON reports the mixer volume and mute state.
// Percent is omitted until the mixer has been read.
type VolumeJSON struct {
	Percent    *int `json:"percent,omitempty"`
	Muted      bool `json:"muted"`
	Remembered *int `json:"remembered,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	VolumeUp    int `json:"volume_up"`
	VolumeDown  int `json:"volume_down"`
	Mute        int `json:"mute"`
	Unmute      int `json:"unmute"`
	Ignored     int `json:"ignored"`
	MixerErrors int `json:"mixer_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// HostJSON is the JSON representation of host info.
type HostJSON struct {
	Hostname      string     `json:"hostname"`
	Platform      string     `json:"platform"`
	KernelVersion string     `json:"kernel_version"`
	UptimeSeconds uint64     `json:"uptime_seconds"`
	Load          [3]float64 `json:"load"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend           string `json:"backend"`
	Control           string `json:"control"`
	PinA              int    `json:"pin_a"`
	PinB              int    `json:"pin_b"`
	PinC              int    `json:"pin_c"`
	GlitchFilterMs    int64  `json:"glitch_filter_ms"`
	RotationThreshold int    `json:"rotation_threshold"`
	PercentPerDetent  int    `json:"percent_per_detent"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	Broker            string `json:"broker"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Volume:        VolumeJSON{Muted: snap.Muted},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			VolumeUp:    snap.Counts.VolumeUp,
			VolumeDown:  snap.Counts.VolumeDown,
			Mute:        snap.Counts.Mute,
			Unmute:      snap.Counts.Unmute,
			Ignored:     snap.Counts.Ignored,
			MixerErrors: snap.Counts.MixerErrors,
		},
		Config: ConfigJSON{
			Backend:           snap.Config.Backend,
			Control:           snap.Config.Control,
			PinA:              snap.Config.PinA,
			PinB:              snap.Config.PinB,
			PinC:              snap.Config.PinC,
			GlitchFilterMs:    snap.Config.GlitchFilterMs,
			RotationThreshold: snap.Config.RotationThreshold,
			PercentPerDetent:  snap.Config.PercentPerDetent,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			Broker:            snap.Config.Broker,
		},
	}
	if snap.HaveVolume {
		pct := snap.Percent
		inner.Volume.Percent = &pct
	}
	if snap.Muted {
		rem := snap.Remembered
		inner.Volume.Remembered = &rem
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

func buildHost(snap Snapshot, inner *StatusInner) {
	if snap.Host != nil {
		inner.Host = &HostJSON{
			Hostname:      snap.Host.Hostname,
			Platform:      snap.Host.Platform,
			KernelVersion: snap.Host.KernelVersion,
			UptimeSeconds: snap.Host.UptimeSeconds,
			Load:          [3]float64{snap.Host.Load1, snap.Host.Load5, snap.Host.Load15},
		}
	}
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)
	buildHost(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
