package status

import (
	"fmt"

	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/load"
)

// HostInfo describes the machine the daemon runs on.
type HostInfo struct {
	Hostname      string
	Platform      string
	KernelVersion string
	UptimeSeconds uint64
	Load1         float64
	Load5         float64
	Load15        float64
}

// ReadHostInfo collects host identity and load averages.
// Load averages are left at zero if they cannot be read.
func ReadHostInfo() (*HostInfo, error) {
	hi, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("read host info: %w", err)
	}

	info := &HostInfo{
		Hostname:      hi.Hostname,
		Platform:      hi.Platform + " " + hi.PlatformVersion,
		KernelVersion: hi.KernelVersion,
		UptimeSeconds: hi.Uptime,
	}
	if avg, err := load.Avg(); err == nil {
		info.Load1, info.Load5, info.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return info, nil
}
