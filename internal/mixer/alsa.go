package mixer

import (
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Runner executes a command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

func execRunner(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).CombinedOutput()
}

// ALSA drives simple mixer controls through the amixer utility.
type ALSA struct {
	// Device is the ALSA mixer device, e.g. "default" or "hw:0".
	Device string

	run Runner
}

// NewALSA creates an ALSA mixer for device.
func NewALSA(device string) *ALSA {
	return &ALSA{Device: device, run: execRunner}
}

// NewALSAWithRunner creates an ALSA mixer that executes amixer through run.
func NewALSAWithRunner(device string, run Runner) *ALSA {
	return &ALSA{Device: device, run: run}
}

var (
	limitsRe   = regexp.MustCompile(`Limits:(?: Playback)? (-?\d+) - (-?\d+)`)
	playbackRe = regexp.MustCompile(`(?m)^\s+([^:\n]+): Playback (-?\d+)`)
)

// Open reads the control once; the returned handle reports that snapshot and
// writes through amixer.
func (a *ALSA) Open(control string) (Control, error) {
	out, err := a.run("amixer", "-D", a.Device, "sget", control)
	if err != nil {
		if bytes.Contains(out, []byte("Unable to find simple control")) {
			return nil, fmt.Errorf("%w: %s", ErrControlNotFound, control)
		}
		return nil, fmt.Errorf("amixer sget %s: %w: %s", control, err, strings.TrimSpace(string(out)))
	}

	c := &alsaControl{alsa: a, name: control}
	if err := c.parse(out); err != nil {
		return nil, fmt.Errorf("parse amixer output for %s: %w", control, err)
	}
	return c, nil
}

type alsaControl struct {
	alsa   *ALSA
	name   string
	min    int64
	max    int64
	volume int64
}

func (c *alsaControl) parse(out []byte) error {
	m := limitsRe.FindSubmatch(out)
	if m == nil {
		return fmt.Errorf("no playback limits")
	}
	min, _ := strconv.ParseInt(string(m[1]), 10, 64)
	max, _ := strconv.ParseInt(string(m[2]), 10, 64)

	// First channel line wins; "Limits" shares the same shape.
	for _, v := range playbackRe.FindAllSubmatch(out, -1) {
		if string(v[1]) == "Limits" {
			continue
		}
		vol, _ := strconv.ParseInt(string(v[2]), 10, 64)
		c.min, c.max, c.volume = min, max, vol
		return nil
	}
	return fmt.Errorf("no playback volume")
}

func (c *alsaControl) VolumeRange() (int64, int64, error) {
	return c.min, c.max, nil
}

func (c *alsaControl) Volume() (int64, error) {
	return c.volume, nil
}

func (c *alsaControl) SetVolume(raw int64) error {
	out, err := c.alsa.run("amixer", "-D", c.alsa.Device, "-q", "sset", c.name, strconv.FormatInt(raw, 10))
	if err != nil {
		return fmt.Errorf("amixer sset %s %d: %w: %s", c.name, raw, err, strings.TrimSpace(string(out)))
	}
	c.volume = raw
	return nil
}

func (c *alsaControl) Close() error {
	return nil
}
