// Package config loads the daemon configuration. Values come from, in
// increasing priority: built-in defaults, the YAML file, and command-line
// flags that were set to a non-zero value.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/rotary-volume/internal/gpio"
	"github.com/sweeney/rotary-volume/internal/logic"
	"github.com/sweeney/rotary-volume/internal/mixer"
)

// Mixer backends.
const (
	BackendALSA       = "alsa"
	BackendCamillaDSP = "camilladsp"
)

// MaxPin is the highest GPIO line offset accepted.
const MaxPin = 511

// Config is the top-level YAML configuration.
type Config struct {
	GPIO           GPIOConfig    `yaml:"gpio"`
	Mixer          MixerConfig   `yaml:"mixer"`
	Encoder        EncoderConfig `yaml:"encoder"`
	MQTT           MQTTConfig    `yaml:"mqtt"`
	NetworkEnvFile string        `yaml:"network_env_file"`
}

type GPIOConfig struct {
	Chip         string        `yaml:"chip"`
	PinA         int           `yaml:"pin_a"`
	PinB         int           `yaml:"pin_b"`
	PinC         int           `yaml:"pin_c"`
	GlitchFilter time.Duration `yaml:"glitch_filter"`
}

type MixerConfig struct {
	Backend          string           `yaml:"backend"`
	Card             string           `yaml:"card"`
	Control          string           `yaml:"control"`
	HeadphoneControl string           `yaml:"headphone_control"`
	HeadphonePercent int              `yaml:"headphone_percent"` // negative disables
	PercentPerDetent int              `yaml:"percent_per_detent"`
	CamillaDSP       CamillaDSPConfig `yaml:"camilladsp"`
}

type CamillaDSPConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	MinDB   float64       `yaml:"min_db"`
	MaxDB   float64       `yaml:"max_db"`
}

type EncoderConfig struct {
	RotationThreshold int `yaml:"rotation_threshold"`
}

type MQTTConfig struct {
	Broker    string        `yaml:"broker"` // empty disables publishing
	ClientID  string        `yaml:"client_id"`
	Heartbeat time.Duration `yaml:"heartbeat"` // negative disables
}

// Default returns a fully-populated Config.
func Default() Config {
	return Config{
		GPIO: GPIOConfig{
			Chip:         gpio.DefaultChip,
			PinA:         gpio.DefaultPinA,
			PinB:         gpio.DefaultPinB,
			PinC:         gpio.DefaultPinC,
			GlitchFilter: gpio.DefaultGlitchFilter,
		},
		Mixer: MixerConfig{
			Backend:          BackendALSA,
			Card:             "default",
			Control:          "Digital",
			HeadphoneControl: "Headphone",
			HeadphonePercent: 60,
			PercentPerDetent: 1,
			CamillaDSP: CamillaDSPConfig{
				URL:     "ws://127.0.0.1:1234",
				Timeout: time.Second,
				MinDB:   -60,
				MaxDB:   0,
			},
		},
		Encoder: EncoderConfig{
			RotationThreshold: logic.DefaultRotationThreshold,
		},
		MQTT: MQTTConfig{
			Broker:    "tcp://192.168.1.200:1883",
			ClientID:  "rotary-volume",
			Heartbeat: 15 * time.Minute,
		},
		NetworkEnvFile: "/run/pi-helper.env",
	}
}

// Decode reads YAML from r on top of cfg. Unknown fields are rejected.
func (cfg *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Load builds the effective configuration. An empty path skips the file.
// Non-zero fields of flags override the file; a flag cannot set a value
// back to zero.
func Load(path string, flags Config) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("cannot open configuration file %q: %w", path, err)
		}
		defer func() {
			_ = f.Close()
		}()
		if err := cfg.Decode(f); err != nil {
			return Config{}, fmt.Errorf("cannot load configuration file %q: %w", path, err)
		}
	}

	if err := mergo.Merge(&cfg, flags, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("apply flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (cfg Config) Validate() error {
	var errs []error

	pins := map[int]string{}
	for _, p := range []struct {
		name string
		pin  int
	}{
		{"gpio.pin_a", cfg.GPIO.PinA},
		{"gpio.pin_b", cfg.GPIO.PinB},
		{"gpio.pin_c", cfg.GPIO.PinC},
	} {
		if p.pin < 0 || p.pin > MaxPin {
			errs = append(errs, fmt.Errorf("%s: %d out of range 0..%d", p.name, p.pin, MaxPin))
			continue
		}
		if other, ok := pins[p.pin]; ok {
			errs = append(errs, fmt.Errorf("%s: pin %d already used by %s", p.name, p.pin, other))
			continue
		}
		pins[p.pin] = p.name
	}

	if cfg.GPIO.GlitchFilter < 0 {
		errs = append(errs, fmt.Errorf("gpio.glitch_filter: must not be negative"))
	}
	if cfg.Encoder.RotationThreshold < 1 {
		errs = append(errs, fmt.Errorf("encoder.rotation_threshold: must be positive, got %d", cfg.Encoder.RotationThreshold))
	}
	if p := cfg.Mixer.PercentPerDetent; p < 1 || p > 100 {
		errs = append(errs, fmt.Errorf("mixer.percent_per_detent: %d out of range 1..100", p))
	}
	if cfg.Mixer.HeadphonePercent > 100 {
		errs = append(errs, fmt.Errorf("mixer.headphone_percent: %d above 100", cfg.Mixer.HeadphonePercent))
	}
	if cfg.Mixer.Control == "" {
		errs = append(errs, fmt.Errorf("mixer.control: required"))
	}

	switch cfg.Mixer.Backend {
	case BackendALSA:
	case BackendCamillaDSP:
		if c := cfg.Mixer.CamillaDSP; c.MinDB > c.MaxDB {
			errs = append(errs, fmt.Errorf("mixer.camilladsp: min_db %g above max_db %g", c.MinDB, c.MaxDB))
		}
		if _, err := mixer.FaderIndex(cfg.Mixer.Control); err != nil && cfg.Mixer.Control != "" {
			errs = append(errs, fmt.Errorf("mixer.control: %w", err))
		}
		if _, err := mixer.FaderIndex(cfg.Mixer.HeadphoneControl); err != nil && cfg.HeadphoneEnabled() {
			errs = append(errs, fmt.Errorf("mixer.headphone_control: %w", err))
		}
	default:
		errs = append(errs, fmt.Errorf("mixer.backend: unknown backend %q", cfg.Mixer.Backend))
	}

	return errors.Join(errs...)
}

// HeadphoneEnabled reports whether a startup headphone level is configured.
func (cfg Config) HeadphoneEnabled() bool {
	return cfg.Mixer.HeadphoneControl != "" && cfg.Mixer.HeadphonePercent >= 0
}

// HeartbeatInterval returns the heartbeat interval, or 0 when disabled.
func (cfg Config) HeartbeatInterval() time.Duration {
	if cfg.MQTT.Heartbeat < 0 {
		return 0
	}
	return cfg.MQTT.Heartbeat
}
