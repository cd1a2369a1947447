package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rotary-volume.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 23, cfg.GPIO.PinA)
	assert.Equal(t, 24, cfg.GPIO.PinB)
	assert.Equal(t, 22, cfg.GPIO.PinC)
	assert.Equal(t, time.Millisecond, cfg.GPIO.GlitchFilter)
	assert.Equal(t, 4, cfg.Encoder.RotationThreshold)
	assert.Equal(t, "Digital", cfg.Mixer.Control)
	assert.Equal(t, 60, cfg.Mixer.HeadphonePercent)
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("", Config{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
gpio:
  pin_a: 17
  glitch_filter: 2ms
mixer:
  backend: camilladsp
  control: main
  headphone_control: aux1
  headphone_percent: 0
  camilladsp:
    url: ws://dsp.local:1234
    min_db: -50
encoder:
  rotation_threshold: 2
mqtt:
  broker: ""
  heartbeat: 1m
`)

	cfg, err := Load(path, Config{})
	require.NoError(t, err)

	assert.Equal(t, 17, cfg.GPIO.PinA)
	assert.Equal(t, 24, cfg.GPIO.PinB, "unset fields keep their default")
	assert.Equal(t, 2*time.Millisecond, cfg.GPIO.GlitchFilter)
	assert.Equal(t, BackendCamillaDSP, cfg.Mixer.Backend)
	assert.Equal(t, 0, cfg.Mixer.HeadphonePercent, "the file may set zero")
	assert.Equal(t, "ws://dsp.local:1234", cfg.Mixer.CamillaDSP.URL)
	assert.Equal(t, -50.0, cfg.Mixer.CamillaDSP.MinDB)
	assert.Equal(t, time.Second, cfg.Mixer.CamillaDSP.Timeout)
	assert.Equal(t, 2, cfg.Encoder.RotationThreshold)
	assert.Empty(t, cfg.MQTT.Broker)
	assert.Equal(t, time.Minute, cfg.MQTT.Heartbeat)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
gpio:
  pin_a: 17
mixer:
  control: PCM
`)

	flags := Config{
		GPIO:  GPIOConfig{PinA: 5},
		Mixer: MixerConfig{PercentPerDetent: 3},
		MQTT:  MQTTConfig{Heartbeat: -1},
	}
	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.GPIO.PinA)
	assert.Equal(t, "PCM", cfg.Mixer.Control, "zero flags leave the file value")
	assert.Equal(t, 3, cfg.Mixer.PercentPerDetent)
	assert.Equal(t, time.Duration(0), cfg.HeartbeatInterval())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, `
mixer:
  volume_control: PCM
`)
	_, err := Load(path, Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume_control")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), Config{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""), Config{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"pin out of range", func(c *Config) { c.GPIO.PinA = 512 }, "gpio.pin_a"},
		{"negative pin", func(c *Config) { c.GPIO.PinC = -1 }, "gpio.pin_c"},
		{"duplicate pin", func(c *Config) { c.GPIO.PinB = c.GPIO.PinA }, "already used by gpio.pin_a"},
		{"negative glitch filter", func(c *Config) { c.GPIO.GlitchFilter = -time.Millisecond }, "gpio.glitch_filter"},
		{"zero steps", func(c *Config) { c.Encoder.RotationThreshold = 0 }, "encoder.rotation_threshold"},
		{"zero percent", func(c *Config) { c.Mixer.PercentPerDetent = 0 }, "mixer.percent_per_detent"},
		{"percent above 100", func(c *Config) { c.Mixer.PercentPerDetent = 101 }, "mixer.percent_per_detent"},
		{"headphone above 100", func(c *Config) { c.Mixer.HeadphonePercent = 120 }, "mixer.headphone_percent"},
		{"empty control", func(c *Config) { c.Mixer.Control = "" }, "mixer.control"},
		{"unknown backend", func(c *Config) { c.Mixer.Backend = "pulse" }, `unknown backend "pulse"`},
		{"alsa control on camilladsp", func(c *Config) { c.Mixer.Backend = BackendCamillaDSP }, "mixer.control: mixer control not found: Digital"},
		{"alsa headphone on camilladsp", func(c *Config) {
			c.Mixer.Backend = BackendCamillaDSP
			c.Mixer.Control = "main"
		}, "mixer.headphone_control"},
		{"inverted dB range", func(c *Config) {
			c.Mixer.Backend = BackendCamillaDSP
			c.Mixer.Control = "main"
			c.Mixer.HeadphonePercent = -1
			c.Mixer.CamillaDSP.MinDB = 0
			c.Mixer.CamillaDSP.MaxDB = -10
		}, "min_db"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.GPIO.PinA = 600
	cfg.Encoder.RotationThreshold = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, strings.Split(err.Error(), "\n"), 2)
}

func TestValidateCamillaDSPWithoutHeadphone(t *testing.T) {
	cfg := Default()
	cfg.Mixer.Backend = BackendCamillaDSP
	cfg.Mixer.Control = "Main"
	cfg.Mixer.HeadphonePercent = -1
	assert.NoError(t, cfg.Validate())
}

func TestHeadphoneEnabled(t *testing.T) {
	cfg := Default()
	assert.True(t, cfg.HeadphoneEnabled())

	cfg.Mixer.HeadphonePercent = 0
	assert.True(t, cfg.HeadphoneEnabled(), "zero is a level, not disabled")

	cfg.Mixer.HeadphonePercent = -1
	assert.False(t, cfg.HeadphoneEnabled())

	cfg = Default()
	cfg.Mixer.HeadphoneControl = ""
	assert.False(t, cfg.HeadphoneEnabled())
}
