package logic

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/rotary-volume/internal/gpio"
	"github.com/sweeney/rotary-volume/internal/mixer"
)

func newMute(volume int64) (*Mute, *mixer.FakeMixer) {
	m := mixer.NewFakeMixer("Digital", 0, 100, volume)
	return NewMute(mixer.NewSink(m, "Digital")), m
}

func TestMuteRoundTrip(t *testing.T) {
	mu, m := newMute(45)

	ev, err := mu.Press(gpio.High)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventMute, ev.Type)
	assert.Equal(t, 0, ev.Percent)

	pct, muted := mu.Muted()
	assert.True(t, muted)
	assert.Equal(t, 45, pct)

	ev, err = mu.Press(gpio.High)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, EventUnmute, ev.Type)
	assert.Equal(t, 45, ev.Percent)

	_, muted = mu.Muted()
	assert.False(t, muted, "mute memory cleared after restore")

	assert.Equal(t, []mixer.SetCall{
		{Control: "Digital", Raw: 0},
		{Control: "Digital", Raw: 45},
	}, m.SetCalls())
}

func TestMuteRoundTripWideRange(t *testing.T) {
	m := mixer.NewFakeMixer("Digital", 0, 255, 153) // 60%
	mu := NewMute(mixer.NewSink(m, "Digital"))

	mu.Press(gpio.High)
	mu.Press(gpio.High)
	assert.Equal(t, int64(153), m.Volume("Digital"))
}

func TestMuteAtZeroStillRoundTrips(t *testing.T) {
	mu, m := newMute(0)

	ev, err := mu.Press(gpio.High)
	require.NoError(t, err)
	assert.Equal(t, EventMute, ev.Type)

	ev, err = mu.Press(gpio.High)
	require.NoError(t, err)
	assert.Equal(t, EventUnmute, ev.Type)
	assert.Len(t, m.SetCalls(), 2)
}

func TestMuteReleaseAndTimeoutAreNoOps(t *testing.T) {
	mu, m := newMute(30)

	for _, l := range []gpio.Level{gpio.Low, gpio.Timeout} {
		ev, err := mu.Press(l)
		assert.NoError(t, err)
		assert.Nil(t, ev)
		_, muted := mu.Muted()
		assert.False(t, muted, "%s while unmuted", l)
	}

	mu.Press(gpio.High)

	for _, l := range []gpio.Level{gpio.Low, gpio.Timeout} {
		ev, err := mu.Press(l)
		assert.NoError(t, err)
		assert.Nil(t, ev)
		pct, muted := mu.Muted()
		assert.True(t, muted, "%s while muted", l)
		assert.Equal(t, 30, pct)
	}

	assert.Len(t, m.SetCalls(), 1)
}

func TestMuteReadFailureStaysUnmuted(t *testing.T) {
	mu, m := newMute(50)
	m.GetError = errors.New("control vanished")

	ev, err := mu.Press(gpio.High)
	assert.Error(t, err)
	assert.Nil(t, ev)

	_, muted := mu.Muted()
	assert.False(t, muted)
	assert.Empty(t, m.SetCalls())
}

func TestMuteSetFailureKeepsIntendedState(t *testing.T) {
	mu, m := newMute(70)
	m.SetError = errors.New("write failed")

	_, err := mu.Press(gpio.High)
	assert.ErrorContains(t, err, "write failed")

	pct, muted := mu.Muted()
	assert.True(t, muted, "state follows the attempted mute")
	assert.Equal(t, 70, pct)

	m.SetError = nil
	ev, err := mu.Press(gpio.High)
	require.NoError(t, err)
	assert.Equal(t, EventUnmute, ev.Type)
	assert.Equal(t, int64(70), m.Volume("Digital"))
}

func TestUnmuteSetFailureStillClearsMemory(t *testing.T) {
	mu, m := newMute(40)
	mu.Press(gpio.High)

	m.SetError = errors.New("write failed")
	_, err := mu.Press(gpio.High)
	assert.Error(t, err)

	_, muted := mu.Muted()
	assert.False(t, muted)
}
