package mixer

import (
	"fmt"
	"sync"
)

// FakeControl is the state of one control inside a FakeMixer.
type FakeControl struct {
	Min    int64
	Max    int64
	Volume int64
}

// SetCall records a SetVolume call.
type SetCall struct {
	Control string
	Raw     int64
}

// FakeMixer is an in-memory Mixer for tests.
type FakeMixer struct {
	mu sync.Mutex

	// Controls holds the known controls by name.
	Controls map[string]*FakeControl

	// Sets records every successful SetVolume call in order.
	Sets []SetCall

	// OpenError, GetError and SetError, if set, are returned by the
	// corresponding operation.
	OpenError error
	GetError  error
	SetError  error

	// Opens and Closes count handle lifecycle calls.
	Opens  int
	Closes int
}

// NewFakeMixer creates a FakeMixer with a single control.
func NewFakeMixer(control string, min, max, volume int64) *FakeMixer {
	return &FakeMixer{
		Controls: map[string]*FakeControl{
			control: {Min: min, Max: max, Volume: volume},
		},
	}
}

// Open returns a handle on the named control.
func (f *FakeMixer) Open(control string) (Control, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenError != nil {
		return nil, f.OpenError
	}
	if _, ok := f.Controls[control]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrControlNotFound, control)
	}
	f.Opens++
	return &fakeHandle{mixer: f, name: control}, nil
}

// Volume returns the current raw volume of control.
func (f *FakeMixer) Volume(control string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Controls[control].Volume
}

// SetCalls returns a copy of the recorded SetVolume calls.
func (f *FakeMixer) SetCalls() []SetCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SetCall(nil), f.Sets...)
}

// OpenHandles reports handles that were opened but not closed.
func (f *FakeMixer) OpenHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Opens - f.Closes
}

type fakeHandle struct {
	mixer *FakeMixer
	name  string
}

func (h *fakeHandle) VolumeRange() (int64, int64, error) {
	h.mixer.mu.Lock()
	defer h.mixer.mu.Unlock()
	c := h.mixer.Controls[h.name]
	return c.Min, c.Max, nil
}

func (h *fakeHandle) Volume() (int64, error) {
	h.mixer.mu.Lock()
	defer h.mixer.mu.Unlock()
	if h.mixer.GetError != nil {
		return 0, h.mixer.GetError
	}
	return h.mixer.Controls[h.name].Volume, nil
}

func (h *fakeHandle) SetVolume(raw int64) error {
	h.mixer.mu.Lock()
	defer h.mixer.mu.Unlock()
	if h.mixer.SetError != nil {
		return h.mixer.SetError
	}
	h.mixer.Controls[h.name].Volume = raw
	h.mixer.Sets = append(h.mixer.Sets, SetCall{Control: h.name, Raw: raw})
	return nil
}

func (h *fakeHandle) Close() error {
	h.mixer.mu.Lock()
	defer h.mixer.mu.Unlock()
	h.mixer.Closes++
	return nil
}
