package mixer

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// camillaSteps is the raw resolution exposed for CamillaDSP faders.
// Raw 0 maps to MinDB and camillaSteps to MaxDB, linear in dB.
const camillaSteps = 1000

// CamillaDSP drives a CamillaDSP fader over its websocket API.
// Control names are "Main" or "Aux1" to "Aux4".
type CamillaDSP struct {
	URL     string
	Timeout time.Duration
	MinDB   float64
	MaxDB   float64

	dialer *websocket.Dialer
}

// NewCamillaDSP creates a CamillaDSP mixer. The dB bounds define the span
// mapped onto the raw range.
func NewCamillaDSP(url string, timeout time.Duration, minDB, maxDB float64) *CamillaDSP {
	return &CamillaDSP{
		URL:     url,
		Timeout: timeout,
		MinDB:   minDB,
		MaxDB:   maxDB,
		dialer:  &websocket.Dialer{HandshakeTimeout: timeout},
	}
}

// FaderIndex maps a CamillaDSP control name (main, aux1..aux4) to its fader.
func FaderIndex(control string) (int, error) {
	switch strings.ToLower(control) {
	case "main":
		return 0, nil
	case "aux1":
		return 1, nil
	case "aux2":
		return 2, nil
	case "aux3":
		return 3, nil
	case "aux4":
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrControlNotFound, control)
}

// Open dials the websocket. The connection lives until Close.
func (c *CamillaDSP) Open(control string) (Control, error) {
	fader, err := FaderIndex(control)
	if err != nil {
		return nil, err
	}
	conn, _, err := c.dialer.Dial(c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.URL, err)
	}
	return &camillaControl{dsp: c, conn: conn, fader: fader}, nil
}

type camillaControl struct {
	dsp   *CamillaDSP
	conn  *websocket.Conn
	fader int
}

type camillaReply struct {
	Result string          `json:"result"`
	Value  json.RawMessage `json:"value"`
}

// request sends cmd and decodes the reply stored under name.
func (c *camillaControl) request(name string, cmd any) (json.RawMessage, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return nil, fmt.Errorf("send %s: %w", name, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.dsp.Timeout))
	defer c.conn.SetReadDeadline(time.Time{})

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read %s reply: %w", name, err)
	}

	var envelope map[string]camillaReply
	if err := json.Unmarshal(message, &envelope); err != nil {
		return nil, fmt.Errorf("parse %s reply: %w", name, err)
	}
	reply, ok := envelope[name]
	if !ok {
		return nil, fmt.Errorf("unexpected reply to %s: %s", name, message)
	}
	if reply.Result != "Ok" {
		return nil, fmt.Errorf("%s failed: %s", name, reply.Result)
	}
	return reply.Value, nil
}

func (c *camillaControl) VolumeRange() (int64, int64, error) {
	return 0, camillaSteps, nil
}

func (c *camillaControl) Volume() (int64, error) {
	var db float64
	if c.fader == 0 {
		value, err := c.request("GetVolume", "GetVolume")
		if err != nil {
			return 0, err
		}
		if err := json.Unmarshal(value, &db); err != nil {
			return 0, fmt.Errorf("parse GetVolume value: %w", err)
		}
	} else {
		value, err := c.request("GetFaderVolume", map[string]any{"GetFaderVolume": c.fader})
		if err != nil {
			return 0, err
		}
		var pair []float64
		if err := json.Unmarshal(value, &pair); err != nil || len(pair) != 2 {
			return 0, fmt.Errorf("parse GetFaderVolume value: %s", value)
		}
		db = pair[1]
	}
	return c.dsp.rawFromDB(db), nil
}

func (c *camillaControl) SetVolume(raw int64) error {
	db := c.dsp.dbFromRaw(raw)
	var err error
	if c.fader == 0 {
		_, err = c.request("SetVolume", map[string]any{"SetVolume": db})
	} else {
		_, err = c.request("SetFaderVolume", map[string]any{"SetFaderVolume": []any{c.fader, db}})
	}
	return err
}

func (c *camillaControl) Close() error {
	return c.conn.Close()
}

func (c *CamillaDSP) rawFromDB(db float64) int64 {
	span := c.MaxDB - c.MinDB
	if span <= 0 {
		return 0
	}
	raw := math.Round((db - c.MinDB) / span * camillaSteps)
	return clamp(int64(raw), 0, camillaSteps)
}

func (c *CamillaDSP) dbFromRaw(raw int64) float64 {
	raw = clamp(raw, 0, camillaSteps)
	return c.MinDB + float64(raw)/camillaSteps*(c.MaxDB-c.MinDB)
}
