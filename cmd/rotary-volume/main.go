// Command rotary-volume turns a rotary encoder with a push switch into volume
// and mute control of an audio mixer, and reports changes over MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	log "github.com/echocat/slf4g"
	"github.com/echocat/slf4g/native"
	"github.com/echocat/slf4g/native/facade/value"
	"github.com/echocat/slf4g/native/formatter"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/rotary-volume/internal/config"
	"github.com/sweeney/rotary-volume/internal/gpio"
	"github.com/sweeney/rotary-volume/internal/logic"
	"github.com/sweeney/rotary-volume/internal/mixer"
	"github.com/sweeney/rotary-volume/internal/mqtt"
	"github.com/sweeney/rotary-volume/internal/status"
)

// eventBuffer is the capacity of the channel between the GPIO edge handlers
// and runLoop.
const eventBuffer = 64

func main() {
	lv := value.NewProvider(native.DefaultProvider)
	lv.Consumer.Formatter.Codec = value.MappingFormatterCodec{
		"text": formatter.NewText(),
		"json": formatter.NewJson(),
	}

	var (
		configFile  string
		printVolume bool
		flags       config.Config
	)

	cmd := kingpin.New("rotary-volume", "Rotary encoder volume and mute control.")
	cmd.Flag("config", "YAML configuration file.").
		Short('c').
		StringVar(&configFile)
	cmd.Flag("gpio.chip", "GPIO character device, e.g. gpiochip0.").
		StringVar(&flags.GPIO.Chip)
	cmd.Flag("gpio.pin-a", "GPIO line of encoder phase A.").
		IntVar(&flags.GPIO.PinA)
	cmd.Flag("gpio.pin-b", "GPIO line of encoder phase B.").
		IntVar(&flags.GPIO.PinB)
	cmd.Flag("gpio.pin-c", "GPIO line of the push switch.").
		IntVar(&flags.GPIO.PinC)
	cmd.Flag("gpio.glitch-filter", "Debounce period applied to every line.").
		DurationVar(&flags.GPIO.GlitchFilter)
	cmd.Flag("mixer.backend", "Mixer backend.").
		EnumVar(&flags.Mixer.Backend, config.BackendALSA, config.BackendCamillaDSP)
	cmd.Flag("mixer.card", "ALSA device passed to amixer -D.").
		StringVar(&flags.Mixer.Card)
	cmd.Flag("mixer.control", "Control driven by the knob.").
		StringVar(&flags.Mixer.Control)
	cmd.Flag("mixer.headphone-control", "Control set once at startup.").
		StringVar(&flags.Mixer.HeadphoneControl)
	cmd.Flag("mixer.headphone-percent", "Startup level of the headphone control (negative disables).").
		IntVar(&flags.Mixer.HeadphonePercent)
	cmd.Flag("mixer.percent-per-detent", "Volume change per click, percent of max.").
		IntVar(&flags.Mixer.PercentPerDetent)
	cmd.Flag("camilladsp.url", "CamillaDSP websocket URL.").
		StringVar(&flags.Mixer.CamillaDSP.URL)
	cmd.Flag("encoder.rotation-threshold", "Sub-steps a detent must exceed.").
		IntVar(&flags.Encoder.RotationThreshold)
	cmd.Flag("mqtt.broker", "MQTT broker address.").
		StringVar(&flags.MQTT.Broker)
	cmd.Flag("mqtt.client-id", "MQTT client id.").
		StringVar(&flags.MQTT.ClientID)
	cmd.Flag("mqtt.heartbeat", "Heartbeat interval (negative disables).").
		DurationVar(&flags.MQTT.Heartbeat)
	cmd.Flag("network-env-file", "pi-helper network state file.").
		StringVar(&flags.NetworkEnvFile)
	cmd.Flag("print-volume", "Print the current volume and exit.").
		BoolVar(&printVolume)

	cmd.Flag("log.level", "").
		SetValue(lv.Level)
	cmd.Flag("log.format", "").
		Default("text").
		SetValue(lv.Consumer.Formatter)

	cmd.Action(func(*kingpin.ParseContext) error {
		cfg, err := config.Load(configFile, flags)
		if err != nil {
			return &logic.StartupError{Op: "load config", Err: err}
		}
		return run(cfg, printVolume)
	})

	if _, err := cmd.Parse(os.Args[1:]); err != nil {
		log.WithError(err).
			With("fatal", logic.IsFatal(err)).
			Error("rotary-volume stopped.")
		os.Exit(1)
	}
}

func newMixer(cfg config.Config) mixer.Mixer {
	if cfg.Mixer.Backend == config.BackendCamillaDSP {
		c := cfg.Mixer.CamillaDSP
		return mixer.NewCamillaDSP(c.URL, c.Timeout, c.MinDB, c.MaxDB)
	}
	return mixer.NewALSA(cfg.Mixer.Card)
}

func newPublisher(cfg config.Config) (mqtt.Publisher, mqtt.ConnectionStatus, error) {
	if cfg.MQTT.Broker == "" {
		log.Info("No MQTT broker configured; publishing disabled.")
		return mqtt.NopPublisher{}, mqtt.NopPublisher{}, nil
	}
	p, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
	})
	if err != nil {
		return nil, nil, err
	}
	return p, p, nil
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Backend:           cfg.Mixer.Backend,
		Control:           cfg.Mixer.Control,
		PinA:              cfg.GPIO.PinA,
		PinB:              cfg.GPIO.PinB,
		PinC:              cfg.GPIO.PinC,
		GlitchFilterMs:    cfg.GPIO.GlitchFilter.Milliseconds(),
		RotationThreshold: cfg.Encoder.RotationThreshold,
		PercentPerDetent:  cfg.Mixer.PercentPerDetent,
		HeartbeatMs:       cfg.HeartbeatInterval().Milliseconds(),
		Broker:            cfg.MQTT.Broker,
	}
}

func run(cfg config.Config, printVolume bool) error {
	m := newMixer(cfg)
	sink := mixer.NewSink(m, cfg.Mixer.Control)

	// Print volume mode
	if printVolume {
		res, err := sink.Read()
		if err != nil {
			return fmt.Errorf("read volume: %w", err)
		}
		fmt.Printf("%s: %d (%d%%) range [%d,%d]\n", res.Control, res.Raw, res.Percent, res.Min, res.Max)
		return nil
	}

	if cfg.HeadphoneEnabled() {
		applyHeadphoneLevel(mixer.NewSink(m, cfg.Mixer.HeadphoneControl), cfg.Mixer.HeadphonePercent)
	}

	src, err := gpio.NewRealSource(cfg.GPIO.Chip)
	if err != nil {
		return &logic.StartupError{Op: "open gpio chip", Err: err}
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.WithError(err).Warn("Cannot release GPIO lines.")
		}
	}()

	startTime := time.Now()
	pins := logic.Pins{A: cfg.GPIO.PinA, B: cfg.GPIO.PinB, C: cfg.GPIO.PinC}
	ctrl := logic.NewController(logic.Options{
		Pins:              pins,
		RotationThreshold: cfg.Encoder.RotationThreshold,
		PercentPerDetent:  cfg.Mixer.PercentPerDetent,
	}, sink, startTime)

	events := make(chan gpio.Event, eventBuffer)
	done := make(chan struct{})
	defer close(done)
	if err := watchPins(src, pins, cfg.GPIO.GlitchFilter, ctrl, events, done); err != nil {
		return err
	}

	publisher, mqttStatus, err := newPublisher(cfg)
	if err != nil {
		return &logic.StartupError{Op: "connect mqtt", Err: err}
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(startTime, statusConfig(cfg))
	if pct, err := sink.Percent(); err != nil {
		log.WithError(err).
			With("control", cfg.Mixer.Control).
			Warn("Cannot read initial volume.")
	} else {
		tracker.SetVolume(pct)
	}
	refreshHostState(cfg.NetworkEnvFile, tracker)
	tracker.SetMQTTConnected(mqttStatus.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.WithError(err).Warn("Cannot publish startup event.")
	}

	log.With("control", cfg.Mixer.Control).
		With("backend", cfg.Mixer.Backend).
		With("pins", fmt.Sprintf("A=%d B=%d C=%d", pins.A, pins.B, pins.C)).
		With("rotationThreshold", cfg.Encoder.RotationThreshold).
		With("broker", cfg.MQTT.Broker).
		Info("Started.")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return runLoop(events, ctrl, publisher, mqttStatus, tracker, cfg.HeartbeatInterval(), time.Now, ticker.C, sigCh)
	})
	g.Go(func() error {
		refreshLoop(ctx, cfg.NetworkEnvFile, tracker, time.Minute)
		return nil
	})
	return g.Wait()
}

// watchPins configures the three lines as pulled-up inputs and forwards their
// edges to events until done is closed. The decoder is seeded from the
// encoder lines' current levels.
func watchPins(src gpio.Source, pins logic.Pins, glitchFilter time.Duration, ctrl *logic.Controller, events chan<- gpio.Event, done <-chan struct{}) error {
	forward := func(ev gpio.Event) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	for _, pin := range []int{pins.A, pins.B, pins.C} {
		if err := src.ConfigureInput(pin, true, glitchFilter); err != nil {
			return &logic.StartupError{Op: fmt.Sprintf("configure pin %d", pin), Err: err}
		}
		if err := src.Watch(pin, forward); err != nil {
			return &logic.StartupError{Op: fmt.Sprintf("watch pin %d", pin), Err: err}
		}
	}

	a, errA := src.Value(pins.A)
	b, errB := src.Value(pins.B)
	if errA != nil || errB != nil {
		log.With("errA", errA).
			With("errB", errB).
			Warn("Cannot read encoder lines; decoder starts from 00.")
		return nil
	}
	ctrl.Seed(a, b)
	return nil
}

func applyHeadphoneLevel(sink *mixer.Sink, percent int) {
	res, err := sink.Apply(mixer.Absolute(percent))
	if err != nil {
		log.WithError(err).
			With("control", sink.Control()).
			Warn("Cannot set startup headphone level.")
		return
	}
	log.With("control", res.Control).
		With("percent", res.Percent).
		Info("Headphone level set.")
}

func runLoop(events <-chan gpio.Event, ctrl *logic.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	updateTracker := func() {
		if tracker == nil {
			return
		}
		remembered, muted := ctrl.Muted()
		tracker.Update(muted, remembered, ctrl.EventCountsSnapshot())
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}

	for {
		select {
		case s := <-sig:
			log.With("signal", s).Info("Shutting down.")
			reason := signalName(s)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    reason,
				Retained:  true,
			}
			if tracker != nil {
				updateTracker()
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", reason)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.WithError(err).Warn("Cannot publish shutdown event.")
			}
			return nil

		case ev := <-events:
			event, err := ctrl.Handle(ev, now())
			if err != nil {
				log.WithError(err).
					With("pin", ev.Pin).
					Warn("Edge not applied.")
				updateTracker()
				continue
			}
			if event == nil {
				continue
			}

			log.With("event", event.Type).
				With("percent", event.Percent).
				With("raw", event.Raw).
				Info("Volume changed.")
			if tracker != nil {
				tracker.SetVolume(event.Percent)
			}
			updateTracker()
			if err := publisher.Publish(*event); err != nil {
				log.WithError(err).Warn("Cannot publish volume event.")
			}

		case <-tick:
			t := now()
			hbData := ctrl.CheckHeartbeat(t, heartbeat)
			if hbData == nil {
				continue
			}

			c := hbData.Counts
			log.With("uptime", hbData.Uptime).
				With("up", c.VolumeUp).
				With("down", c.VolumeDown).
				With("mute", c.Mute).
				With("unmute", c.Unmute).
				With("ignored", c.Ignored).
				With("mixerErrors", c.MixerErrors).
				Debug("Heartbeat.")

			hbEvent := mqtt.SystemEvent{
				Timestamp: hbData.Timestamp,
				Event:     "HEARTBEAT",
			}
			if tracker != nil {
				updateTracker()
				snap := tracker.Snapshot()
				hbEvent.RawPayload = status.FormatStatusEvent(snap, "HEARTBEAT", "")
			}
			if err := publisher.PublishSystem(hbEvent); err != nil {
				log.WithError(err).Warn("Cannot publish heartbeat.")
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// refreshLoop re-reads network and host state every interval until ctx ends.
func refreshLoop(ctx context.Context, envFile string, tracker *status.Tracker, interval time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		refreshHostState(envFile, tracker)
	}
}

func refreshHostState(envFile string, tracker *status.Tracker) {
	if net := readNetworkInfo(envFile); net != nil {
		tracker.SetNetwork(net)
	}
	host, err := status.ReadHostInfo()
	if err != nil {
		log.WithError(err).Debug("Cannot read host info.")
		return
	}
	tracker.SetHost(host)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

// readNetworkInfo reads pi-helper's env file. Variables missing from the file
// fall back to the process environment. Returns nil without a network status.
func readNetworkInfo(envFile string) *status.NetworkInfo {
	vars := map[string]string{}
	if envFile != "" {
		if v, err := godotenv.Read(envFile); err == nil {
			vars = v
		} else if !os.IsNotExist(err) {
			log.WithError(err).
				With("file", envFile).
				Debug("Cannot read network env file.")
		}
	}
	get := func(key string) string {
		if v, ok := vars[key]; ok {
			return v
		}
		return os.Getenv(key)
	}

	s := get(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       get(envNetworkType),
		IP:         get(envNetworkIP),
		Status:     s,
		Gateway:    get(envNetworkGateway),
		WifiStatus: get(envNetworkWifiStatus),
		SSID:       get(envNetworkWifiSSID),
	}
}
