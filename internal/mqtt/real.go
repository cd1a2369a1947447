package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/echocat/slf4g"

	"github.com/sweeney/rotary-volume/internal/logic"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 100

const (
	publishTimeout = 5 * time.Second
	flushTimeout   = 2 * time.Second
	retryInterval  = time.Second
)

// ErrClosed is returned by publishes after Close.
var ErrClosed = errors.New("publisher closed")

var errPublishTimeout = errors.New("publish timed out")

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string
	ConnectTimeout time.Duration // zero selects 10s
	BufferSize     int           // zero selects DefaultBufferSize
}

// RealPublisher publishes to an actual MQTT broker.
//
// Publish and PublishSystem only queue the message; a single sender
// goroutine delivers the queue in order. While the broker is unreachable
// messages stay queued, up to the buffer size, and are replayed on
// reconnect before anything published later.
type RealPublisher struct {
	client paho.Client
	topic  string
	broker string
	now    func() time.Time

	mu     sync.Mutex
	outbox *outbox
	online bool // between OnConnect and ConnectionLost
	seen   bool // an OnConnect has been seen at least once
	closed bool

	wake      chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newRealPublisher(broker string, bufferSize int) *RealPublisher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &RealPublisher{
		topic:   Topic,
		broker:  broker,
		now:     time.Now,
		outbox:  newOutbox(bufferSize),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// NewRealPublisher creates a publisher for the given broker. A broker that
// does not answer within the connect timeout is not an error: paho keeps
// retrying in the background and messages are queued meanwhile.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "rotary-volume"
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}

	p := newRealPublisher(o.Broker, o.BufferSize)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.start()

	token := p.client.Connect()
	if !token.WaitTimeout(o.ConnectTimeout) {
		log.With("broker", o.Broker).
			With("timeout", o.ConnectTimeout).
			Warn("MQTT broker not reachable yet; retrying in background.")
		return p, nil
	}
	if err := token.Error(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) start() {
	go p.sendLoop()
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	reconnect := p.seen
	p.seen, p.online = true, true
	pending := p.outbox.len()
	if reconnect {
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err == nil {
			// Retained so it replaces the broker's OFFLINE will.
			p.outbox.push(outboundMsg{topic: TopicSystem, payload: payload, qos: 1, retained: true})
		}
	}
	p.mu.Unlock()

	if pending > 0 {
		log.With("messages", pending).Info("Replaying buffered MQTT messages.")
	}
	p.signal()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.online = false
	p.mu.Unlock()

	log.WithError(err).
		With("broker", p.broker).
		Warn("MQTT connection lost; buffering until reconnect.")
}

// Publish queues a volume event for the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	if err := p.send(p.topic, 0, false, payload); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem queues a system lifecycle event for the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	if err := p.send(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.outbox.push(outboundMsg{topic: topic, payload: payload, qos: qos, retained: retained})
	p.signal()
	return nil
}

func (p *RealPublisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *RealPublisher) sendLoop() {
	defer close(p.stopped)

	var retry <-chan time.Time
	for {
		select {
		case <-p.wake:
		case <-retry:
		case <-p.stop:
			p.flush()
			return
		}
		retry = nil
		if !p.drain() {
			retry = time.After(retryInterval)
		}
	}
}

// next pops the oldest message if the connection is up.
func (p *RealPublisher) next() (outboundMsg, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online {
		return outboundMsg{}, false
	}
	return p.outbox.pop()
}

// drain delivers queued messages until the outbox is empty or the
// connection is down. It returns false if a message had to be requeued.
func (p *RealPublisher) drain() bool {
	for {
		msg, ok := p.next()
		if !ok {
			return true
		}
		if !p.deliver(msg, publishTimeout) {
			return false
		}
	}
}

func (p *RealPublisher) flush() {
	deadline := time.Now().Add(flushTimeout)
	for time.Now().Before(deadline) {
		msg, ok := p.next()
		if !ok || !p.deliver(msg, time.Until(deadline)) {
			return
		}
	}
}

// deliver publishes msg and waits up to timeout for paho to accept it. A
// message that fails because the connection went away is put back at the
// front of the outbox and deliver returns false. Any other failure drops it.
func (p *RealPublisher) deliver(msg outboundMsg, timeout time.Duration) bool {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	err := errPublishTimeout
	if token.WaitTimeout(timeout) {
		err = token.Error()
	}
	if err == nil {
		return true
	}

	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.outbox.pushFront(msg)
		p.mu.Unlock()
		log.WithError(err).With("topic", msg.topic).Debug("MQTT publish interrupted; message requeued.")
		return false
	}
	log.WithError(err).With("topic", msg.topic).Warn("MQTT publish failed; message dropped.")
	return true
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages not yet handed to the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close stops accepting messages, gives the sender a short time to flush
// what is queued, and disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		close(p.stop)
		<-p.stopped
		if n := p.Buffered(); n > 0 {
			log.With("messages", n).Warn("Unsent MQTT messages discarded.")
		}
		p.client.Disconnect(1000) // 1 second timeout
	})
	return nil
}
