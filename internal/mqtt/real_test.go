package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/rotary-volume/internal/logic"
)

type sentMsg struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeClient is the part of paho.Client that RealPublisher uses. Calling
// any other method panics on the nil embedded interface.
type fakeClient struct {
	paho.Client

	mu           sync.Mutex
	open         bool
	sent         []sentMsg
	failNext     error // returned by the next Publish, which also closes the connection
	rejectNext   error // returned by the next Publish, connection stays open
	release      chan struct{}
	disconnected bool
}

type fakeToken struct {
	paho.Token
	err     error
	release chan struct{}
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	if t.release == nil {
		return true
	}
	select {
	case <-t.release:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Error() error {
	return t.err
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failNext; err != nil {
		c.failNext = nil
		c.open = false
		return &fakeToken{err: err}
	}
	if err := c.rejectNext; err != nil {
		c.rejectNext = nil
		return &fakeToken{err: err}
	}
	c.sent = append(c.sent, sentMsg{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{release: c.release}
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.disconnected = true
}

func (c *fakeClient) setOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = open
}

func (c *fakeClient) messages() []sentMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMsg(nil), c.sent...)
}

// percents returns the percent of every volume event sent, in order.
func (c *fakeClient) percents(t *testing.T) []int {
	t.Helper()
	var out []int
	for _, m := range c.messages() {
		if m.topic != Topic {
			continue
		}
		var p Payload
		require.NoError(t, json.Unmarshal(m.payload, &p))
		out = append(out, p.Volume.Percent)
	}
	return out
}

// connect simulates paho opening the connection.
func (c *fakeClient) connect(p *RealPublisher) {
	c.setOpen(true)
	p.onConnect(c)
}

// drop simulates paho losing the connection.
func (c *fakeClient) drop(p *RealPublisher) {
	c.setOpen(false)
	p.onConnectionLost(c, errors.New("EOF"))
}

func newTestPublisher(t *testing.T, bufferSize int) (*RealPublisher, *fakeClient) {
	t.Helper()
	c := &fakeClient{}
	p := newRealPublisher("tcp://test:1883", bufferSize)
	p.client = c
	p.now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	p.start()
	t.Cleanup(func() { _ = p.Close() })
	return p, c
}

func volume(pct int) logic.Event {
	return logic.Event{Type: logic.EventVolumeUp, Percent: pct, Raw: int64(pct)}
}

func waitSent(t *testing.T, c *fakeClient, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.messages()) >= n }, time.Second, 5*time.Millisecond,
		"expected %d messages sent", n)
}

func TestRealPublisherQueuesUntilConnected(t *testing.T) {
	p, c := newTestPublisher(t, 10)

	for i := 1; i <= 3; i++ {
		require.NoError(t, p.Publish(volume(i)))
	}
	assert.Equal(t, 3, p.Buffered())
	assert.Never(t, func() bool { return len(c.messages()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	c.connect(p)
	waitSent(t, c, 3)
	assert.Equal(t, []int{1, 2, 3}, c.percents(t))
	assert.Equal(t, 0, p.Buffered())
	assert.Len(t, c.messages(), 3, "first connect is not announced")
}

func TestRealPublisherPublishRacingConnect(t *testing.T) {
	p, c := newTestPublisher(t, 200)

	const total = 100
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= total; i++ {
			assert.NoError(t, p.Publish(volume(i)))
		}
	}()
	c.connect(p)
	wg.Wait()

	waitSent(t, c, total)
	want := make([]int, total)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, c.percents(t), "nothing stranded and nothing reordered")
	assert.Equal(t, 0, p.Buffered())
}

func TestRealPublisherReconnectReplaysBacklogBeforeAnnouncing(t *testing.T) {
	p, c := newTestPublisher(t, 10)
	c.connect(p)

	require.NoError(t, p.Publish(volume(1)))
	waitSent(t, c, 1)

	c.drop(p)
	require.NoError(t, p.Publish(volume(2)))
	require.NoError(t, p.PublishSystem(SystemEvent{Event: "HEARTBEAT"}))
	assert.Equal(t, 2, p.Buffered())

	c.connect(p)
	require.NoError(t, p.Publish(volume(3)))
	waitSent(t, c, 5)

	msgs := c.messages()
	assert.Equal(t, []int{1, 2, 3}, c.percents(t))
	assert.Equal(t, TopicSystem, msgs[2].topic)
	assert.Contains(t, string(msgs[2].payload), "HEARTBEAT")
	assert.Equal(t, TopicSystem, msgs[3].topic)
	assert.Contains(t, string(msgs[3].payload), "RECONNECTED")
	assert.True(t, msgs[3].retained)
	assert.Equal(t, Topic, msgs[4].topic, "later publishes follow the replay")
}

func TestRealPublisherReplayAfterOverflowKeepsNewest(t *testing.T) {
	p, c := newTestPublisher(t, 3)

	for i := 1; i <= 5; i++ {
		require.NoError(t, p.Publish(volume(i)))
	}
	assert.Equal(t, 3, p.Buffered())

	c.connect(p)
	waitSent(t, c, 3)
	assert.Equal(t, []int{3, 4, 5}, c.percents(t))
}

func TestRealPublisherSlowBrokerDoesNotBlockCallers(t *testing.T) {
	p, c := newTestPublisher(t, 50)
	c.release = make(chan struct{})
	c.connect(p)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 20; i++ {
			_ = p.Publish(volume(i))
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on an unacknowledged token")
	}

	close(c.release)
	waitSent(t, c, 20)
	assert.Equal(t, 1, c.percents(t)[0])
	assert.Equal(t, 20, c.percents(t)[19])
}

func TestRealPublisherRequeuesOnConnectionDrop(t *testing.T) {
	p, c := newTestPublisher(t, 10)
	c.connect(p)

	c.mu.Lock()
	c.failNext = errors.New("not connected")
	c.mu.Unlock()

	require.NoError(t, p.Publish(volume(7)))
	require.Eventually(t, func() bool { return p.Buffered() == 1 && !c.IsConnectionOpen() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, c.messages())

	p.onConnectionLost(c, errors.New("EOF"))
	c.connect(p)
	waitSent(t, c, 2)

	assert.Equal(t, []int{7}, c.percents(t))
	assert.Contains(t, string(c.messages()[1].payload), "RECONNECTED")
}

func TestRealPublisherDropsRejectedMessage(t *testing.T) {
	p, c := newTestPublisher(t, 10)
	c.connect(p)

	c.mu.Lock()
	c.rejectNext = errors.New("packet too large")
	c.mu.Unlock()

	require.NoError(t, p.Publish(volume(1)))
	require.NoError(t, p.Publish(volume(2)))
	waitSent(t, c, 1)
	assert.Equal(t, []int{2}, c.percents(t))
	assert.Equal(t, 0, p.Buffered())
}

func TestRealPublisherCloseFlushesAndDisconnects(t *testing.T) {
	p, c := newTestPublisher(t, 10)
	c.connect(p)

	require.NoError(t, p.PublishSystem(SystemEvent{Event: "SHUTDOWN", Reason: "SIGTERM", Retained: true}))
	require.NoError(t, p.Close())

	msgs := c.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].payload), "SHUTDOWN")
	assert.True(t, msgs[0].retained)
	assert.True(t, c.disconnected)

	err := p.Publish(volume(1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, p.Close(), "second close is a no-op")
}

func TestRealPublisherCloseWhileOffline(t *testing.T) {
	p, c := newTestPublisher(t, 10)

	require.NoError(t, p.Publish(volume(1)))
	require.NoError(t, p.Close())
	assert.Empty(t, c.messages())
	assert.True(t, c.disconnected)
}
