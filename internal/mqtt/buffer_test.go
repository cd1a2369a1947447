package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msgN(n int) outboundMsg {
	return outboundMsg{topic: Topic, payload: []byte{byte(n)}}
}

// popAll empties o and returns the first payload byte of each message.
func popAll(o *outbox) []int {
	var out []int
	for {
		msg, ok := o.pop()
		if !ok {
			return out
		}
		out = append(out, int(msg.payload[0]))
	}
}

func TestOutboxPopEmpty(t *testing.T) {
	o := newOutbox(3)
	_, ok := o.pop()
	assert.False(t, ok)
	assert.Equal(t, 0, o.len())
}

func TestOutboxFIFOAcrossWraparound(t *testing.T) {
	o := newOutbox(3)

	// Interleave pushes and pops so the start index walks around the slice.
	o.push(msgN(1))
	o.push(msgN(2))
	got, _ := o.pop()
	assert.Equal(t, byte(1), got.payload[0])
	o.push(msgN(3))
	o.push(msgN(4))
	assert.Equal(t, 3, o.len())

	assert.Equal(t, []int{2, 3, 4}, popAll(o))
}

func TestOutboxOverflowKeepsNewest(t *testing.T) {
	o := newOutbox(3)
	for i := 1; i <= 7; i++ {
		o.push(msgN(i))
	}
	assert.Equal(t, 3, o.len())
	assert.Equal(t, 4, o.dropped)

	assert.Equal(t, []int{5, 6, 7}, popAll(o))
	assert.Equal(t, 0, o.dropped, "drop count resets once empty")
}

func TestOutboxPushFrontRestoresOrder(t *testing.T) {
	o := newOutbox(4)
	o.push(msgN(1))
	o.push(msgN(2))

	first, ok := o.pop()
	require.True(t, ok)
	o.push(msgN(3))
	o.pushFront(first)

	assert.Equal(t, []int{1, 2, 3}, popAll(o))
}

func TestOutboxPushFrontWhenFullDrops(t *testing.T) {
	o := newOutbox(2)
	o.push(msgN(1))
	o.push(msgN(2))

	o.pushFront(msgN(0))
	assert.Equal(t, []int{1, 2}, popAll(o))
}

func TestOutboxMinimumCapacity(t *testing.T) {
	o := newOutbox(0)
	o.push(msgN(1))
	o.push(msgN(2))
	assert.Equal(t, []int{2}, popAll(o))
}

func TestOutboxKeepsMessageFields(t *testing.T) {
	o := newOutbox(1)
	o.push(outboundMsg{topic: TopicSystem, payload: []byte(`{"system":{}}`), qos: 1, retained: true})

	got, ok := o.pop()
	require.True(t, ok)
	assert.Equal(t, outboundMsg{topic: TopicSystem, payload: []byte(`{"system":{}}`), qos: 1, retained: true}, got)
}
