package mqtt

import log "github.com/echocat/slf4g"

// outboundMsg is a serialized message waiting for the sender.
type outboundMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox is a bounded FIFO of messages in publish order. When full, the
// oldest message is dropped to make room.
// Not safe for concurrent use; RealPublisher holds its lock around it.
type outbox struct {
	msgs     []outboundMsg
	first    int // index of the oldest message
	count    int
	dropped  int // dropped since the outbox was last empty
	capacity int
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{msgs: make([]outboundMsg, capacity), capacity: capacity}
}

// push appends msg, dropping the oldest message if the outbox is full.
func (o *outbox) push(msg outboundMsg) {
	if o.count == o.capacity {
		if o.dropped == 0 {
			log.With("capacity", o.capacity).Warn("MQTT outbox full; dropping oldest messages.")
		}
		o.dropped++
		o.first = (o.first + 1) % o.capacity
		o.count--
	}
	o.msgs[(o.first+o.count)%o.capacity] = msg
	o.count++
}

// pushFront puts msg back as the oldest message. A full outbox drops it,
// since it would be the first to go anyway.
func (o *outbox) pushFront(msg outboundMsg) {
	if o.count == o.capacity {
		o.dropped++
		return
	}
	o.first = (o.first + o.capacity - 1) % o.capacity
	o.msgs[o.first] = msg
	o.count++
}

// pop removes and returns the oldest message.
func (o *outbox) pop() (outboundMsg, bool) {
	if o.count == 0 {
		return outboundMsg{}, false
	}
	msg := o.msgs[o.first]
	o.msgs[o.first] = outboundMsg{}
	o.first = (o.first + 1) % o.capacity
	o.count--
	if o.count == 0 && o.dropped > 0 {
		log.With("dropped", o.dropped).Info("MQTT outbox drained.")
		o.dropped = 0
	}
	return msg, true
}

func (o *outbox) len() int {
	return o.count
}
