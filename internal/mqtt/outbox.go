package mqtt

// outMsg is a serialized message waiting for the broker.
type outMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages published while the broker is unreachable. A
// retained message supersedes any queued message on the same topic, so a
// long outage keeps the latest pin states instead of a history of them.
// When full the oldest message is dropped. The caller synchronizes.
type outbox struct {
	msgs     []outMsg
	capacity int
	// dropped counts evictions since the last drain.
	dropped int
}

func newOutbox(capacity int) *outbox {
	if capacity < 1 {
		capacity = 1
	}
	return &outbox{capacity: capacity}
}

// add queues msg. It reports whether an older message was evicted to make
// room; superseding a retained message is not an eviction.
func (o *outbox) add(msg outMsg) (evicted bool) {
	if msg.retained {
		for i, m := range o.msgs {
			if m.topic == msg.topic {
				o.msgs = append(o.msgs[:i], o.msgs[i+1:]...)
				break
			}
		}
	}
	if len(o.msgs) == o.capacity {
		o.msgs = o.msgs[1:]
		o.dropped++
		evicted = true
	}
	o.msgs = append(o.msgs, msg)
	return evicted
}

// drain returns the queued messages oldest first along with the number
// dropped since the previous drain, and empties the outbox.
func (o *outbox) drain() ([]outMsg, int) {
	msgs, dropped := o.msgs, o.dropped
	o.msgs, o.dropped = nil, 0
	return msgs, dropped
}

func (o *outbox) len() int {
	return len(o.msgs)
}
