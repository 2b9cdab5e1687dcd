package client

import "github.com/joelmale/nexus/internal/protocol"

// sendQueue buffers outbound messages while the socket is down. It is a
// bounded FIFO: once full, the oldest entry is evicted so the freshest
// actions survive a long outage. Not safe for concurrent use; the
// Client holds its own lock.
type sendQueue struct {
	cap  int
	msgs []protocol.Message
}

func newSendQueue(capacity int) *sendQueue {
	return &sendQueue{cap: capacity}
}

func (q *sendQueue) push(msg protocol.Message) {
	if len(q.msgs) >= q.cap {
		drop := len(q.msgs) - q.cap + 1
		q.msgs = append(q.msgs[:0], q.msgs[drop:]...)
	}
	q.msgs = append(q.msgs, msg)
}

func (q *sendQueue) len() int { return len(q.msgs) }

func (q *sendQueue) empty() bool { return len(q.msgs) == 0 }

// drain returns every queued message in FIFO order and empties the queue.
func (q *sendQueue) drain() []protocol.Message {
	out := q.msgs
	q.msgs = nil
	return out
}
