package client

import (
	"github.com/joelmale/nexus/internal/protocol"
)

const subBuffer = 16

// SubscribeMessages delivers every inbound frame, before routing. The
// returned cancel func must be called when done. Slow subscribers lose
// frames rather than stalling the read loop.
func (c *Client) SubscribeMessages() (<-chan protocol.Message, func()) {
	ch := make(chan protocol.Message, subBuffer)
	c.subMu.Lock()
	if c.msgSubs == nil {
		c.msgSubs = make(map[chan protocol.Message]struct{})
	}
	c.msgSubs[ch] = struct{}{}
	c.subMu.Unlock()
	return ch, func() {
		c.subMu.Lock()
		delete(c.msgSubs, ch)
		c.subMu.Unlock()
	}
}

// SubscribeDrawing delivers remote drawing/* events after they are
// applied to the store, for canvas listeners that want strokes as they
// happen.
func (c *Client) SubscribeDrawing() (<-chan protocol.GameEvent, func()) {
	ch := make(chan protocol.GameEvent, subBuffer)
	c.subMu.Lock()
	if c.drawSubs == nil {
		c.drawSubs = make(map[chan protocol.GameEvent]struct{})
	}
	c.drawSubs[ch] = struct{}{}
	c.subMu.Unlock()
	return ch, func() {
		c.subMu.Lock()
		delete(c.drawSubs, ch)
		c.subMu.Unlock()
	}
}

// SubscribeStatus delivers connection-state transitions and surfaced
// server errors.
func (c *Client) SubscribeStatus() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, subBuffer)
	c.subMu.Lock()
	if c.statusSubs == nil {
		c.statusSubs = make(map[chan StatusEvent]struct{})
	}
	c.statusSubs[ch] = struct{}{}
	c.subMu.Unlock()
	return ch, func() {
		c.subMu.Lock()
		delete(c.statusSubs, ch)
		c.subMu.Unlock()
	}
}

func (c *Client) fanOutMessage(msg protocol.Message) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.msgSubs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (c *Client) fanOutDrawing(ev protocol.GameEvent) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.drawSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Client) notifyStatus(old, new ConnState, err error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for ch := range c.statusSubs {
		select {
		case ch <- StatusEvent{Old: old, New: new, Err: err}:
		default:
		}
	}
}
