package client

import (
	"errors"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/protocol"
)

// route dispatches one inbound frame to exactly one handler. The switch
// is exhaustive over protocol.Kind; an unhandled tag is a programming
// error and is logged loudly rather than silently dropped.
func (c *Client) route(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindEvent:
		c.routeEvent(msg)

	case protocol.KindDiceRoll:
		roll, err := msg.DiceRoll()
		if err != nil {
			c.log.Warn("bad dice-roll frame", zap.Error(err))
			return
		}
		c.store.AddDiceRoll(roll)

	case protocol.KindState:
		patch, err := msg.StatePatch()
		if err != nil {
			c.log.Warn("bad state frame", zap.Error(err))
			return
		}
		c.store.ApplyPatch(patch)
		c.rememberRoomCode()

	case protocol.KindError:
		c.routeError(msg)

	default:
		c.log.Error("unhandled message kind", zap.String("kind", string(msg.Kind)))
	}
}

func (c *Client) routeEvent(msg protocol.Message) {
	ev, err := msg.Event()
	if err != nil {
		c.log.Warn("bad event frame", zap.Error(err))
		return
	}

	// Our own frames come back from the room broadcast; the store
	// already applied them optimistically.
	if msg.Src != "" && msg.Src == c.store.PlayerID() {
		return
	}

	c.store.ApplyEvent(ev)

	if ev.Name == protocol.EventSessionCreated || ev.Name == protocol.EventSessionJoined {
		c.rememberRoomCode()
	}
	if ev.Name.IsDrawing() {
		c.fanOutDrawing(ev)
	}
}

func (c *Client) routeError(msg protocol.Message) {
	p, err := msg.ErrorPayload()
	if err != nil {
		c.log.Warn("bad error frame", zap.Error(err))
		return
	}

	if p.Message != protocol.RoomNotFound {
		// Recoverable: surface it, touch nothing.
		c.log.Warn("server error", zap.String("message", p.Message))
		cur := c.ConnState()
		c.notifyStatus(cur, cur, errors.New(p.Message))
		return
	}

	// Session-invalidating: the room is gone. Clear everything and do
	// not let the closure that follows trigger reconnection.
	c.log.Warn("room not found, clearing session")
	c.store.Reset()

	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	old := c.state
	c.state = StateDisconnected
	c.roomCode = ""
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "room not found")
	}
	c.notifyStatus(old, StateDisconnected, ErrRoomNotFound)
}

// rememberRoomCode keeps the transport's notion of "last known room
// code" in sync with the store, for reconnects.
func (c *Client) rememberRoomCode() {
	if code := c.store.RoomCode(); code != "" {
		c.mu.Lock()
		c.roomCode = code
		c.mu.Unlock()
	}
}
