// Package client implements the session-sync client: one websocket to
// the server, optimistic local mutation through the same event path
// remote changes take, reconnection with exponential backoff, and a
// bounded outbound queue for frames issued while offline.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/joelmale/nexus/internal/protocol"
)

const (
	defaultQueueCap       = 50
	defaultConnectTimeout = 10 * time.Second
	defaultBaseDelay      = time.Second
	defaultMaxAttempts    = 5
	writeTimeout          = 3 * time.Second
)

// ErrReconnectFailed is the terminal status error after every automatic
// retry has been spent. The session is cleared; a later manual Connect
// starts the backoff sequence from zero.
var ErrReconnectFailed = errors.New("reconnection attempts exhausted")

// ErrRoomNotFound is the terminal status error when the server reports
// the room code is dead.
var ErrRoomNotFound = errors.New("room not found")

// Options configures a Client. Zero values get sensible defaults.
type Options struct {
	// URL is the websocket endpoint, e.g. "ws://127.0.0.1:8080/ws".
	URL string

	// PlayerName is sent to the server at connect time.
	PlayerName string

	Logger         *zap.Logger
	QueueCap       int
	ConnectTimeout time.Duration
	BaseDelay      time.Duration
	MaxAttempts    int
}

// Client owns the socket and the session store. Construct one per
// session context and pass it by reference; there is no package-level
// singleton.
type Client struct {
	opts    Options
	log     *zap.Logger
	store   *Store
	backoff backoffPolicy

	// connectGroup collapses concurrent Connect calls into one dial.
	connectGroup singleflight.Group

	mu       sync.Mutex
	conn     *websocket.Conn
	state    ConnState
	queue    *sendQueue
	roomCode string
	role     protocol.Role
	closing  bool

	subMu      sync.Mutex
	msgSubs    map[chan protocol.Message]struct{}
	drawSubs   map[chan protocol.GameEvent]struct{}
	statusSubs map[chan StatusEvent]struct{}
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("client: URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.QueueCap <= 0 {
		opts.QueueCap = defaultQueueCap
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}

	return &Client{
		opts:    opts,
		log:     opts.Logger,
		store:   NewStore(opts.Logger),
		backoff: backoffPolicy{base: opts.BaseDelay, max: opts.MaxAttempts},
		state:   StateDisconnected,
		queue:   newSendQueue(opts.QueueCap),
	}, nil
}

// Store exposes the session state store for selectors.
func (c *Client) Store() *Store { return c.store }

// ConnState returns the current connection state.
func (c *Client) ConnState() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server. An empty roomCode with RoleHost starts a
// fresh room; RolePlayer joins an existing one; RoleHost with a code
// resumes it. Concurrent callers share a single in-flight dial, so at
// most one socket is ever created.
func (c *Client) Connect(ctx context.Context, roomCode string, role protocol.Role) error {
	_, err, _ := c.connectGroup.Do("connect", func() (any, error) {
		return nil, c.dial(ctx, roomCode, role)
	})
	return err
}

func (c *Client) dial(ctx context.Context, roomCode string, role protocol.Role) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	prev := c.state
	if c.state != StateReconnecting {
		c.state = StateConnecting
	}
	c.closing = false
	c.roomCode = roomCode
	c.role = role
	cur := c.state
	c.mu.Unlock()
	if cur != prev {
		c.notifyStatus(prev, cur, nil)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	endpoint := c.endpoint(roomCode, role)
	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		c.mu.Lock()
		fallback := StateDisconnected
		if prev == StateReconnecting {
			fallback = StateReconnecting
		}
		from := c.state
		c.state = fallback
		c.mu.Unlock()
		if from != fallback {
			c.notifyStatus(from, fallback, err)
		}
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}

	c.log.Info("connected", zap.String("endpoint", endpoint))

	// Flush everything queued while offline before reporting connected,
	// so queued frames go out ahead of any Send issued after open.
	c.mu.Lock()
	c.conn = conn
	for !c.queue.empty() {
		batch := c.queue.drain()
		c.mu.Unlock()
		for _, m := range batch {
			c.write(conn, m)
		}
		c.mu.Lock()
	}
	from := c.state
	c.state = StateConnected
	c.mu.Unlock()
	c.notifyStatus(from, StateConnected, nil)

	go c.readLoop(conn)
	return nil
}

func (c *Client) endpoint(roomCode string, role protocol.Role) string {
	q := url.Values{}
	if roomCode != "" {
		if role == protocol.RolePlayer {
			q.Set("join", roomCode)
		} else {
			q.Set("reconnect", roomCode)
		}
	}
	if c.opts.PlayerName != "" {
		q.Set("name", c.opts.PlayerName)
	}
	if enc := q.Encode(); enc != "" {
		return c.opts.URL + "?" + enc
	}
	return c.opts.URL
}

// Disconnect closes the socket with a normal closure and clears the
// session. It never triggers the reconnection controller.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.closing = true
	conn := c.conn
	c.conn = nil
	old := c.state
	c.state = StateDisconnected
	c.roomCode = ""
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	c.store.Reset()
	if old != StateDisconnected {
		c.notifyStatus(old, StateDisconnected, nil)
	}
}

// Send transmits a frame, or queues it while connecting/disconnected.
// It never fails; delivery of queued frames after a reconnect gap is
// best-effort.
func (c *Client) Send(msg protocol.Message) {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.queue.push(msg)
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()
	c.write(conn, msg)
}

func (c *Client) write(conn *websocket.Conn, msg protocol.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("encode outbound frame", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.log.Warn("write failed", zap.Error(err))
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.handleClosed(conn, err)
			return
		}
		var msg protocol.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		c.fanOutMessage(msg)
		c.route(msg)
	}
}

// handleClosed classifies a dead socket: normal and terminal closures
// end the session quietly, anything else hands off to the reconnection
// controller.
func (c *Client) handleClosed(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		// A stale read loop from a socket we already replaced.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	closing := c.closing
	roomCode := c.roomCode
	role := c.role
	status := websocket.CloseStatus(err)

	normal := closing ||
		status == websocket.StatusNormalClosure ||
		status == websocket.StatusGoingAway
	terminal := status == websocket.StatusCode(protocol.CloseRoomNotFound) ||
		status == websocket.StatusCode(protocol.CloseRoomShutdown)

	if normal || terminal {
		old := c.state
		c.state = StateDisconnected
		c.mu.Unlock()
		if old != StateDisconnected {
			c.notifyStatus(old, StateDisconnected, nil)
		}
		return
	}

	old := c.state
	c.state = StateReconnecting
	c.mu.Unlock()

	c.log.Warn("connection lost", zap.Error(err))
	c.notifyStatus(old, StateReconnecting, err)
	go c.reconnectLoop(roomCode, role)
}

// reconnectLoop retries with exponential backoff until it connects,
// the client is explicitly disconnected, or attempts run out. The
// attempt counter is loop-local, so a later manual Connect always
// restarts the sequence from zero.
func (c *Client) reconnectLoop(roomCode string, role protocol.Role) {
	for attempt := 1; !c.backoff.exhausted(attempt); attempt++ {
		delay := c.backoff.delay(attempt)
		c.log.Info("scheduling reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay))
		time.Sleep(delay)

		c.mu.Lock()
		stop := c.closing || c.state != StateReconnecting
		c.mu.Unlock()
		if stop {
			return
		}

		if err := c.Connect(context.Background(), roomCode, role); err != nil {
			c.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		c.log.Info("reconnected", zap.Int("attempt", attempt))
		return
	}

	c.log.Error("giving up on reconnection",
		zap.Int("attempts", c.backoff.max),
		zap.String("roomCode", roomCode))
	c.store.Reset()
	c.mu.Lock()
	old := c.state
	c.state = StateDisconnected
	c.roomCode = ""
	c.mu.Unlock()
	c.notifyStatus(old, StateDisconnected, ErrReconnectFailed)
}
