package client

// ConnState is where the session connection currently sits.
type ConnState int

const (
	// StateDisconnected means no socket and no pending attempt.
	StateDisconnected ConnState = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the socket is open and frames flow.
	StateConnected

	// StateReconnecting means an abnormal close happened and the
	// backoff loop is driving retries.
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// StatusEvent is published on every connection-state transition. Err is
// set on terminal failures (reconnection exhausted, room not found) and
// on recoverable server errors surfaced without a state change.
type StatusEvent struct {
	Old ConnState
	New ConnState
	Err error
}
