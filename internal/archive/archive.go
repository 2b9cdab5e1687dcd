// Package archive persists room snapshots so a host can resume a room
// after the server restarts. Snapshots are stored as the JSON encoding
// of the room's GameState, keyed by room code.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/joelmale/nexus/internal/protocol"
)

// Archive is the persistence seam. The server runs on Memory unless a
// database is configured.
type Archive interface {
	Save(ctx context.Context, code string, state protocol.GameState) error
	Load(ctx context.Context, code string) (protocol.GameState, bool, error)
	Delete(ctx context.Context, code string) error
}

// Memory keeps snapshots in-process. Encoding to JSON detaches the
// stored copy from the caller's slices.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{snaps: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, code string, state protocol.GameState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", code, err)
	}
	m.mu.Lock()
	m.snaps[code] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, code string) (protocol.GameState, bool, error) {
	m.mu.RLock()
	data, ok := m.snaps[code]
	m.mu.RUnlock()
	if !ok {
		return protocol.GameState{}, false, nil
	}
	var state protocol.GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return protocol.GameState{}, false, fmt.Errorf("decode snapshot %s: %w", code, err)
	}
	return state, true, nil
}

func (m *Memory) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	delete(m.snaps, code)
	m.mu.Unlock()
	return nil
}
