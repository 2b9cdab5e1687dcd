package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/game"
	"github.com/joelmale/nexus/internal/protocol"
)

// Store is the single source of truth for everything session-scoped:
// room, players, scenes, camera, dice history. All writes funnel through
// ApplyEvent / ApplyPatch / AddDiceRoll so local and remote changes take
// the same path; readers get copies and never see internal state.
type Store struct {
	log *zap.Logger

	mu       sync.RWMutex
	playerID string
	state    protocol.GameState
}

func NewStore(log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{log: log}
}

// ApplyEvent runs one GameEvent against the store. It is the sole entry
// point for remote changes and the second half of every local mutation.
// Unknown or malformed events are logged and ignored, never fatal.
func (s *Store) ApplyEvent(ev protocol.GameEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := game.Apply(s.state, ev)
	if err != nil {
		s.log.Warn("ignoring event",
			zap.String("event", string(ev.Name)),
			zap.Error(err))
		return
	}
	s.state = next

	// session/created and session/joined carry the player record the
	// server minted for us; that's where our identity comes from.
	if (ev.Name == protocol.EventSessionCreated || ev.Name == protocol.EventSessionJoined) && ev.Player != nil {
		s.playerID = ev.Player.ID
	}
}

// ApplyPatch merges a partial top-level state frame. Present fields
// replace wholesale; absent fields are untouched.
func (s *Store) ApplyPatch(patch protocol.StatePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if patch.Session != nil {
		s.state.Session = patch.Session
	}
	if patch.Scenes != nil {
		s.state.Scenes = *patch.Scenes
	}
	if patch.ActiveSceneID != nil {
		s.state.ActiveSceneID = *patch.ActiveSceneID
	}
	if patch.Camera != nil {
		s.state.Camera = *patch.Camera
	}
	if patch.DiceRolls != nil {
		s.state.DiceRolls = *patch.DiceRolls
	}
}

// AddDiceRoll appends to the bounded roll history. Duplicate roll ids
// are dropped so a local roll and its server echo land once.
func (s *Store) AddDiceRoll(roll protocol.DiceRoll) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.state.DiceRolls {
		if r.ID == roll.ID {
			return
		}
	}
	s.state.DiceRolls = append(s.state.DiceRolls, roll)
	if n := len(s.state.DiceRolls); n > protocol.MaxDiceHistory {
		s.state.DiceRolls = append(s.state.DiceRolls[:0], s.state.DiceRolls[n-protocol.MaxDiceHistory:]...)
	}
}

// Reset clears all session-scoped state. Called on explicit disconnect,
// on "Room not found", and on reconnection exhaustion.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerID = ""
	s.state = protocol.GameState{}
}

// PlayerID returns this client's identity within the session, empty
// until the server confirms the join.
func (s *Store) PlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playerID
}

// Session returns a copy of the current session, or nil when not in a
// room.
func (s *Store) Session() *protocol.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Session == nil {
		return nil
	}
	cloned := game.CloneState(s.state)
	return cloned.Session
}

// RoomCode returns the current room code, empty when not in a room.
func (s *Store) RoomCode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.Session == nil {
		return ""
	}
	return s.state.Session.RoomCode
}

// Camera returns the current viewport.
func (s *Store) Camera() protocol.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Camera
}

// Scenes returns a deep copy of the scene list.
func (s *Store) Scenes() []protocol.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return game.CloneState(s.state).Scenes
}

// ActiveScene returns a copy of the active scene, if one is set.
func (s *Store) ActiveScene() (protocol.Scene, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc := s.state.FindScene(s.state.ActiveSceneID)
	if sc == nil {
		return protocol.Scene{}, false
	}
	cloned := game.CloneState(s.state)
	return *cloned.FindScene(s.state.ActiveSceneID), true
}

// DiceRolls returns a copy of the roll history, oldest first.
func (s *Store) DiceRolls() []protocol.DiceRoll {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]protocol.DiceRoll, len(s.state.DiceRolls))
	copy(out, s.state.DiceRolls)
	return out
}

// State returns a deep copy of the full game state, the input to a
// campaign export.
func (s *Store) State() protocol.GameState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return game.CloneState(s.state)
}
