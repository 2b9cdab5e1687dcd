package game

import (
	"errors"
	"slices"

	"github.com/joelmale/nexus/internal/protocol"
)

var ErrUnknownEvent = errors.New("unknown event")
var ErrMalformedEvent = errors.New("malformed event")
var ErrUnknownScene = errors.New("unknown scene")

// Apply runs one GameEvent against a state and returns the new state.
// It never mutates s: slices touched by the event are cloned first, so
// both the server room and the client store can call it on live state.
//
// Set-style events (camera/update, scene/update, ...) are idempotent.
// Append-style events (scene/create, token/add, drawing/add) dedupe by
// entity id, which makes them safe under at-least-once delivery too.
func Apply(s protocol.GameState, ev protocol.GameEvent) (protocol.GameState, error) {
	next := s

	switch ev.Name {
	case protocol.EventSessionCreated, protocol.EventSessionJoined:
		if ev.Session == nil {
			return s, ErrMalformedEvent
		}
		sess := *ev.Session
		sess.Players = slices.Clone(ev.Session.Players)
		next.Session = &sess
		return next, nil

	case protocol.EventPlayerJoined:
		if ev.Player == nil || s.Session == nil {
			return s, ErrMalformedEvent
		}
		sess := *s.Session
		sess.Players = slices.Clone(s.Session.Players)
		if p := sess.FindPlayer(ev.Player.ID); p != nil {
			*p = *ev.Player
		} else {
			sess.Players = append(sess.Players, *ev.Player)
		}
		next.Session = &sess
		return next, nil

	case protocol.EventPlayerLeft:
		if s.Session == nil || ev.PlayerID == "" {
			return s, ErrMalformedEvent
		}
		sess := *s.Session
		sess.Players = slices.Clone(s.Session.Players)
		if p := sess.FindPlayer(ev.PlayerID); p != nil {
			p.Connected = false
		}
		next.Session = &sess
		return next, nil

	case protocol.EventSceneCreate:
		if ev.Scene == nil {
			return s, ErrMalformedEvent
		}
		if s.FindScene(ev.Scene.ID) != nil {
			return s, nil // already created
		}
		next.Scenes = append(slices.Clone(s.Scenes), cloneScene(*ev.Scene))
		return next, nil

	case protocol.EventSceneUpdate:
		if ev.Scene == nil {
			return s, ErrMalformedEvent
		}
		next.Scenes = slices.Clone(s.Scenes)
		sc := next.FindScene(ev.Scene.ID)
		if sc == nil {
			return s, ErrUnknownScene
		}
		*sc = cloneScene(*ev.Scene)
		return next, nil

	case protocol.EventSceneDelete:
		if ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		next.Scenes = slices.DeleteFunc(slices.Clone(s.Scenes), func(sc protocol.Scene) bool {
			return sc.ID == ev.SceneID
		})
		if next.ActiveSceneID == ev.SceneID {
			next.ActiveSceneID = ""
		}
		return next, nil

	case protocol.EventSceneActivate:
		if ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		if s.FindScene(ev.SceneID) == nil {
			return s, ErrUnknownScene
		}
		next.ActiveSceneID = ev.SceneID
		return next, nil

	case protocol.EventTokenAdd:
		if ev.Token == nil || ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		return withScene(s, ev.SceneID, func(sc *protocol.Scene) {
			if tokenIndex(sc.Tokens, ev.Token.ID) >= 0 {
				return // already placed
			}
			sc.Tokens = append(slices.Clone(sc.Tokens), *ev.Token)
		})

	case protocol.EventTokenUpdate:
		if ev.Token == nil || ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		return withScene(s, ev.SceneID, func(sc *protocol.Scene) {
			sc.Tokens = slices.Clone(sc.Tokens)
			if i := tokenIndex(sc.Tokens, ev.Token.ID); i >= 0 {
				sc.Tokens[i] = *ev.Token
			}
		})

	case protocol.EventTokenRemove:
		if ev.TokenID == "" || ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		return withScene(s, ev.SceneID, func(sc *protocol.Scene) {
			sc.Tokens = slices.DeleteFunc(slices.Clone(sc.Tokens), func(t protocol.PlacedToken) bool {
				return t.ID == ev.TokenID
			})
		})

	case protocol.EventCameraUpdate:
		if ev.Camera == nil {
			return s, ErrMalformedEvent
		}
		next.Camera = *ev.Camera
		return next, nil

	case protocol.EventDrawingAdd:
		if ev.Drawing == nil || ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		return withScene(s, ev.SceneID, func(sc *protocol.Scene) {
			for _, d := range sc.Drawings {
				if d.ID == ev.Drawing.ID {
					return
				}
			}
			sc.Drawings = append(slices.Clone(sc.Drawings), *ev.Drawing)
		})

	case protocol.EventDrawingUndo:
		if ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		return withScene(s, ev.SceneID, func(sc *protocol.Scene) {
			sc.Drawings = slices.Clone(sc.Drawings)
			if ev.DrawingID != "" {
				sc.Drawings = slices.DeleteFunc(sc.Drawings, func(d protocol.Drawing) bool {
					return d.ID == ev.DrawingID
				})
			} else if len(sc.Drawings) > 0 {
				sc.Drawings = sc.Drawings[:len(sc.Drawings)-1]
			}
		})

	case protocol.EventDrawingClear:
		if ev.SceneID == "" {
			return s, ErrMalformedEvent
		}
		return withScene(s, ev.SceneID, func(sc *protocol.Scene) {
			sc.Drawings = nil
		})

	default:
		return s, ErrUnknownEvent
	}
}

// withScene clones the scene list, lets fn edit the target scene in
// place, and returns the new state. ErrUnknownScene if the id misses.
func withScene(s protocol.GameState, sceneID string, fn func(*protocol.Scene)) (protocol.GameState, error) {
	next := s
	next.Scenes = slices.Clone(s.Scenes)
	sc := next.FindScene(sceneID)
	if sc == nil {
		return s, ErrUnknownScene
	}
	fn(sc)
	return next, nil
}

func tokenIndex(tokens []protocol.PlacedToken, id string) int {
	return slices.IndexFunc(tokens, func(t protocol.PlacedToken) bool { return t.ID == id })
}

func cloneScene(sc protocol.Scene) protocol.Scene {
	sc.Tokens = slices.Clone(sc.Tokens)
	sc.Drawings = slices.Clone(sc.Drawings)
	return sc
}

// CloneState deep-copies the slices of a GameState so a snapshot can
// leave the owning goroutine safely.
func CloneState(s protocol.GameState) protocol.GameState {
	next := s
	if s.Session != nil {
		sess := *s.Session
		sess.Players = slices.Clone(s.Session.Players)
		next.Session = &sess
	}
	next.Scenes = make([]protocol.Scene, len(s.Scenes))
	for i, sc := range s.Scenes {
		next.Scenes[i] = cloneScene(sc)
	}
	next.DiceRolls = slices.Clone(s.DiceRolls)
	return next
}
