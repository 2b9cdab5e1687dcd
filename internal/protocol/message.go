package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of envelope tags. Adding a kind means adding a
// case to every switch over it; the routers log an error on anything
// unhandled rather than dropping it silently.
type Kind string

const (
	KindEvent    Kind = "event"
	KindDiceRoll Kind = "dice-roll"
	KindState    Kind = "state"
	KindError    Kind = "error"
)

// EventName tags a GameEvent. Names are namespaced "noun/verb".
type EventName string

const (
	EventSessionCreated EventName = "session/created"
	EventSessionJoined  EventName = "session/joined"
	EventPlayerJoined   EventName = "player/joined"
	EventPlayerLeft     EventName = "player/left"
	EventSceneCreate    EventName = "scene/create"
	EventSceneUpdate    EventName = "scene/update"
	EventSceneDelete    EventName = "scene/delete"
	EventSceneActivate  EventName = "scene/activate"
	EventTokenAdd       EventName = "token/add"
	EventTokenUpdate    EventName = "token/update"
	EventTokenRemove    EventName = "token/remove"
	EventCameraUpdate   EventName = "camera/update"
	EventDrawingAdd     EventName = "drawing/add"
	EventDrawingUndo    EventName = "drawing/undo"
	EventDrawingClear   EventName = "drawing/clear"
)

// IsDrawing reports whether the event belongs to the drawing/* family,
// which gets an extra local fan-out for drawing-sync listeners.
func (n EventName) IsDrawing() bool {
	return strings.HasPrefix(string(n), "drawing/")
}

// GameEvent is the unit of remote synchronization. On the wire it is the
// "event" payload, flattened: {"name": ..., ...fields}. Only the fields
// the named event uses are set.
type GameEvent struct {
	Name EventName `json:"name"`

	Session  *Session `json:"session,omitempty"`
	Player   *Player  `json:"player,omitempty"`
	PlayerID string   `json:"playerId,omitempty"`

	Scene   *Scene `json:"scene,omitempty"`
	SceneID string `json:"sceneId,omitempty"`

	Token   *PlacedToken `json:"token,omitempty"`
	TokenID string       `json:"tokenId,omitempty"`

	Camera *Camera `json:"camera,omitempty"`

	Drawing   *Drawing `json:"drawing,omitempty"`
	DrawingID string   `json:"drawingId,omitempty"`
}

// ErrorPayload is the "error" frame body.
type ErrorPayload struct {
	Message string `json:"message"`
}

// RoomNotFound is the session-invalidating server error. Receiving it
// means the room code is dead: clear everything and start over.
const RoomNotFound = "Room not found"

// Message is the wire envelope. Src identifies the originating player so
// receivers can skip frames they already applied optimistically.
type Message struct {
	Kind      Kind            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	Src       string          `json:"src,omitempty"`
}

func newMessage(kind Kind, src string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Message{
		Kind:      kind,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Src:       src,
	}, nil
}

// NewEventMessage wraps a GameEvent in an envelope.
func NewEventMessage(src string, ev GameEvent) (Message, error) {
	return newMessage(KindEvent, src, ev)
}

// NewDiceRollMessage wraps a DiceRoll in an envelope.
func NewDiceRollMessage(src string, roll DiceRoll) (Message, error) {
	return newMessage(KindDiceRoll, src, roll)
}

// NewStateMessage wraps a partial state patch in an envelope.
func NewStateMessage(patch StatePatch) (Message, error) {
	return newMessage(KindState, "", patch)
}

// NewErrorMessage wraps a server error in an envelope.
func NewErrorMessage(msg string) (Message, error) {
	return newMessage(KindError, "", ErrorPayload{Message: msg})
}

// Event decodes the payload of an "event" frame.
func (m Message) Event() (GameEvent, error) {
	var ev GameEvent
	if err := json.Unmarshal(m.Data, &ev); err != nil {
		return GameEvent{}, fmt.Errorf("decode event payload: %w", err)
	}
	if ev.Name == "" {
		return GameEvent{}, fmt.Errorf("event payload missing name")
	}
	return ev, nil
}

// DiceRoll decodes the payload of a "dice-roll" frame.
func (m Message) DiceRoll() (DiceRoll, error) {
	var roll DiceRoll
	if err := json.Unmarshal(m.Data, &roll); err != nil {
		return DiceRoll{}, fmt.Errorf("decode dice-roll payload: %w", err)
	}
	return roll, nil
}

// StatePatch decodes the payload of a "state" frame.
func (m Message) StatePatch() (StatePatch, error) {
	var patch StatePatch
	if err := json.Unmarshal(m.Data, &patch); err != nil {
		return StatePatch{}, fmt.Errorf("decode state payload: %w", err)
	}
	return patch, nil
}

// ErrorPayload decodes the payload of an "error" frame.
func (m Message) ErrorPayload() (ErrorPayload, error) {
	var p ErrorPayload
	if err := json.Unmarshal(m.Data, &p); err != nil {
		return ErrorPayload{}, fmt.Errorf("decode error payload: %w", err)
	}
	return p, nil
}
