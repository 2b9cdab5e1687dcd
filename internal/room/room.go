// Package room hosts one live game room as an actor: a goroutine owning
// the authoritative state, fed through a channel inbox, broadcasting
// every accepted frame to the members' outboxes.
package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/archive"
	"github.com/joelmale/nexus/internal/game"
	"github.com/joelmale/nexus/internal/protocol"
)

type Msg interface{ isRoomMsg() }

// Join registers a member. Reply receives the player record the room
// settled on; a returning player gets their old identity back.
type Join struct {
	Player protocol.Player
	Rejoin bool
	Outbox chan protocol.Message
	Reply  chan protocol.Player
}

func (Join) isRoomMsg() {}

// Leave marks a player disconnected and removes their outbox.
type Leave struct{ PlayerID string }

func (Leave) isRoomMsg() {}

// FromClient carries one inbound frame, already stamped with its
// originating player in Frame.Src.
type FromClient struct {
	Frame protocol.Message
}

func (FromClient) isRoomMsg() {}

// GetState reflects internal state without data races. Test hook.
type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// View is a read-only copy of room internals.
type View struct {
	Version    int
	NumMembers int
	State      protocol.GameState
}

// Room is the actor. All fields are owned by the loop goroutine.
type Room struct {
	code    string
	inbox   chan Msg
	state   protocol.GameState
	version int
	members map[string]chan protocol.Message
	arch    archive.Archive
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New starts a room. A state restored from the archive comes in with
// its players marked disconnected; a zero GameState starts fresh.
func New(parent context.Context, code string, initial protocol.GameState, arch archive.Archive, log *zap.Logger) *Room {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	if initial.Session == nil {
		initial.Session = &protocol.Session{RoomCode: code}
	}
	initial.Session.RoomCode = code
	for i := range initial.Session.Players {
		initial.Session.Players[i].Connected = false
	}

	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64),
		state:   initial,
		members: make(map[string]chan protocol.Message),
		arch:    arch,
		log:     log.With(zap.String("room", code)),
		ctx:     ctx,
		cancel:  cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room has shut down. Senders select on it so
// they never block on an inbox nobody drains anymore.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) Code() string { return r.code }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				r.handleLeave(msg)

			case FromClient:
				r.handleFrame(msg.Frame)

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumMembers: len(r.members),
					State:      game.CloneState(r.state),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	p := msg.Player

	welcome := protocol.EventSessionJoined
	if len(r.state.Session.Players) == 0 {
		welcome = protocol.EventSessionCreated
	}

	// A returning player keeps their identity: match a disconnected
	// member by name and role.
	rejoined := false
	for i := range r.state.Session.Players {
		ex := &r.state.Session.Players[i]
		if !ex.Connected && ex.Name == p.Name && ex.Role == p.Role {
			p.ID = ex.ID
			rejoined = true
			break
		}
	}
	p.Connected = true

	next, err := game.Apply(r.state, protocol.GameEvent{Name: protocol.EventPlayerJoined, Player: &p})
	if err != nil {
		r.log.Error("join apply failed", zap.Error(err))
		msg.Reply <- p
		return
	}
	r.state = next
	r.version++
	r.members[p.ID] = msg.Outbox
	msg.Reply <- p

	r.log.Info("player joined",
		zap.String("player", p.Name),
		zap.String("role", string(p.Role)),
		zap.Bool("rejoin", rejoined))

	// Tell the joiner who they are and what room they are in.
	sess := game.CloneState(r.state).Session
	if frame, err := protocol.NewEventMessage("", protocol.GameEvent{
		Name:    welcome,
		Session: sess,
		Player:  &p,
	}); err == nil {
		r.deliver(p.ID, frame)
	}

	// A room with history also pushes a full state frame so the joiner
	// converges without replaying anything.
	if msg.Rejoin || rejoined || len(r.state.Scenes) > 0 || len(r.state.DiceRolls) > 0 {
		r.sendFullState(p.ID)
	}

	// Everyone else just hears about the new player.
	if frame, err := protocol.NewEventMessage("", protocol.GameEvent{
		Name:   protocol.EventPlayerJoined,
		Player: &p,
	}); err == nil {
		r.broadcastExcept(p.ID, frame)
	}
}

func (r *Room) handleLeave(msg Leave) {
	ch, ok := r.members[msg.PlayerID]
	if !ok {
		return
	}
	close(ch)
	delete(r.members, msg.PlayerID)

	next, err := game.Apply(r.state, protocol.GameEvent{
		Name:     protocol.EventPlayerLeft,
		PlayerID: msg.PlayerID,
	})
	if err == nil {
		r.state = next
		r.version++
	}

	if frame, err := protocol.NewEventMessage("", protocol.GameEvent{
		Name:     protocol.EventPlayerLeft,
		PlayerID: msg.PlayerID,
	}); err == nil {
		r.broadcast(frame)
	}

	// Last one out: archive the room so a host can resume it later.
	if len(r.members) == 0 {
		r.save()
	}
}

// handleFrame applies one client frame to the authoritative state and,
// on success, rebroadcasts it verbatim (Src intact) to every member.
func (r *Room) handleFrame(frame protocol.Message) {
	switch frame.Kind {
	case protocol.KindEvent:
		ev, err := frame.Event()
		if err != nil {
			r.log.Warn("bad event frame", zap.Error(err))
			return
		}
		if !clientEvent(ev.Name) {
			r.log.Warn("rejecting server-only event", zap.String("event", string(ev.Name)))
			return
		}
		next, err := game.Apply(r.state, ev)
		if err != nil {
			r.log.Warn("ignoring event",
				zap.String("event", string(ev.Name)),
				zap.Error(err))
			return
		}
		r.state = next
		r.version++
		r.broadcast(frame)

	case protocol.KindDiceRoll:
		roll, err := frame.DiceRoll()
		if err != nil {
			r.log.Warn("bad dice-roll frame", zap.Error(err))
			return
		}
		r.state.DiceRolls = append(r.state.DiceRolls, roll)
		if n := len(r.state.DiceRolls); n > protocol.MaxDiceHistory {
			r.state.DiceRolls = append(r.state.DiceRolls[:0], r.state.DiceRolls[n-protocol.MaxDiceHistory:]...)
		}
		r.version++
		r.broadcast(frame)

	case protocol.KindState:
		// Hosts push scene replacements on campaign import. Session
		// membership stays server-owned regardless of what the patch
		// carries.
		patch, err := frame.StatePatch()
		if err != nil {
			r.log.Warn("bad state frame", zap.Error(err))
			return
		}
		if patch.Scenes != nil {
			r.state.Scenes = *patch.Scenes
		}
		if patch.ActiveSceneID != nil {
			r.state.ActiveSceneID = *patch.ActiveSceneID
		}
		if patch.Camera != nil {
			r.state.Camera = *patch.Camera
		}
		r.version++
		r.broadcast(frame)

	case protocol.KindError:
		r.log.Warn("client sent error frame, dropping")

	default:
		r.log.Error("unhandled message kind", zap.String("kind", string(frame.Kind)))
	}
}

// clientEvent reports whether clients may author this event; session
// membership events are minted by the room only.
func clientEvent(name protocol.EventName) bool {
	switch name {
	case protocol.EventSessionCreated, protocol.EventSessionJoined,
		protocol.EventPlayerJoined, protocol.EventPlayerLeft:
		return false
	}
	return true
}

func (r *Room) sendFullState(playerID string) {
	cloned := game.CloneState(r.state)
	active := cloned.ActiveSceneID
	patch := protocol.StatePatch{
		Session:       cloned.Session,
		Scenes:        &cloned.Scenes,
		ActiveSceneID: &active,
		Camera:        &cloned.Camera,
		DiceRolls:     &cloned.DiceRolls,
	}
	if frame, err := protocol.NewStateMessage(patch); err == nil {
		r.deliver(playerID, frame)
	}
}

func (r *Room) deliver(playerID string, frame protocol.Message) {
	ch, ok := r.members[playerID]
	if !ok {
		return
	}
	select {
	case ch <- frame:
	default:
		// Member is slow/full - drop them.
		close(ch)
		delete(r.members, playerID)
	}
}

func (r *Room) broadcast(frame protocol.Message) {
	for id := range r.members {
		r.deliver(id, frame)
	}
}

func (r *Room) broadcastExcept(playerID string, frame protocol.Message) {
	for id := range r.members {
		if id == playerID {
			continue
		}
		r.deliver(id, frame)
	}
}

func (r *Room) save() {
	if r.arch == nil {
		return
	}
	if err := r.arch.Save(context.Background(), r.code, game.CloneState(r.state)); err != nil {
		r.log.Error("archive save failed", zap.Error(err))
	}
}

func (r *Room) shutdown() {
	r.save()
	for id, ch := range r.members {
		close(ch)
		delete(r.members, id)
	}
	r.cancel()
}
