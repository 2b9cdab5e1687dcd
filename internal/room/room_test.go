package room

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/archive"
	"github.com/joelmale/nexus/internal/protocol"
)

// helper: receive one frame with a timeout so tests never hang
func recvFrame(t *testing.T, ch <-chan protocol.Message, within time.Duration) protocol.Message {
	t.Helper()
	select {
	case frame, ok := <-ch:
		if !ok {
			t.Fatalf("member outbox closed unexpectedly")
		}
		return frame
	case <-time.After(within):
		t.Fatalf("timed out waiting for frame")
		return protocol.Message{} // unreachable
	}
}

// helper: skip frames until one carries the wanted event name
func recvEvent(t *testing.T, ch <-chan protocol.Message, name protocol.EventName, within time.Duration) protocol.GameEvent {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case frame, ok := <-ch:
			if !ok {
				t.Fatalf("member outbox closed while waiting for %s", name)
			}
			if frame.Kind != protocol.KindEvent {
				continue
			}
			ev, err := frame.Event()
			if err != nil {
				t.Fatalf("undecodable event frame: %v", err)
			}
			if ev.Name == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %s", name)
		}
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func view(t *testing.T, r *Room) View {
	t.Helper()
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	return recvView(t, reply, 100*time.Millisecond)
}

func join(t *testing.T, r *Room, name string, role protocol.Role, outboxCap int) (protocol.Player, chan protocol.Message) {
	t.Helper()
	out := make(chan protocol.Message, outboxCap)
	reply := make(chan protocol.Player, 1)
	r.Inbox() <- Join{
		Player: protocol.Player{ID: name + "-id", Name: name, Role: role},
		Outbox: out,
		Reply:  reply,
	}
	select {
	case p := <-reply:
		return p, out
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for join reply")
		return protocol.Player{}, nil // unreachable
	}
}

func TestRoom_FirstJoinGetsSessionCreated(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	host, out := join(t, r, "GM", protocol.RoleHost, 4)

	ev := recvEvent(t, out, protocol.EventSessionCreated, 100*time.Millisecond)
	if ev.Session == nil || ev.Session.RoomCode != "AB12" {
		t.Fatalf("welcome must carry the session, got %+v", ev.Session)
	}
	if ev.Player == nil || ev.Player.ID != host.ID {
		t.Fatalf("welcome must carry the joiner's identity, got %+v", ev.Player)
	}
	if !host.Connected {
		t.Fatalf("join reply must mark the player connected")
	}

	v := view(t, r)
	if v.NumMembers != 1 {
		t.Fatalf("want 1 member, got %d", v.NumMembers)
	}
}

func TestRoom_SecondJoinIsAnnounced(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	_, hostOut := join(t, r, "GM", protocol.RoleHost, 4)
	recvEvent(t, hostOut, protocol.EventSessionCreated, 100*time.Millisecond)

	player, playerOut := join(t, r, "Mira", protocol.RolePlayer, 4)

	// The joiner is welcomed with the full roster.
	welcome := recvEvent(t, playerOut, protocol.EventSessionJoined, 100*time.Millisecond)
	if welcome.Session == nil || len(welcome.Session.Players) != 2 {
		t.Fatalf("welcome roster wrong: %+v", welcome.Session)
	}

	// Everyone already present just hears player/joined.
	heard := recvEvent(t, hostOut, protocol.EventPlayerJoined, 100*time.Millisecond)
	if heard.Player == nil || heard.Player.ID != player.ID {
		t.Fatalf("host heard the wrong join: %+v", heard.Player)
	}
}

func TestRoom_RejoinByNameReusesIdentity(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, archive.NewMemory(), zap.NewNop())
	_, hostOut := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, hostOut, protocol.EventSessionCreated, 100*time.Millisecond)

	first, playerOut := join(t, r, "Mira", protocol.RolePlayer, 8)
	recvEvent(t, playerOut, protocol.EventSessionJoined, 100*time.Millisecond)

	r.Inbox() <- Leave{PlayerID: first.ID}
	recvEvent(t, hostOut, protocol.EventPlayerLeft, 100*time.Millisecond)

	// Same name and role, different transport-minted id.
	again, againOut := join(t, r, "Mira", protocol.RolePlayer, 8)
	if again.ID != first.ID {
		t.Fatalf("rejoin must reuse the old identity: want %s, got %s", first.ID, again.ID)
	}

	// A returning player converges from a full state frame.
	recvEvent(t, againOut, protocol.EventSessionJoined, 100*time.Millisecond)
	frame := recvFrame(t, againOut, 100*time.Millisecond)
	if frame.Kind != protocol.KindState {
		t.Fatalf("want a state frame after rejoin, got %s", frame.Kind)
	}
}

func TestRoom_EventFrameAppliesAndBroadcasts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	host, hostOut := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, hostOut, protocol.EventSessionCreated, 100*time.Millisecond)
	_, playerOut := join(t, r, "Mira", protocol.RolePlayer, 8)
	recvEvent(t, playerOut, protocol.EventSessionJoined, 100*time.Millisecond)

	before := view(t, r).Version

	frame, err := protocol.NewEventMessage(host.ID, protocol.GameEvent{
		Name:  protocol.EventSceneCreate,
		Scene: &protocol.Scene{ID: "sc-1", Name: "Crypt"},
	})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	r.Inbox() <- FromClient{Frame: frame}

	// Both members get the frame back verbatim, src intact.
	got := recvEvent(t, playerOut, protocol.EventSceneCreate, 100*time.Millisecond)
	if got.Scene == nil || got.Scene.ID != "sc-1" {
		t.Fatalf("broadcast scene wrong: %+v", got.Scene)
	}
	recvEvent(t, hostOut, protocol.EventSceneCreate, 100*time.Millisecond)

	v := view(t, r)
	if v.Version <= before {
		t.Fatalf("version must increment on an accepted frame: %d -> %d", before, v.Version)
	}
	if len(v.State.Scenes) != 1 {
		t.Fatalf("scene not applied to authoritative state: %+v", v.State.Scenes)
	}
}

func TestRoom_RejectsServerOnlyEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	host, hostOut := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, hostOut, protocol.EventSessionCreated, 100*time.Millisecond)

	before := view(t, r)

	frame, err := protocol.NewEventMessage(host.ID, protocol.GameEvent{
		Name:   protocol.EventPlayerJoined,
		Player: &protocol.Player{ID: "forged", Name: "Impostor", Role: protocol.RoleHost},
	})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	r.Inbox() <- FromClient{Frame: frame}

	v := view(t, r)
	if v.Version != before.Version {
		t.Fatalf("forged membership event must be dropped; version %d -> %d", before.Version, v.Version)
	}
	if len(v.State.Session.Players) != 1 {
		t.Fatalf("roster changed: %+v", v.State.Session.Players)
	}
}

func TestRoom_DropSlowMember(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	host, _ := join(t, r, "GM", protocol.RoleHost, 1)

	// The welcome frame fills the outbox; the next broadcast cannot be
	// delivered and the member is dropped.
	frame, err := protocol.NewEventMessage(host.ID, protocol.GameEvent{
		Name:  protocol.EventSceneCreate,
		Scene: &protocol.Scene{ID: "sc-1", Name: "Crypt"},
	})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	r.Inbox() <- FromClient{Frame: frame}

	v := view(t, r)
	if v.NumMembers != 0 {
		t.Fatalf("expected slow member to be dropped; NumMembers=%d", v.NumMembers)
	}
}

func TestRoom_LeaveClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	host, out := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, out, protocol.EventSessionCreated, 100*time.Millisecond)

	r.Inbox() <- Leave{PlayerID: host.ID}
	view(t, r) // barrier: the leave has been processed

	// The outbox must be closed so the connection's writer goroutine can
	// exit; an open channel here leaks one goroutine per disconnect.
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox still open after leave")
		}
	}
}

func TestRoom_ShutdownClosesOutboxesAndDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	_, out := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, out, protocol.EventSessionCreated, 100*time.Millisecond)

	r.Inbox() <- Shutdown{}

	select {
	case <-r.Done():
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("Done not signalled after shutdown")
	}

	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox still open after shutdown")
		}
	}
}

func TestRoom_LastLeaveArchivesSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arch := archive.NewMemory()
	r := New(ctx, "AB12", protocol.GameState{}, arch, zap.NewNop())
	host, hostOut := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, hostOut, protocol.EventSessionCreated, 100*time.Millisecond)

	frame, err := protocol.NewEventMessage(host.ID, protocol.GameEvent{
		Name:  protocol.EventSceneCreate,
		Scene: &protocol.Scene{ID: "sc-1", Name: "Crypt"},
	})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	r.Inbox() <- FromClient{Frame: frame}
	recvEvent(t, hostOut, protocol.EventSceneCreate, 100*time.Millisecond)

	r.Inbox() <- Leave{PlayerID: host.ID}
	view(t, r) // barrier: the leave has been processed

	state, ok, err := arch.Load(context.Background(), "AB12")
	if err != nil || !ok {
		t.Fatalf("snapshot missing after last leave: ok=%v err=%v", ok, err)
	}
	if len(state.Scenes) != 1 {
		t.Fatalf("snapshot lost the scenes: %+v", state.Scenes)
	}
	if len(state.Session.Players) != 1 || state.Session.Players[0].Connected {
		t.Fatalf("snapshot must keep the player marked disconnected: %+v", state.Session.Players)
	}
}

func TestRoom_DiceHistoryIsBounded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	for i := 0; i < protocol.MaxDiceHistory+5; i++ {
		frame, err := protocol.NewDiceRollMessage("p1", protocol.DiceRoll{
			ID: fmt.Sprintf("roll-%d", i), Expression: "1d20", Total: 7,
		})
		if err != nil {
			t.Fatalf("build frame: %v", err)
		}
		r.Inbox() <- FromClient{Frame: frame}
	}

	v := view(t, r)
	if got := len(v.State.DiceRolls); got != protocol.MaxDiceHistory {
		t.Fatalf("want history capped at %d, got %d", protocol.MaxDiceHistory, got)
	}
	if v.State.DiceRolls[0].ID != "roll-5" {
		t.Fatalf("oldest rolls must be evicted first, got %s", v.State.DiceRolls[0].ID)
	}
}

func TestRoom_StatePatchCannotTouchSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := New(ctx, "AB12", protocol.GameState{}, nil, zap.NewNop())
	_, hostOut := join(t, r, "GM", protocol.RoleHost, 8)
	recvEvent(t, hostOut, protocol.EventSessionCreated, 100*time.Millisecond)

	scenes := []protocol.Scene{{ID: "sc-imp", Name: "Imported"}}
	active := "sc-imp"
	frame, err := protocol.NewStateMessage(protocol.StatePatch{
		Session:       &protocol.Session{RoomCode: "HAXX"},
		Scenes:        &scenes,
		ActiveSceneID: &active,
	})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	r.Inbox() <- FromClient{Frame: frame}

	v := view(t, r)
	if len(v.State.Scenes) != 1 || v.State.ActiveSceneID != "sc-imp" {
		t.Fatalf("scene replacement not applied: %+v", v.State)
	}
	if v.State.Session.RoomCode != "AB12" || len(v.State.Session.Players) != 1 {
		t.Fatalf("session must stay server-owned: %+v", v.State.Session)
	}
}
