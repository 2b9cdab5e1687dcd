package hub

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/archive"
	"github.com/joelmale/nexus/internal/protocol"
	"github.com/joelmale/nexus/internal/room"
)

func recvRoom(t *testing.T, ch <-chan *room.Room, within time.Duration) *room.Room {
	t.Helper()
	select {
	case rm := <-ch:
		return rm
	case <-time.After(within):
		t.Fatalf("timed out waiting for room reply")
		return nil // unreachable
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background(), archive.NewMemory(), zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- CreateRoom{Code: "AB12", Reply: reply}
	rm1 := recvRoom(t, reply, 100*time.Millisecond)

	h.Inbox() <- GetRoom{Code: "AB12", Reply: reply}
	rm2 := recvRoom(t, reply, 100*time.Millisecond)

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected the same room pointer")
	}
}

func TestHub_Get_UnknownIsNil(t *testing.T) {
	h := NewHub(context.Background(), archive.NewMemory(), zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- GetRoom{Code: "ZZZZ", Reply: reply}
	if rm := recvRoom(t, reply, 100*time.Millisecond); rm != nil {
		t.Fatalf("unknown code must resolve to nil, got %v", rm.Code())
	}
}

func TestHub_Resume_RevivesArchivedRoom(t *testing.T) {
	arch := archive.NewMemory()
	state := protocol.GameState{
		Session: &protocol.Session{
			RoomCode: "AB12",
			Players:  []protocol.Player{{ID: "p1", Name: "GM", Role: protocol.RoleHost, Connected: true}},
		},
		Scenes:        []protocol.Scene{{ID: "sc-1", Name: "Crypt"}},
		ActiveSceneID: "sc-1",
	}
	if err := arch.Save(context.Background(), "AB12", state); err != nil {
		t.Fatalf("seed archive: %v", err)
	}

	h := NewHub(context.Background(), arch, zap.NewNop())
	reply := make(chan *room.Room, 1)

	// Not live, but resumable.
	h.Inbox() <- GetRoom{Code: "AB12", Reply: reply}
	if rm := recvRoom(t, reply, 100*time.Millisecond); rm != nil {
		t.Fatalf("GetRoom must not touch the archive")
	}

	h.Inbox() <- ResumeRoom{Code: "AB12", Reply: reply}
	rm := recvRoom(t, reply, 100*time.Millisecond)
	if rm == nil {
		t.Fatalf("resume failed for an archived room")
	}

	viewReply := make(chan room.View, 1)
	rm.Inbox() <- room.GetState{Reply: viewReply}
	select {
	case v := <-viewReply:
		if len(v.State.Scenes) != 1 || v.State.ActiveSceneID != "sc-1" {
			t.Fatalf("revived state wrong: %+v", v.State)
		}
		// Restored players come back disconnected until they rejoin.
		if v.State.Session.Players[0].Connected {
			t.Fatalf("restored player must start disconnected")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for room view")
	}

	// A second resume returns the now-live room, not a fresh copy.
	h.Inbox() <- ResumeRoom{Code: "AB12", Reply: reply}
	if again := recvRoom(t, reply, 100*time.Millisecond); again != rm {
		t.Fatalf("resume of a live room must return the same pointer")
	}
}

func TestHub_Resume_UnknownIsNil(t *testing.T) {
	h := NewHub(context.Background(), archive.NewMemory(), zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- ResumeRoom{Code: "ZZZZ", Reply: reply}
	if rm := recvRoom(t, reply, 100*time.Millisecond); rm != nil {
		t.Fatalf("resume of an unknown code must be nil")
	}
}

func TestHub_Remove_DropsRegistryAndArchive(t *testing.T) {
	arch := archive.NewMemory()
	h := NewHub(context.Background(), arch, zap.NewNop())
	reply := make(chan *room.Room, 1)

	h.Inbox() <- CreateRoom{Code: "AB12", Reply: reply}
	recvRoom(t, reply, 100*time.Millisecond)
	if err := arch.Save(context.Background(), "AB12", protocol.GameState{}); err != nil {
		t.Fatalf("seed archive: %v", err)
	}

	h.Inbox() <- RemoveRoom{Code: "AB12"}

	h.Inbox() <- GetRoom{Code: "AB12", Reply: reply}
	if rm := recvRoom(t, reply, 100*time.Millisecond); rm != nil {
		t.Fatalf("removed room still registered")
	}
	_, ok, err := arch.Load(context.Background(), "AB12")
	if err != nil {
		t.Fatalf("archive load: %v", err)
	}
	if ok {
		t.Fatalf("removed room still archived")
	}
}
