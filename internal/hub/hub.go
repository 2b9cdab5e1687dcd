// Package hub owns the room registry: an actor mapping room codes to
// live rooms, with archive fallback for rooms that have been persisted
// across a restart.
package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/archive"
	"github.com/joelmale/nexus/internal/protocol"
	"github.com/joelmale/nexus/internal/room"
)

type HubMsg interface{ isHubMsg() }

// CreateRoom starts a fresh room under the given code, or returns the
// existing one.
type CreateRoom struct {
	Code  string
	Reply chan *room.Room
}

// GetRoom looks up a live room. Reply may receive nil.
type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// ResumeRoom looks up a live room, falling back to the archive; a
// persisted snapshot is revived into a new room. Reply may receive nil.
type ResumeRoom struct {
	Code  string
	Reply chan *room.Room
}

// RemoveRoom drops a room from the registry and the archive.
type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (ResumeRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	arch   archive.Archive
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, arch archive.Archive, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		arch:   arch,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				rm := room.New(h.ctx, msg.Code, protocol.GameState{}, h.arch, h.log)
				h.rooms[msg.Code] = rm
				h.log.Info("room created", zap.String("room", msg.Code))
				msg.Reply <- rm

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case ResumeRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.resume(msg.Code)

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					shutdownRoom(rm)
				}
				delete(h.rooms, msg.Code)
				if h.arch != nil {
					if err := h.arch.Delete(h.ctx, msg.Code); err != nil {
						h.log.Error("archive delete failed", zap.Error(err))
					}
				}

			case ShutdownHub:
				for _, rm := range h.rooms {
					shutdownRoom(rm)
				}
				clear(h.rooms)
				h.cancel()
			}
		}
	}
}

// shutdownRoom asks a room to stop without blocking on a loop that has
// already returned.
func shutdownRoom(rm *room.Room) {
	select {
	case rm.Inbox() <- room.Shutdown{}:
	case <-rm.Done():
	}
}

func (h *Hub) resume(code string) *room.Room {
	if h.arch == nil {
		return nil
	}
	state, ok, err := h.arch.Load(h.ctx, code)
	if err != nil {
		h.log.Error("archive load failed", zap.String("room", code), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	rm := room.New(h.ctx, code, state, h.arch, h.log)
	h.rooms[code] = rm
	h.log.Info("room resumed from archive", zap.String("room", code))
	return rm
}
