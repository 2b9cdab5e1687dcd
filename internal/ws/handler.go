// Package ws is the server's websocket edge: it resolves the query
// params into a room, upgrades the connection, and pumps frames between
// the socket and the room actor.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/joelmale/nexus/internal/hub"
	"github.com/joelmale/nexus/internal/protocol"
	"github.com/joelmale/nexus/internal/room"
)

const writeTimeout = 3 * time.Second

// Handler serves GET /ws. Role is carried in the query string:
// ?join=CODE connects a player, ?reconnect=CODE resumes a host, and no
// params starts a fresh room for a new host.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			rm   *room.Room
			role protocol.Role
		)
		rejoin := false

		switch {
		case q.Get("join") != "":
			role = protocol.RolePlayer
			rm = lookupRoom(h, hub.GetRoom{Code: normalizeCode(q.Get("join"))})

		case q.Get("reconnect") != "":
			role = protocol.RoleHost
			rejoin = true
			rm = lookupRoom(h, hub.ResumeRoom{Code: normalizeCode(q.Get("reconnect"))})

		default:
			role = protocol.RoleHost
			code, err := freshCode(h)
			if err != nil {
				http.Error(w, "failed to generate room code", http.StatusInternalServerError)
				return
			}
			reply := make(chan *room.Room, 1)
			h.Inbox() <- hub.CreateRoom{Code: code, Reply: reply}
			rm = <-reply
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// The room lookup can fail, but the client still needs the
		// protocol-level error frame before the close.
		if rm == nil {
			writeFrame(r.Context(), conn, mustErrorFrame(protocol.RoomNotFound))
			conn.Close(websocket.StatusCode(protocol.CloseRoomNotFound), "room not found")
			return
		}

		name := q.Get("name")
		if name == "" {
			if role == protocol.RoleHost {
				name = "GM"
			} else {
				name = "Player"
			}
		}

		// The room can shut down at any point (RemoveRoom, hub shutdown),
		// after which nothing drains its inbox; every send below selects
		// on Done so this handler never blocks on a dead room.
		out := make(chan protocol.Message, 8)
		reply := make(chan protocol.Player, 1)
		select {
		case rm.Inbox() <- room.Join{
			Player: protocol.Player{ID: uuid.NewString(), Name: name, Role: role},
			Rejoin: rejoin,
			Outbox: out,
			Reply:  reply,
		}:
		case <-rm.Done():
			writeFrame(r.Context(), conn, mustErrorFrame(protocol.RoomNotFound))
			conn.Close(websocket.StatusCode(protocol.CloseRoomNotFound), "room not found")
			return
		}
		var self protocol.Player
		select {
		case self = <-reply:
		case <-rm.Done():
			writeFrame(r.Context(), conn, mustErrorFrame(protocol.RoomNotFound))
			conn.Close(websocket.StatusCode(protocol.CloseRoomNotFound), "room not found")
			return
		}
		defer func() {
			select {
			case rm.Inbox() <- room.Leave{PlayerID: self.ID}:
			case <-rm.Done():
			}
		}()

		log.Info("socket open",
			zap.String("room", rm.Code()),
			zap.String("player", self.Name),
			zap.String("role", string(role)))

		// Writer goroutine. The room closes the outbox when this player
		// leaves, is dropped, or the room shuts down; a close while the
		// socket is still up means the room is gone, so tell the client.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for msg := range out {
				writeFrame(writeCtx, conn, msg)
			}
			conn.Close(websocket.StatusCode(protocol.CloseRoomShutdown), "room closed")
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Info("socket closed", zap.String("player", self.Name))
				default:
					log.Info("socket dropped", zap.String("player", self.Name), zap.Error(err))
				}
				return
			}

			var msg protocol.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				// Straight to the socket: the outbox may already be
				// closed if the room dropped us or shut down.
				writeFrame(r.Context(), conn, mustErrorFrame("bad json"))
				continue
			}

			// The server, not the client, decides who a frame is from.
			msg.Src = self.ID
			select {
			case rm.Inbox() <- room.FromClient{Frame: msg}:
			case <-rm.Done():
				return
			}
		}
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func lookupRoom(h *hub.Hub, msg hub.HubMsg) *room.Room {
	switch m := msg.(type) {
	case hub.GetRoom:
		reply := make(chan *room.Room, 1)
		m.Reply = reply
		h.Inbox() <- m
		return <-reply
	case hub.ResumeRoom:
		reply := make(chan *room.Room, 1)
		m.Reply = reply
		h.Inbox() <- m
		return <-reply
	}
	return nil
}

// freshCode generates until it finds a code no live room is using.
func freshCode(h *hub.Hub) (string, error) {
	for {
		code, err := hub.GenerateCode()
		if err != nil {
			return "", err
		}
		if lookupRoom(h, hub.GetRoom{Code: code}) == nil {
			return code, nil
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg protocol.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func mustErrorFrame(message string) protocol.Message {
	frame, err := protocol.NewErrorMessage(message)
	if err != nil {
		return protocol.Message{Kind: protocol.KindError}
	}
	return frame
}
