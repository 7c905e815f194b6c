package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mossy-p/syncplay-server/internal/metrics"
	"github.com/mossy-p/syncplay-server/internal/models"
	"github.com/mossy-p/syncplay-server/internal/relay"
	"github.com/mossy-p/syncplay-server/internal/room"
	"github.com/mossy-p/syncplay-server/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Signaling payloads (SDP offers with candidates) can run to a few KB.
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Handler wires the websocket endpoint to the room registry and the
// signaling relay.
type Handler struct {
	sessions *session.Registry
	rooms    *room.Registry
	relay    *relay.Relay
	metrics  *metrics.Metrics
	log      *slog.Logger
}

func New(sessions *session.Registry, rooms *room.Registry, relay *relay.Relay, m *metrics.Metrics, log *slog.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		rooms:    rooms,
		relay:    relay,
		metrics:  m,
		log:      log,
	}
}

// HandleWS upgrades the connection and runs the read/write pump pair for
// its lifetime. Every participant capability flows over this one socket.
func (h *Handler) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("upgrade failed", "error", err)
		return
	}

	sess := h.sessions.Register()
	go h.writePump(sess, conn)
	go h.readPump(sess, conn)
}

func (h *Handler) readPump(sess *session.Session, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		// Unregister returns nil on a second call, so the room teardown
		// cascade runs exactly once per disconnect.
		if s := h.sessions.Unregister(sess.ID); s != nil {
			if roomID, _ := s.Room(); roomID != "" {
				h.rooms.Leave(roomID, s.ID)
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("read error", "connId", sess.ID, "error", err)
			}
			return
		}
		h.route(sess, data)
	}
}

func (h *Handler) writePump(sess *session.Session, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-sess.Outbox():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// route dispatches one inbound event. Malformed or out-of-place events are
// dropped; none of them are fatal to the connection.
func (h *Handler) route(sess *session.Session, data []byte) {
	msg, err := models.Decode(data)
	if err != nil {
		h.log.Warn("invalid message", "connId", sess.ID, "error", err)
		return
	}
	h.metrics.IncEvents()

	roomID, isHost := sess.Room()

	switch msg.Type {
	case models.EventCreateRoom:
		if roomID != "" {
			h.log.Warn("create-room while already in a room", "connId", sess.ID, "roomId", roomID)
			return
		}
		snap := h.rooms.Create(sess.ID)
		h.metrics.IncRoomsCreated()
		h.sessions.SetRoom(sess.ID, snap.RoomID, true)
		h.respond(sess, models.EventCreateRoom, models.CreateRoomResponse{
			Success: true,
			RoomID:  snap.RoomID,
			IsHost:  true,
			UserID:  sess.ID,
		})

	case models.EventJoinRoom:
		if roomID != "" {
			h.log.Warn("join-room while already in a room", "connId", sess.ID, "roomId", roomID)
			return
		}
		var req models.JoinRoomRequest
		if !h.decodePayload(sess, msg, &req) {
			return
		}
		snap, err := h.rooms.Join(req.RoomID, sess.ID)
		if err != nil {
			h.respond(sess, models.EventJoinRoom, models.JoinRoomResponse{
				Success: false,
				Error:   "Room not found",
			})
			return
		}
		h.sessions.SetRoom(sess.ID, snap.RoomID, false)
		h.respond(sess, models.EventJoinRoom, models.JoinRoomResponse{
			Success:      true,
			RoomID:       snap.RoomID,
			IsHost:       false,
			UserID:       sess.ID,
			VideoState:   &snap.VideoState,
			Participants: snap.Participants,
		})

	case models.EventSignal:
		var p models.SignalPayload
		if !h.decodePayload(sess, msg, &p) {
			return
		}
		h.relay.Forward(sess.ID, p)

	case models.EventRequestConnection:
		var p models.RequestConnectionPayload
		if !h.decodePayload(sess, msg, &p) {
			return
		}
		h.relay.RequestConnection(sess.ID, p.TargetID)

	case models.EventVideoPlay, models.EventVideoPause, models.EventVideoSeek:
		if roomID == "" {
			return
		}
		var p models.TimePayload
		if !h.decodePayload(sess, msg, &p) {
			return
		}
		switch msg.Type {
		case models.EventVideoPlay:
			h.rooms.Play(roomID, sess.ID, p.Time)
		case models.EventVideoPause:
			h.rooms.Pause(roomID, sess.ID, p.Time)
		case models.EventVideoSeek:
			h.rooms.Seek(roomID, sess.ID, p.Time)
		}

	case models.EventVideoSelected:
		if roomID == "" {
			return
		}
		var p models.MediaPayload
		if !h.decodePayload(sess, msg, &p) {
			return
		}
		h.rooms.SelectMedia(roomID, sess.ID, p.Media)

	case models.EventSubtitleSelected:
		if roomID == "" {
			return
		}
		var p models.SubtitlePayload
		if !h.decodePayload(sess, msg, &p) {
			return
		}
		h.rooms.SelectSubtitle(roomID, sess.ID, p.Subtitle)

	case models.EventChatMessage:
		if roomID == "" {
			return
		}
		var p models.ChatPayload
		if !h.decodePayload(sess, msg, &p) {
			return
		}
		h.rooms.Chat(roomID, sess.ID, p)

	case models.EventGetRoomInfo:
		if roomID == "" {
			return
		}
		snap, ok := h.rooms.Snapshot(roomID)
		if !ok {
			return
		}
		h.respond(sess, models.EventGetRoomInfo, models.RoomInfoResponse{
			Participants: snap.Participants,
			VideoState:   snap.VideoState,
			IsHost:       isHost,
		})

	default:
		h.log.Warn("unknown message type", "connId", sess.ID, "type", msg.Type)
	}
}

func (h *Handler) decodePayload(sess *session.Session, msg models.Message, dst any) bool {
	if msg.Payload == nil {
		h.log.Warn("missing payload", "connId", sess.ID, "type", msg.Type)
		return false
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		h.log.Warn("invalid payload", "connId", sess.ID, "type", msg.Type, "error", err)
		return false
	}
	return true
}

func (h *Handler) respond(sess *session.Session, t models.EventType, payload any) {
	msg, err := models.NewMessage(t, payload)
	if err != nil {
		h.log.Error("marshal response", "connId", sess.ID, "type", t, "error", err)
		return
	}
	data, err := msg.Encode()
	if err != nil {
		h.log.Error("encode response", "connId", sess.ID, "type", t, "error", err)
		return
	}
	if !sess.Deliver(data) {
		h.log.Warn("response dropped, buffer full", "connId", sess.ID, "type", t)
	}
}
