package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mossy-p/syncplay-server/internal/models"
)

const (
	socketWriteWait = 10 * time.Second
	responseWait    = 10 * time.Second
)

// Socket is the client side of the sync protocol: one websocket carrying
// room, playback, chat and signaling traffic. Create/join run as
// request/response; everything else is fire-and-forget.
type Socket struct {
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[models.EventType]chan models.Message
}

// Dial connects to the server's /ws endpoint.
func Dial(ctx context.Context, url string, log *slog.Logger) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Socket{
		conn:    conn,
		log:     log,
		pending: make(map[models.EventType]chan models.Message),
	}, nil
}

// Listen reads server messages and dispatches them until the connection
// drops. Responses to an in-flight request are routed to the waiter;
// everything else goes to the controller.
func (s *Socket) Listen(ctrl *Controller) {
	defer s.conn.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("socket read error", "error", err)
			}
			return
		}
		msg, err := models.Decode(data)
		if err != nil {
			s.log.Warn("invalid server message", "error", err)
			continue
		}

		s.pendingMu.Lock()
		ch, ok := s.pending[msg.Type]
		if ok {
			delete(s.pending, msg.Type)
		}
		s.pendingMu.Unlock()

		if ok {
			ch <- msg
			continue
		}
		ctrl.HandleMessage(msg)
	}
}

// Emit sends one event upstream.
func (s *Socket) Emit(t models.EventType, payload any) error {
	msg, err := models.NewMessage(t, payload)
	if err != nil {
		return err
	}
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// CreateRoom creates a room and returns the server's response. The caller
// becomes host.
func (s *Socket) CreateRoom(ctx context.Context) (models.CreateRoomResponse, error) {
	var resp models.CreateRoomResponse
	msg, err := s.request(ctx, models.EventCreateRoom, nil)
	if err != nil {
		return resp, err
	}
	if err := unmarshalPayload(msg, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// JoinRoom joins an existing room. On success the caller should request a
// connection to every participant already present; RequestConnections does
// that from the response.
func (s *Socket) JoinRoom(ctx context.Context, roomID string) (models.JoinRoomResponse, error) {
	var resp models.JoinRoomResponse
	msg, err := s.request(ctx, models.EventJoinRoom, models.JoinRoomRequest{RoomID: roomID})
	if err != nil {
		return resp, err
	}
	if err := unmarshalPayload(msg, &resp); err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("join room %s: %s", roomID, resp.Error)
	}
	return resp, nil
}

// RequestConnections asks every participant already in the room to open a
// negotiation with us.
func (s *Socket) RequestConnections(resp models.JoinRoomResponse) error {
	for _, id := range resp.Participants {
		if id == resp.UserID {
			continue
		}
		if err := s.Emit(models.EventRequestConnection, models.RequestConnectionPayload{TargetID: id}); err != nil {
			return err
		}
	}
	return nil
}

// SendSignal relays an opaque negotiation payload to a peer.
func (s *Socket) SendSignal(to string, signal []byte) error {
	return s.Emit(models.EventSignal, models.SignalPayload{To: to, Signal: signal})
}

// RoomInfo fetches a point-in-time room snapshot, for refresh flows.
func (s *Socket) RoomInfo(ctx context.Context) (models.RoomInfoResponse, error) {
	var resp models.RoomInfoResponse
	msg, err := s.request(ctx, models.EventGetRoomInfo, nil)
	if err != nil {
		return resp, err
	}
	if err := unmarshalPayload(msg, &resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// Close tears the connection down; the server treats it as a disconnect.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// request emits an event and waits for the response of the same type.
func (s *Socket) request(ctx context.Context, t models.EventType, payload any) (models.Message, error) {
	ch := make(chan models.Message, 1)

	s.pendingMu.Lock()
	if _, exists := s.pending[t]; exists {
		s.pendingMu.Unlock()
		return models.Message{}, fmt.Errorf("request %s already in flight", t)
	}
	s.pending[t] = ch
	s.pendingMu.Unlock()

	if err := s.Emit(t, payload); err != nil {
		s.pendingMu.Lock()
		delete(s.pending, t)
		s.pendingMu.Unlock()
		return models.Message{}, err
	}

	timeout := time.NewTimer(responseWait)
	defer timeout.Stop()
	select {
	case msg := <-ch:
		return msg, nil
	case <-ctx.Done():
		s.pendingMu.Lock()
		delete(s.pending, t)
		s.pendingMu.Unlock()
		return models.Message{}, ctx.Err()
	case <-timeout.C:
		s.pendingMu.Lock()
		delete(s.pending, t)
		s.pendingMu.Unlock()
		return models.Message{}, fmt.Errorf("request %s: timed out", t)
	}
}

func unmarshalPayload(msg models.Message, dst any) error {
	if msg.Payload == nil {
		return fmt.Errorf("%s response missing payload", msg.Type)
	}
	return json.Unmarshal(msg.Payload, dst)
}
