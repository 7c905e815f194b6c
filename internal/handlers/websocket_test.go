package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/syncplay-server/internal/metrics"
	"github.com/mossy-p/syncplay-server/internal/models"
	"github.com/mossy-p/syncplay-server/internal/relay"
	"github.com/mossy-p/syncplay-server/internal/room"
	"github.com/mossy-p/syncplay-server/internal/session"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	sessions := session.NewRegistry(log)
	rooms := room.NewRegistry(sessions, nil, log)
	rl := relay.New(sessions, log)
	h := New(sessions, rooms, rl, metrics.New(), log)

	router := gin.New()
	router.GET("/ws", h.HandleWS)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ models.EventType, payload any) {
	t.Helper()
	msg, err := models.NewMessage(typ, payload)
	require.NoError(t, err)
	data, err := msg.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func recv(t *testing.T, conn *websocket.Conn) models.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := models.Decode(data)
	require.NoError(t, err)
	return msg
}

func payload[T any](t *testing.T, msg models.Message) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func TestWebSocket_CreateJoinSync(t *testing.T) {
	srv := newTestServer(t)

	host := dial(t, srv)
	send(t, host, models.EventCreateRoom, nil)
	created := payload[models.CreateRoomResponse](t, recv(t, host))
	require.True(t, created.Success)
	assert.Len(t, created.RoomID, 6)
	assert.True(t, created.IsHost)
	require.NotEmpty(t, created.UserID)

	joiner := dial(t, srv)
	send(t, joiner, models.EventJoinRoom, models.JoinRoomRequest{RoomID: created.RoomID})
	joined := payload[models.JoinRoomResponse](t, recv(t, joiner))
	require.True(t, joined.Success)
	assert.False(t, joined.IsHost)
	require.NotNil(t, joined.VideoState)
	assert.Equal(t, models.PlaybackState{}, *joined.VideoState)
	assert.Equal(t, []string{created.UserID, joined.UserID}, joined.Participants)

	// The host hears about the join.
	userJoined := recv(t, host)
	require.Equal(t, models.EventUserJoined, userJoined.Type)
	assert.Equal(t, joined.UserID, payload[models.PresencePayload](t, userJoined).UserID)

	// Host plays; the joiner observes it, the host hears nothing back.
	send(t, host, models.EventVideoPlay, models.TimePayload{Time: 42.5})
	play := recv(t, joiner)
	require.Equal(t, models.EventVideoPlay, play.Type)
	assert.Equal(t, created.UserID, play.From)
	assert.NotZero(t, play.Seq)
	assert.Equal(t, 42.5, payload[models.TimePayload](t, play).Time)

	// Host selects media; the joiner gets it and state sticks.
	send(t, host, models.EventVideoSelected, models.MediaPayload{Media: "movie.mp4"})
	selected := recv(t, joiner)
	require.Equal(t, models.EventVideoSelected, selected.Type)
	assert.Equal(t, "movie.mp4", payload[models.MediaPayload](t, selected).Media)

	send(t, joiner, models.EventGetRoomInfo, nil)
	info := payload[models.RoomInfoResponse](t, recv(t, joiner))
	assert.Equal(t, "movie.mp4", info.VideoState.Media)
	assert.False(t, info.IsHost)
}

func TestWebSocket_JoinUnknownRoom(t *testing.T) {
	srv := newTestServer(t)

	conn := dial(t, srv)
	send(t, conn, models.EventJoinRoom, models.JoinRoomRequest{RoomID: "NOPE99"})
	resp := payload[models.JoinRoomResponse](t, recv(t, conn))
	assert.False(t, resp.Success)
	assert.Equal(t, "Room not found", resp.Error)
}

func TestWebSocket_SignalRelay(t *testing.T) {
	srv := newTestServer(t)

	host := dial(t, srv)
	send(t, host, models.EventCreateRoom, nil)
	created := payload[models.CreateRoomResponse](t, recv(t, host))

	joiner := dial(t, srv)
	send(t, joiner, models.EventJoinRoom, models.JoinRoomRequest{RoomID: created.RoomID})
	joined := payload[models.JoinRoomResponse](t, recv(t, joiner))
	recv(t, host) // user-joined

	// Joiner asks the host to negotiate, then relays a blob.
	send(t, joiner, models.EventRequestConnection, models.RequestConnectionPayload{TargetID: created.UserID})
	req := recv(t, host)
	require.Equal(t, models.EventConnectionRequest, req.Type)
	assert.Equal(t, joined.UserID, req.From)

	blob := json.RawMessage(`{"sdp":"offer"}`)
	send(t, host, models.EventSignal, models.SignalPayload{To: joined.UserID, Signal: blob})
	sig := recv(t, joiner)
	require.Equal(t, models.EventSignal, sig.Type)
	p := payload[models.SignalPayload](t, sig)
	assert.Equal(t, created.UserID, p.From)
	assert.JSONEq(t, string(blob), string(p.Signal))
}

func TestWebSocket_HostDisconnectClosesRoom(t *testing.T) {
	srv := newTestServer(t)

	host := dial(t, srv)
	send(t, host, models.EventCreateRoom, nil)
	created := payload[models.CreateRoomResponse](t, recv(t, host))

	joiner := dial(t, srv)
	send(t, joiner, models.EventJoinRoom, models.JoinRoomRequest{RoomID: created.RoomID})
	recv(t, joiner) // join response
	recv(t, host)   // user-joined

	require.NoError(t, host.Close())

	closed := recv(t, joiner)
	assert.Equal(t, models.EventRoomClosed, closed.Type)
}

func TestWebSocket_NonHostLeaveNotifies(t *testing.T) {
	srv := newTestServer(t)

	host := dial(t, srv)
	send(t, host, models.EventCreateRoom, nil)
	created := payload[models.CreateRoomResponse](t, recv(t, host))

	joiner := dial(t, srv)
	send(t, joiner, models.EventJoinRoom, models.JoinRoomRequest{RoomID: created.RoomID})
	joined := payload[models.JoinRoomResponse](t, recv(t, joiner))
	recv(t, host) // user-joined

	require.NoError(t, joiner.Close())

	left := recv(t, host)
	require.Equal(t, models.EventUserLeft, left.Type)
	p := payload[models.PresencePayload](t, left)
	assert.Equal(t, joined.UserID, p.UserID)
	assert.Equal(t, []string{created.UserID}, p.Participants)
}

func TestWebSocket_MalformedMessageIgnored(t *testing.T) {
	srv := newTestServer(t)

	conn := dial(t, srv)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	// The connection survives and keeps working.
	send(t, conn, models.EventCreateRoom, nil)
	created := payload[models.CreateRoomResponse](t, recv(t, conn))
	assert.True(t, created.Success)
}
