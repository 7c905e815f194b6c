package client

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/syncplay-server/internal/models"
)

type playerCall struct {
	op      string
	seconds float64
	media   string
}

type fakePlayer struct {
	mu    sync.Mutex
	calls []playerCall
}

func (p *fakePlayer) Play()  { p.record(playerCall{op: "play"}) }
func (p *fakePlayer) Pause() { p.record(playerCall{op: "pause"}) }
func (p *fakePlayer) SeekTo(seconds float64) {
	p.record(playerCall{op: "seek", seconds: seconds})
}
func (p *fakePlayer) Load(media string) { p.record(playerCall{op: "load", media: media}) }

func (p *fakePlayer) record(c playerCall) {
	p.mu.Lock()
	p.calls = append(p.calls, c)
	p.mu.Unlock()
}

func (p *fakePlayer) getCalls() []playerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playerCall(nil), p.calls...)
}

type emitted struct {
	t       models.EventType
	payload any
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *fakeEmitter) Emit(t models.EventType, payload any) error {
	e.mu.Lock()
	e.events = append(e.events, emitted{t: t, payload: payload})
	e.mu.Unlock()
	return nil
}

func (e *fakeEmitter) getEvents() []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]emitted(nil), e.events...)
}

func newTestController(hooks Hooks) (*Controller, *fakePlayer, *fakeEmitter, *time.Time) {
	player := &fakePlayer{}
	emitter := &fakeEmitter{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctrl := NewController(player, emitter, hooks, log)

	now := time.Unix(1000, 0)
	ctrl.now = func() time.Time { return now }
	ctrl.SetIdentity("me", false)
	return ctrl, player, emitter, &now
}

func stateMsg(t *testing.T, typ models.EventType, from string, seq uint64, payload any) models.Message {
	t.Helper()
	msg, err := models.NewMessage(typ, payload)
	require.NoError(t, err)
	msg.From = from
	msg.Seq = seq
	return msg
}

func TestRemotePlayAppliedOnce_NoReEmit(t *testing.T) {
	ctrl, player, emitter, now := newTestController(Hooks{})

	ctrl.HandleMessage(stateMsg(t, models.EventVideoPlay, "other", 1, models.TimePayload{Time: 42.5}))

	require.Equal(t, []playerCall{
		{op: "seek", seconds: 42.5},
		{op: "play"},
	}, player.getCalls())

	// The player's own "I started playing" callback lands inside the grace
	// window and must not bounce upstream.
	ctrl.LocalPlay(42.5)
	assert.Empty(t, emitter.getEvents())

	// A genuine user action after the window does emit.
	*now = now.Add(200 * time.Millisecond)
	ctrl.LocalPlay(50)
	events := emitter.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventVideoPlay, events[0].t)
	assert.Equal(t, models.TimePayload{Time: 50}, events[0].payload)
}

func TestRemotePauseAndSeek(t *testing.T) {
	ctrl, player, _, _ := newTestController(Hooks{})

	ctrl.HandleMessage(stateMsg(t, models.EventVideoPause, "other", 1, models.TimePayload{Time: 10}))
	ctrl.HandleMessage(stateMsg(t, models.EventVideoSeek, "other", 2, models.TimePayload{Time: 99}))

	assert.Equal(t, []playerCall{
		{op: "seek", seconds: 10},
		{op: "pause"},
		{op: "seek", seconds: 99},
	}, player.getCalls())
}

func TestOwnBroadcastDropped(t *testing.T) {
	ctrl, player, _, _ := newTestController(Hooks{})

	ctrl.HandleMessage(stateMsg(t, models.EventVideoPlay, "me", 1, models.TimePayload{Time: 5}))

	assert.Empty(t, player.getCalls())
}

func TestStaleSequenceDropped(t *testing.T) {
	ctrl, player, _, _ := newTestController(Hooks{})

	ctrl.HandleMessage(stateMsg(t, models.EventVideoSeek, "a", 2, models.TimePayload{Time: 20}))
	ctrl.HandleMessage(stateMsg(t, models.EventVideoSeek, "b", 1, models.TimePayload{Time: 10}))

	calls := player.getCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, float64(20), calls[0].seconds)
}

func TestSequenceResetsWithIdentity(t *testing.T) {
	ctrl, player, _, _ := newTestController(Hooks{})

	ctrl.HandleMessage(stateMsg(t, models.EventVideoSeek, "a", 7, models.TimePayload{Time: 20}))

	// New room, fresh sequence space.
	ctrl.SetIdentity("me", false)
	ctrl.HandleMessage(stateMsg(t, models.EventVideoSeek, "a", 1, models.TimePayload{Time: 30}))

	require.Len(t, player.getCalls(), 2)
}

func TestRemoteMediaSelectionLoadsPlayer(t *testing.T) {
	ctrl, player, _, _ := newTestController(Hooks{})

	ctrl.HandleMessage(stateMsg(t, models.EventVideoSelected, "host", 1, models.MediaPayload{Media: "movie.mp4"}))

	assert.Equal(t, []playerCall{{op: "load", media: "movie.mp4"}}, player.getCalls())
}

func TestSelectMedia_HostOnly(t *testing.T) {
	ctrl, player, emitter, _ := newTestController(Hooks{})

	assert.ErrorIs(t, ctrl.SelectMedia("movie.mp4"), ErrNotHost)
	assert.Empty(t, emitter.getEvents())
	assert.Empty(t, player.getCalls())

	ctrl.SetIdentity("me", true)
	require.NoError(t, ctrl.SelectMedia("movie.mp4"))

	events := emitter.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventVideoSelected, events[0].t)
	assert.Equal(t, []playerCall{{op: "load", media: "movie.mp4"}}, player.getCalls())
}

func TestSelectSubtitle_HostOnly(t *testing.T) {
	ctrl, _, emitter, _ := newTestController(Hooks{})

	assert.ErrorIs(t, ctrl.SelectSubtitle("movie.srt"), ErrNotHost)

	ctrl.SetIdentity("me", true)
	require.NoError(t, ctrl.SelectSubtitle("movie.srt"))
	events := emitter.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSubtitleSelected, events[0].t)
}

func TestPeerLifecycleHooks(t *testing.T) {
	var joinedID string
	var joinedParts []string
	var requestFrom string
	var signalFrom string
	var signalBlob json.RawMessage
	closed := false

	ctrl, _, _, _ := newTestController(Hooks{
		OnPeerJoined: func(userID string, participants []string) {
			joinedID = userID
			joinedParts = participants
		},
		OnRoomClosed:        func() { closed = true },
		OnConnectionRequest: func(fromID string) { requestFrom = fromID },
		OnSignal: func(fromID string, signal json.RawMessage) {
			signalFrom = fromID
			signalBlob = signal
		},
	})

	ctrl.HandleMessage(stateMsg(t, models.EventUserJoined, "new", 1, models.PresencePayload{
		UserID:       "new",
		Participants: []string{"me", "new"},
	}))
	assert.Equal(t, "new", joinedID)
	assert.Equal(t, []string{"me", "new"}, joinedParts)

	req := models.Message{Type: models.EventConnectionRequest, From: "new"}
	ctrl.HandleMessage(req)
	assert.Equal(t, "new", requestFrom)

	ctrl.HandleMessage(stateMsg(t, models.EventSignal, "", 0, models.SignalPayload{
		From:   "new",
		Signal: json.RawMessage(`{"sdp":"answer"}`),
	}))
	assert.Equal(t, "new", signalFrom)
	assert.JSONEq(t, `{"sdp":"answer"}`, string(signalBlob))

	ctrl.HandleMessage(models.Message{Type: models.EventRoomClosed})
	assert.True(t, closed)
}

func TestChatHookAndSend(t *testing.T) {
	var got models.ChatPayload
	ctrl, _, emitter, _ := newTestController(Hooks{
		OnChat: func(msg models.ChatPayload) { got = msg },
	})

	ctrl.HandleMessage(stateMsg(t, models.EventChatMessage, "a", 1, models.ChatPayload{
		UserID: "a", Text: "hi", Timestamp: 5,
	}))
	assert.Equal(t, "hi", got.Text)

	require.NoError(t, ctrl.SendChat("hello"))
	events := emitter.getEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventChatMessage, events[0].t)
	assert.Equal(t, "hello", events[0].payload.(models.ChatPayload).Text)
}
