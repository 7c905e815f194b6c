package client

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mossy-p/syncplay-server/internal/models"
)

// ErrNotHost is returned when a non-host tries a host-only action.
var ErrNotHost = errors.New("only the host can select media")

// defaultGraceWindow is how long player callbacks are ignored after a
// remote event was applied, so the player's own reaction to that apply is
// not mistaken for new user intent and bounced back upstream.
const defaultGraceWindow = 100 * time.Millisecond

// Emitter sends an event upstream. Implemented by Socket.
type Emitter interface {
	Emit(t models.EventType, payload any) error
}

// Hooks are callbacks for events the controller does not apply itself.
// Negotiation payloads go to the caller's WebRTC stack untouched. Nil hooks
// are skipped.
type Hooks struct {
	OnPeerJoined        func(userID string, participants []string)
	OnPeerLeft          func(userID string, participants []string)
	OnRoomClosed        func()
	OnConnectionRequest func(fromID string)
	OnSignal            func(fromID string, signal json.RawMessage)
	OnChat              func(msg models.ChatPayload)
	OnSubtitleSelected  func(subtitle string)
}

// Controller applies remote playback events to the local player and relays
// local user actions upstream. Echo protection is layered: broadcasts
// originated by this connection are dropped by id, events with a
// non-advancing room sequence are dropped as stale, and the grace window
// swallows the player callbacks triggered by a remote apply.
type Controller struct {
	player  Player
	emitter Emitter
	hooks   Hooks
	log     *slog.Logger

	mu            sync.Mutex
	selfID        string
	isHost        bool
	suppressUntil time.Time
	lastSeq       uint64
	grace         time.Duration
	now           func() time.Time
}

func NewController(player Player, emitter Emitter, hooks Hooks, log *slog.Logger) *Controller {
	return &Controller{
		player:  player,
		emitter: emitter,
		hooks:   hooks,
		log:     log,
		grace:   defaultGraceWindow,
		now:     time.Now,
	}
}

// SetIdentity records this connection's id and host flag after a room was
// created or joined, and resets the sequence cursor for the new room.
func (c *Controller) SetIdentity(selfID string, isHost bool) {
	c.mu.Lock()
	c.selfID = selfID
	c.isHost = isHost
	c.lastSeq = 0
	c.mu.Unlock()
}

// LocalPlay reports that the user pressed play. Ignored inside the grace
// window, when it is the player reacting to a remote event.
func (c *Controller) LocalPlay(seconds float64) {
	c.emitLocal(models.EventVideoPlay, models.TimePayload{Time: seconds})
}

// LocalPause reports that the user pressed pause.
func (c *Controller) LocalPause(seconds float64) {
	c.emitLocal(models.EventVideoPause, models.TimePayload{Time: seconds})
}

// LocalSeek reports that the user scrubbed to a new position.
func (c *Controller) LocalSeek(seconds float64) {
	c.emitLocal(models.EventVideoSeek, models.TimePayload{Time: seconds})
}

// SelectMedia announces a new media reference and loads it locally.
// Host-only; the server drops the event from anyone else anyway.
func (c *Controller) SelectMedia(media string) error {
	c.mu.Lock()
	isHost := c.isHost
	c.mu.Unlock()
	if !isHost {
		return ErrNotHost
	}
	if err := c.emitter.Emit(models.EventVideoSelected, models.MediaPayload{Media: media}); err != nil {
		return err
	}
	c.player.Load(media)
	return nil
}

// SelectSubtitle announces a subtitle reference. Host-only.
func (c *Controller) SelectSubtitle(subtitle string) error {
	c.mu.Lock()
	isHost := c.isHost
	c.mu.Unlock()
	if !isHost {
		return ErrNotHost
	}
	return c.emitter.Emit(models.EventSubtitleSelected, models.SubtitlePayload{Subtitle: subtitle})
}

// SendChat sends a chat line to the room.
func (c *Controller) SendChat(text string) error {
	return c.emitter.Emit(models.EventChatMessage, models.ChatPayload{
		Text:      text,
		Timestamp: time.Now().UnixMilli(),
	})
}

// HandleMessage dispatches one server-pushed event.
func (c *Controller) HandleMessage(msg models.Message) {
	switch msg.Type {
	case models.EventVideoPlay:
		var p models.TimePayload
		if !c.acceptState(msg, &p) {
			return
		}
		c.applyRemote(func() {
			c.player.SeekTo(p.Time)
			c.player.Play()
		})

	case models.EventVideoPause:
		var p models.TimePayload
		if !c.acceptState(msg, &p) {
			return
		}
		c.applyRemote(func() {
			c.player.SeekTo(p.Time)
			c.player.Pause()
		})

	case models.EventVideoSeek:
		var p models.TimePayload
		if !c.acceptState(msg, &p) {
			return
		}
		c.applyRemote(func() {
			c.player.SeekTo(p.Time)
		})

	case models.EventVideoSelected:
		var p models.MediaPayload
		if !c.acceptState(msg, &p) {
			return
		}
		// Receipt always replaces the local media reference.
		c.applyRemote(func() {
			c.player.Load(p.Media)
		})

	case models.EventSubtitleSelected:
		var p models.SubtitlePayload
		if !c.acceptState(msg, &p) {
			return
		}
		if c.hooks.OnSubtitleSelected != nil {
			c.hooks.OnSubtitleSelected(p.Subtitle)
		}

	case models.EventUserJoined:
		var p models.PresencePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		c.mu.Lock()
		c.advanceSeqLocked(msg.Seq)
		c.mu.Unlock()
		if c.hooks.OnPeerJoined != nil {
			c.hooks.OnPeerJoined(p.UserID, p.Participants)
		}

	case models.EventUserLeft:
		var p models.PresencePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		c.mu.Lock()
		c.advanceSeqLocked(msg.Seq)
		c.mu.Unlock()
		if c.hooks.OnPeerLeft != nil {
			c.hooks.OnPeerLeft(p.UserID, p.Participants)
		}

	case models.EventRoomClosed:
		if c.hooks.OnRoomClosed != nil {
			c.hooks.OnRoomClosed()
		}

	case models.EventConnectionRequest:
		if c.hooks.OnConnectionRequest != nil {
			c.hooks.OnConnectionRequest(msg.From)
		}

	case models.EventSignal:
		var p models.SignalPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if c.hooks.OnSignal != nil {
			c.hooks.OnSignal(p.From, p.Signal)
		}

	case models.EventChatMessage:
		var p models.ChatPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if c.hooks.OnChat != nil {
			c.hooks.OnChat(p)
		}

	default:
		c.log.Debug("unhandled event", "type", msg.Type)
	}
}

func (c *Controller) emitLocal(t models.EventType, payload models.TimePayload) {
	c.mu.Lock()
	suppressed := c.now().Before(c.suppressUntil)
	c.mu.Unlock()
	if suppressed {
		return
	}
	if err := c.emitter.Emit(t, payload); err != nil {
		c.log.Warn("emit failed", "type", t, "error", err)
	}
}

// acceptState filters a state broadcast (echo and staleness) and unmarshals
// its payload. It returns false when the event must be dropped.
func (c *Controller) acceptState(msg models.Message, dst any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.From != "" && msg.From == c.selfID {
		return false
	}
	if !c.advanceSeqLocked(msg.Seq) {
		c.log.Debug("stale event dropped", "type", msg.Type, "seq", msg.Seq)
		return false
	}
	return json.Unmarshal(msg.Payload, dst) == nil
}

// advanceSeqLocked moves the per-room sequence cursor. Events within one
// room arrive in server order, so a non-advancing number means a duplicate
// or something delivered after the state moved on.
func (c *Controller) advanceSeqLocked(seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= c.lastSeq {
		return false
	}
	c.lastSeq = seq
	return true
}

// applyRemote mutates the player with the grace window open, so callbacks
// fired by the mutation itself do not re-emit upstream.
func (c *Controller) applyRemote(fn func()) {
	c.mu.Lock()
	c.suppressUntil = c.now().Add(c.grace)
	c.mu.Unlock()
	fn()
}
