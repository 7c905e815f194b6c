package room

import "github.com/mossy-p/syncplay-server/internal/models"

// The synchronizer is a last-write-wins broadcaster: it stores whatever the
// originator reported and fans it out, with no merging and no server-side
// clock. Events against unknown or closed rooms are dropped.

// Play marks the room playing at the reported position.
func (r *Registry) Play(roomID, connID string, t float64) {
	r.mutate(roomID, connID, models.EventVideoPlay, models.TimePayload{Time: t}, func(rm *Room) bool {
		rm.state.Playing = true
		rm.state.Position = t
		return true
	})
}

// Pause marks the room paused at the reported position.
func (r *Registry) Pause(roomID, connID string, t float64) {
	r.mutate(roomID, connID, models.EventVideoPause, models.TimePayload{Time: t}, func(rm *Room) bool {
		rm.state.Playing = false
		rm.state.Position = t
		return true
	})
}

// Seek updates the position without touching the playing flag.
func (r *Registry) Seek(roomID, connID string, t float64) {
	r.mutate(roomID, connID, models.EventVideoSeek, models.TimePayload{Time: t}, func(rm *Room) bool {
		rm.state.Position = t
		return true
	})
}

// SelectMedia replaces the room's media reference. Host-only: attempts from
// other participants leave the stored state untouched and are not surfaced
// back to the sender.
func (r *Registry) SelectMedia(roomID, connID, media string) {
	r.mutate(roomID, connID, models.EventVideoSelected, models.MediaPayload{Media: media}, func(rm *Room) bool {
		if connID != rm.hostID {
			r.log.Debug("media selection from non-host dropped", "roomId", roomID, "connId", connID)
			return false
		}
		rm.state.Media = media
		return true
	})
}

// SelectSubtitle rebroadcasts a subtitle reference. Host-only and not part
// of the stored playback state.
func (r *Registry) SelectSubtitle(roomID, connID, subtitle string) {
	r.mutate(roomID, connID, models.EventSubtitleSelected, models.SubtitlePayload{Subtitle: subtitle}, func(rm *Room) bool {
		return connID == rm.hostID
	})
}

// Chat rebroadcasts a chat message to the rest of the room, stamping the
// sender. Messages are not retained.
func (r *Registry) Chat(roomID, connID string, p models.ChatPayload) {
	p.UserID = connID
	r.mutate(roomID, connID, models.EventChatMessage, p, func(rm *Room) bool {
		return true
	})
}

// mutate applies fn to the room under its lock and, when fn reports the
// event accepted, rebroadcasts it to everyone but the originator.
func (r *Registry) mutate(roomID, connID string, t models.EventType, payload any, fn func(rm *Room) bool) {
	rm, ok := r.lookup(roomID)
	if !ok {
		r.log.Debug("event for unknown room dropped", "roomId", roomID, "type", t)
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed || !fn(rm) {
		return
	}
	r.broadcastLocked(rm, connID, t, connID, payload)
}
