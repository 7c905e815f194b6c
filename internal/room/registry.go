package room

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/mossy-p/syncplay-server/internal/models"
)

// ErrNotFound is returned when no live room has the requested id.
var ErrNotFound = errors.New("room not found")

// Peers delivers messages to connections and keeps their room association
// in step with room membership. Implemented by the session registry.
type Peers interface {
	Send(connID string, data []byte) bool
	ClearRoom(connID string)
}

// Tracker observes membership changes, e.g. to mirror them into Redis.
// All callbacks are best-effort; implementations must not block.
type Tracker interface {
	RoomCreated(roomID, hostID string)
	RoomClosed(roomID string)
	Joined(roomID, connID string)
	Left(roomID, connID string)
}

// Room holds one watch session. All mutations happen under mu, so events
// for the same room are serialized and broadcasts leave in FIFO order.
type Room struct {
	mu           sync.Mutex
	id           string
	hostID       string
	participants []string
	state        models.PlaybackState
	seq          uint64
	closed       bool
}

func (rm *Room) snapshotLocked() models.RoomSnapshot {
	parts := make([]string, len(rm.participants))
	copy(parts, rm.participants)
	return models.RoomSnapshot{
		RoomID:       rm.id,
		HostID:       rm.hostID,
		Participants: parts,
		VideoState:   rm.state,
	}
}

// Registry owns room lifecycle. The rooms map has its own lock so rooms
// stay independent of each other; per-room state is guarded by the room's
// mutex only.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	peers   Peers
	tracker Tracker
	log     *slog.Logger
}

// NewRegistry creates a registry. tracker may be nil.
func NewRegistry(peers Peers, tracker Tracker, log *slog.Logger) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		peers:   peers,
		tracker: tracker,
		log:     log,
	}
}

// Create allocates a room with a fresh code, the creator as host and sole
// participant, and zeroed playback state. It always succeeds.
func (r *Registry) Create(creatorID string) models.RoomSnapshot {
	rm := &Room{
		hostID:       creatorID,
		participants: []string{creatorID},
	}

	r.mu.Lock()
	id := newCode()
	for _, taken := r.rooms[id]; taken; _, taken = r.rooms[id] {
		id = newCode()
	}
	rm.id = id
	r.rooms[id] = rm
	r.mu.Unlock()

	r.log.Info("room created", "roomId", id, "hostId", creatorID)
	if r.tracker != nil {
		r.tracker.RoomCreated(id, creatorID)
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotLocked()
}

// Join appends the joiner and returns a snapshot captured atomically with
// the membership update. The other participants receive user-joined; the
// joiner gets the snapshot instead.
func (r *Registry) Join(roomID, joinerID string) (models.RoomSnapshot, error) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return models.RoomSnapshot{}, ErrNotFound
	}

	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return models.RoomSnapshot{}, ErrNotFound
	}
	if !contains(rm.participants, joinerID) {
		rm.participants = append(rm.participants, joinerID)
	}
	snap := rm.snapshotLocked()
	r.broadcastLocked(rm, joinerID, models.EventUserJoined, joinerID, models.PresencePayload{
		UserID:       joinerID,
		Participants: snap.Participants,
	})
	rm.mu.Unlock()

	r.log.Info("participant joined", "roomId", roomID, "connId", joinerID, "participants", len(snap.Participants))
	if r.tracker != nil {
		r.tracker.Joined(roomID, joinerID)
	}
	return snap, nil
}

// Leave removes the connection from the room. A departing host tears the
// room down unconditionally and survivors receive room-closed; a departing
// non-host leaves user-left behind, or tears down silently when it was the
// last participant.
func (r *Registry) Leave(roomID, connID string) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return
	}

	rm.mu.Lock()
	if rm.closed || !contains(rm.participants, connID) {
		rm.mu.Unlock()
		return
	}
	rm.participants = remove(rm.participants, connID)
	remaining := make([]string, len(rm.participants))
	copy(remaining, rm.participants)

	hostLeft := connID == rm.hostID
	teardown := hostLeft || len(remaining) == 0

	if hostLeft {
		r.broadcastLocked(rm, connID, models.EventRoomClosed, connID, nil)
	} else if len(remaining) > 0 {
		r.broadcastLocked(rm, connID, models.EventUserLeft, connID, models.PresencePayload{
			UserID:       connID,
			Participants: remaining,
		})
	}
	if teardown {
		rm.closed = true
	}
	rm.mu.Unlock()

	r.peers.ClearRoom(connID)
	if r.tracker != nil {
		r.tracker.Left(roomID, connID)
	}

	if !teardown {
		r.log.Info("participant left", "roomId", roomID, "connId", connID, "participants", len(remaining))
		return
	}

	// The id becomes free for reuse as soon as the map entry is gone.
	r.mu.Lock()
	delete(r.rooms, roomID)
	r.mu.Unlock()

	for _, id := range remaining {
		r.peers.ClearRoom(id)
	}
	r.log.Info("room closed", "roomId", roomID, "hostLeft", hostLeft)
	if r.tracker != nil {
		r.tracker.RoomClosed(roomID)
	}
}

// Snapshot is a point-in-time read for reconnect and refresh flows.
func (r *Registry) Snapshot(roomID string) (models.RoomSnapshot, bool) {
	rm, ok := r.lookup(roomID)
	if !ok {
		return models.RoomSnapshot{}, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.closed {
		return models.RoomSnapshot{}, false
	}
	return rm.snapshotLocked(), true
}

// Stats reports live room and participant counts.
func (r *Registry) Stats() (rooms, participants int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms = len(r.rooms)
	for _, rm := range r.rooms {
		rm.mu.Lock()
		participants += len(rm.participants)
		rm.mu.Unlock()
	}
	return rooms, participants
}

func (r *Registry) lookup(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// broadcastLocked fans a stamped event out to every participant except the
// originator. Callers hold rm.mu, which both serializes the sequence number
// and preserves per-room FIFO delivery into the send queues.
func (r *Registry) broadcastLocked(rm *Room, exclude string, t models.EventType, from string, payload any) {
	msg, err := models.NewMessage(t, payload)
	if err != nil {
		r.log.Error("marshal broadcast", "roomId", rm.id, "type", t, "error", err)
		return
	}
	rm.seq++
	msg.From = from
	msg.Seq = rm.seq

	data, err := msg.Encode()
	if err != nil {
		r.log.Error("encode broadcast", "roomId", rm.id, "type", t, "error", err)
		return
	}

	for _, id := range rm.participants {
		if id == exclude {
			continue
		}
		r.peers.Send(id, data)
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
