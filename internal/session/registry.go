package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// sendBuffer bounds the per-connection outbound queue. Broadcasts to a slow
// consumer are dropped rather than blocking the room.
const sendBuffer = 256

// Session is the ephemeral identity of one live connection. It exists from
// websocket upgrade until disconnect and is never reused.
type Session struct {
	ID string

	send chan []byte

	mu     sync.Mutex
	roomID string
	isHost bool
}

// Room returns the session's current room association. An empty room id
// means the connection has not joined a room.
func (s *Session) Room() (roomID string, isHost bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID, s.isHost
}

func (s *Session) setRoom(roomID string, isHost bool) {
	s.mu.Lock()
	s.roomID = roomID
	s.isHost = isHost
	s.mu.Unlock()
}

// Deliver enqueues data for the write pump without blocking. It reports
// false when the queue is full; the message is simply dropped.
func (s *Session) Deliver(data []byte) bool {
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Outbox is drained by the connection's write pump.
func (s *Session) Outbox() <-chan []byte {
	return s.send
}

// Registry tracks live connections. It is the single owner of Session
// lifecycle; room membership is routed through it but owned elsewhere.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		log:      log,
	}
}

// Register allocates a fresh connection identity.
func (r *Registry) Register() *Session {
	s := &Session{
		ID:   uuid.New().String(),
		send: make(chan []byte, sendBuffer),
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.log.Info("connection registered", "connId", s.ID, "connections", count)
	return s
}

// Unregister removes the session and returns it so the caller can run room
// teardown. It returns nil if the id was already unregistered, which makes
// the disconnect cascade run exactly once.
func (r *Registry) Unregister(id string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return nil
	}

	r.log.Info("connection unregistered", "connId", id, "connections", count)
	return s
}

// Lookup returns the live session for id, if any.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Send delivers data to the named connection, best-effort. Unknown or
// disconnected targets are dropped without error.
func (r *Registry) Send(id string, data []byte) bool {
	s, ok := r.Lookup(id)
	if !ok {
		return false
	}
	if !s.Deliver(data) {
		r.log.Warn("send buffer full, dropping message", "connId", id)
		return false
	}
	return true
}

// SetRoom records the room association for a connection.
func (r *Registry) SetRoom(id, roomID string, isHost bool) {
	if s, ok := r.Lookup(id); ok {
		s.setRoom(roomID, isHost)
	}
}

// ClearRoom drops the room association, e.g. after the room closed under
// the connection.
func (r *Registry) ClearRoom(id string) {
	if s, ok := r.Lookup(id); ok {
		s.setRoom("", false)
	}
}

// Count reports the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
