package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mossy-p/syncplay-server/config"
)

const (
	roomTTL   = 24 * time.Hour
	opTimeout = 2 * time.Second
)

// Mirror reflects live room membership into Redis for external dashboards
// and lobby tooling. It is write-only and best-effort: the in-memory
// registry stays authoritative and every Redis error is logged and ignored.
type Mirror struct {
	client *redis.Client
	log    *slog.Logger
}

type roomRecord struct {
	ID        string    `json:"id"`
	HostID    string    `json:"hostId"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMirror connects to Redis and verifies the connection.
func NewMirror(cfg config.RedisConfig, log *slog.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Mirror{client: client, log: log}, nil
}

// Close releases the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

func (m *Mirror) RoomCreated(roomID, hostID string) {
	ctx, cancel := m.ctx()
	defer cancel()

	data, err := json.Marshal(roomRecord{ID: roomID, HostID: hostID, CreatedAt: time.Now()})
	if err != nil {
		return
	}
	if err := m.client.Set(ctx, "room:"+roomID, data, roomTTL).Err(); err != nil {
		m.log.Warn("presence mirror: store room", "roomId", roomID, "error", err)
	}
	m.Joined(roomID, hostID)
}

func (m *Mirror) RoomClosed(roomID string) {
	ctx, cancel := m.ctx()
	defer cancel()

	if err := m.client.Del(ctx, "room:"+roomID, "room:"+roomID+":peers").Err(); err != nil {
		m.log.Warn("presence mirror: delete room", "roomId", roomID, "error", err)
	}
}

func (m *Mirror) Joined(roomID, connID string) {
	ctx, cancel := m.ctx()
	defer cancel()

	key := "room:" + roomID + ":peers"
	if err := m.client.SAdd(ctx, key, connID).Err(); err != nil {
		m.log.Warn("presence mirror: add peer", "roomId", roomID, "connId", connID, "error", err)
		return
	}
	m.client.Expire(ctx, key, roomTTL)
}

func (m *Mirror) Left(roomID, connID string) {
	ctx, cancel := m.ctx()
	defer cancel()

	if err := m.client.SRem(ctx, "room:"+roomID+":peers", connID).Err(); err != nil {
		m.log.Warn("presence mirror: remove peer", "roomId", roomID, "connId", connID, "error", err)
	}
}

func (m *Mirror) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}
