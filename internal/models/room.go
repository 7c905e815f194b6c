package models

import "encoding/json"

// PlaybackState is a room's shared player state. Position is the last
// reported snapshot in seconds; the server never extrapolates it. An empty
// Media means nothing has been selected yet.
type PlaybackState struct {
	Media    string  `json:"media"`
	Playing  bool    `json:"playing"`
	Position float64 `json:"position"`
}

// RoomSnapshot is a point-in-time view of a room, captured atomically with
// respect to joins and leaves on the same room.
type RoomSnapshot struct {
	RoomID       string        `json:"roomId"`
	HostID       string        `json:"hostId"`
	Participants []string      `json:"participants"`
	VideoState   PlaybackState `json:"videoState"`
}

// CreateRoomResponse answers a create-room request. UserID tells the client
// its own connection id, which it needs to address peers and to recognize
// its own broadcasts.
type CreateRoomResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
	IsHost  bool   `json:"isHost"`
	UserID  string `json:"userId"`
}

// JoinRoomRequest asks to join an existing room by its shareable code.
type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
}

// JoinRoomResponse answers a join-room request. On success it carries the
// full snapshot so the joiner can reconstruct state without racing events.
type JoinRoomResponse struct {
	Success      bool           `json:"success"`
	RoomID       string         `json:"roomId,omitempty"`
	IsHost       bool           `json:"isHost"`
	UserID       string         `json:"userId,omitempty"`
	VideoState   *PlaybackState `json:"videoState,omitempty"`
	Participants []string       `json:"participants,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// RoomInfoResponse answers get-room-info.
type RoomInfoResponse struct {
	Participants []string      `json:"participants"`
	VideoState   PlaybackState `json:"videoState"`
	IsHost       bool          `json:"isHost"`
}

// TimePayload carries the position for video-play/pause/seek events.
type TimePayload struct {
	Time float64 `json:"time"`
}

// MediaPayload carries the media reference for video-selected.
type MediaPayload struct {
	Media string `json:"media"`
}

// SubtitlePayload carries the subtitle reference for subtitle-selected.
type SubtitlePayload struct {
	Subtitle string `json:"subtitle"`
}

// ChatPayload is rebroadcast verbatim to the room; the server stamps UserID.
type ChatPayload struct {
	UserID    string `json:"userId,omitempty"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// SignalPayload wraps an opaque negotiation blob. Clients set To; the relay
// rewrites it to From on delivery and never parses Signal.
type SignalPayload struct {
	To     string          `json:"to,omitempty"`
	From   string          `json:"from,omitempty"`
	Signal json.RawMessage `json:"signal"`
}

// RequestConnectionPayload asks the relay to nudge the target into
// negotiating a direct link with the sender.
type RequestConnectionPayload struct {
	TargetID string `json:"targetId"`
}

// PresencePayload notifies remaining participants of a join or leave.
type PresencePayload struct {
	UserID       string   `json:"userId"`
	Participants []string `json:"participants"`
}
