package models

import "encoding/json"

// EventType names a wire protocol event. Request/response pairs share the
// same type; direction disambiguates.
type EventType string

const (
	EventCreateRoom        EventType = "create-room"
	EventJoinRoom          EventType = "join-room"
	EventSignal            EventType = "signal"
	EventRequestConnection EventType = "request-connection"
	EventVideoPlay         EventType = "video-play"
	EventVideoPause        EventType = "video-pause"
	EventVideoSeek         EventType = "video-seek"
	EventVideoSelected     EventType = "video-selected"
	EventSubtitleSelected  EventType = "subtitle-selected"
	EventChatMessage       EventType = "chat-message"
	EventGetRoomInfo       EventType = "get-room-info"

	// Server-push only.
	EventUserJoined        EventType = "user-joined"
	EventUserLeft          EventType = "user-left"
	EventRoomClosed        EventType = "room-closed"
	EventConnectionRequest EventType = "connection-request"
)

// Message is the envelope carried over the websocket in both directions.
// From and Seq are stamped by the server on room broadcasts so receivers can
// discard their own echoes and out-of-order state without timing heuristics.
type Message struct {
	Type    EventType       `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope with the payload marshalled in place.
func NewMessage(t EventType, payload any) (Message, error) {
	msg := Message{Type: t}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Payload = data
	}
	return msg, nil
}

// Encode serializes the envelope for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses an envelope off the wire.
func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}
