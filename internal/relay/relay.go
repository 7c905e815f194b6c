package relay

import (
	"log/slog"

	"github.com/mossy-p/syncplay-server/internal/models"
)

// Sender delivers a message to a single connection, best-effort.
type Sender interface {
	Send(connID string, data []byte) bool
}

// Relay forwards opaque negotiation payloads between connection pairs so
// they can establish a direct audio link. Targets are addressed by
// connection id; the relay has no room awareness and never parses payloads.
type Relay struct {
	sender Sender
	log    *slog.Logger
}

func New(sender Sender, log *slog.Logger) *Relay {
	return &Relay{sender: sender, log: log}
}

// Forward relays the signal blob to its target verbatim, rewriting the
// addressing so the receiver sees who it came from. Stale targets are
// dropped without notifying the sender.
func (r *Relay) Forward(fromID string, p models.SignalPayload) {
	msg, err := models.NewMessage(models.EventSignal, models.SignalPayload{
		From:   fromID,
		Signal: p.Signal,
	})
	if err != nil {
		r.log.Error("marshal signal", "from", fromID, "error", err)
		return
	}
	data, err := msg.Encode()
	if err != nil {
		r.log.Error("encode signal", "from", fromID, "error", err)
		return
	}
	if !r.sender.Send(p.To, data) {
		r.log.Debug("signal to stale target dropped", "from", fromID, "to", p.To)
	}
}

// RequestConnection nudges the target into opening a negotiation with the
// requester. Used by joiners toward participants already in the room.
func (r *Relay) RequestConnection(fromID, targetID string) {
	msg, err := models.NewMessage(models.EventConnectionRequest, nil)
	if err != nil {
		return
	}
	msg.From = fromID

	data, err := msg.Encode()
	if err != nil {
		r.log.Error("encode connection request", "from", fromID, "error", err)
		return
	}
	if !r.sender.Send(targetID, data) {
		r.log.Debug("connection request to stale target dropped", "from", fromID, "to", targetID)
	}
}
