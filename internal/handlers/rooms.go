package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stats reports live room and connection counts for ops tooling.
func (h *Handler) Stats(c *gin.Context) {
	rooms, participants := h.rooms.Stats()
	c.JSON(http.StatusOK, gin.H{
		"rooms":        rooms,
		"participants": participants,
		"connections":  h.sessions.Count(),
	})
}

// GetRoom returns a read-only room snapshot by code (public, for ops and
// lobby tooling; the join flow itself runs over the websocket).
func (h *Handler) GetRoom(c *gin.Context) {
	snap, ok := h.rooms.Snapshot(c.Param("roomId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
