package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/rooms"
)

const presenceTimeout = 2 * time.Second

// PresenceCounter reports cluster-wide room membership
type PresenceCounter interface {
	Count(ctx context.Context, roomID string) (int64, error)
}

// GetRoom reports how many connections are in a room on this node, plus the
// cluster-wide count when a presence mirror is configured. Unknown rooms are
// not an error: rooms exist only while somebody is in them.
func GetRoom(registry *rooms.Registry, presence PresenceCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		info := models.RoomInfo{ID: roomID, Members: registry.Members(roomID)}

		if presence != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), presenceTimeout)
			defer cancel()
			n, err := presence.Count(ctx, roomID)
			if err != nil {
				slog.Warn("presence lookup failed", "room", roomID, "err", err)
			} else {
				info.ClusterMembers = &n
			}
		}

		c.JSON(http.StatusOK, info)
	}
}

// ConnectionCounter reports open relay connections
type ConnectionCounter interface {
	Len() int
}

// ListRooms returns every live room on this node (requires authentication)
func ListRooms(registry *rooms.Registry, conns ConnectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot := registry.Snapshot()
		if snapshot == nil {
			snapshot = []models.RoomInfo{}
		}
		c.JSON(http.StatusOK, models.RoomStats{
			Rooms:       snapshot,
			Connections: conns.Len(),
		})
	}
}
