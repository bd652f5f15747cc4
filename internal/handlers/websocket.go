package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/mossy-p/call-signaling/internal/transport"
)

// HandleSignaling upgrades the request and hands the socket to the relay's
// transport server. Rooms are chosen later by the client's join event.
func HandleSignaling(srv *transport.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		srv.ServeHTTP(c.Writer, c.Request)
	}
}
