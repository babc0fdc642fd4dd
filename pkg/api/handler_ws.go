package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// eventsHandler handles GET /api/v1/events: a read-only WebSocket stream of
// pipeline lifecycle events, fanned out by the ConnectionManager to any
// number of observers. Best-effort delivery only, per spec.md's event sink.
func (s *Server) eventsHandler(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream not available"})
		return
	}

	// Origin validation deferred: accept all origins for now.
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}

	s.connManager.HandleConnection(c.Request.Context(), conn)
}
