package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/MiaoJiyu/mini-biz-sim/internal/logger"
)

// StreamServer accepts upgraded quote stream connections.
type StreamServer interface {
	Serve(conn *websocket.Conn, userID string)
}

// StreamHandler upgrades authenticated requests to the quote stream.
type StreamHandler struct {
	server   StreamServer
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new StreamHandler. An empty allowedOrigin
// accepts any origin.
func NewStreamHandler(server StreamServer, allowedOrigin string) *StreamHandler {
	return &StreamHandler{
		server: server,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if allowedOrigin == "" || allowedOrigin == "*" {
					return true
				}
				return r.Header.Get("Origin") == allowedOrigin
			},
		},
	}
}

// Stream handles the WebSocket upgrade for quotes and trade confirmations.
// @Summary     Quote stream
// @Description WebSocket feed of quote snapshots, top movers and the caller's trade confirmations. Send {"command":"subscribe","topics":[...]} to narrow topics.
// @Tags        quotes
// @Security    BearerAuth
// @Param       access_token query string false "Access token when the Authorization header cannot be set"
// @Success     101 "Switching protocols"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /ws/quotes [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Get().Warnw("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	h.server.Serve(conn, userID)
}
