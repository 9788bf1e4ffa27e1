package handlers

import (
	"log"
	"net/http"

	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/progress"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/services"
	"github.com/Alex-Connected-Mate/AI-JOURNALIST-CM-sub002/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	hub            *ws.Hub
	sessionService *services.SessionService
	poller         *progress.Poller
}

func NewWSHandler(hub *ws.Hub, sessionService *services.SessionService, poller *progress.Poller) *WSHandler {
	return &WSHandler{hub: hub, sessionService: sessionService, poller: poller}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket godoc
// @Summary      WebSocket connection for session updates
// @Description  Subscribe to progress, join and vote events of a session. Pass the host or participant token as ?token=.
// @Tags         websocket
// @Param        id path int true "Session ID"
// @Param        token query string true "Host or participant token"
// @Router       /ws/session/{id} [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	sid, ok := sessionIDParam(c)
	if !ok {
		return
	}
	if !authorizeSession(c, h.sessionService, sid) {
		return
	}
	snap, err := h.poller.Current(c.Request.Context(), sid)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	h.hub.AddConnection(sid, conn)
	defer h.hub.RemoveConnection(sid, conn)

	// The current snapshot lets a late subscriber converge without waiting
	// for the next change.
	if err := h.hub.SendTo(conn, ws.WSMessage{Type: progress.MessageTypeProgress, Data: snap}); err != nil {
		return
	}

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
