package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"separation-service/internal/hub"
	"separation-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// serveWS upgrades the connection and pumps client commands. The token
// is checked after the upgrade: a bad token is answered with a
// policy-violation close frame (1008) so clients can tell an auth
// rejection from a transient failure and skip reconnecting.
func (h *Handler) serveWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	if h.token != "" && c.Query("token") != h.token {
		deadline := time.Now().Add(time.Second)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			deadline)
		ws.Close()
		return
	}

	userID, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || userID == 0 {
		deadline := time.Now().Add(time.Second)
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing user"),
			deadline)
		ws.Close()
		return
	}

	conn := h.hub.Register(ws, userID, c.Query("user_name"), c.Query("role"), c.Query("photo_url"))
	defer h.hub.Disconnect(conn)

	for {
		var env models.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read failed",
					zap.Int64("user_id", userID), zap.Error(err))
			}
			return
		}
		h.handleCommand(conn, env)
	}
}

// handleCommand routes one client frame. subscribe is treated as a
// join: both put the user on the order's fan-out list. Unknown frames
// are ignored.
func (h *Handler) handleCommand(conn *hub.Conn, env models.Envelope) {
	switch env.Type {
	case models.CommandJoinOrder, models.CommandSubscribe:
		var cmd models.OrderCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil || cmd.OrderID == 0 {
			return
		}
		h.hub.JoinOrder(conn, cmd.OrderID)

	case models.CommandLeaveOrder:
		var cmd models.OrderCommand
		if err := json.Unmarshal(env.Data, &cmd); err != nil || cmd.OrderID == 0 {
			return
		}
		h.hub.LeaveOrder(conn, cmd.OrderID)

	case models.CommandPing:
		h.hub.Send(conn, models.EventPong, models.PingCommand{
			Timestamp: time.Now().UnixMilli(),
		})
	}
}
