package bus

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shubhankar-shipowl/help-desk-sub004/internal/auth"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/realtime"
	"github.com/shubhankar-shipowl/help-desk-sub004/internal/domain/ticket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// RoomsFor lists the rooms a user joins on connect.
func RoomsFor(id auth.Identity) []string {
	rooms := []string{realtime.UserRoom(id.UserID)}
	switch id.Role {
	case ticket.RoleAgent:
		rooms = append(rooms, realtime.RoomAgents)
	case ticket.RoleAdmin:
		rooms = append(rooms, realtime.RoomAdmins)
	}
	return rooms
}

func (c *Controller) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromCtx(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		c.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(id.UserID, RoomsFor(id), c.sendBuffer)
	c.hub.Register(client)
	log := c.log.With(zap.String("conn_id", client.ID), zap.Int64("user_id", id.UserID))
	log.Info("connected", zap.Strings("rooms", client.Rooms))

	go writePump(conn, client, log)
	readPump(conn, client, c.hub)
	log.Info("disconnected")
}

// readPump only services control frames; clients never send events.
func readPump(conn *websocket.Conn, client *Client, hub *Hub) {
	defer func() {
		hub.Unregister(client)
		_ = conn.Close()
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func closeReason(code int) string {
	switch code {
	case websocket.CloseGoingAway:
		return "server shutting down"
	case websocket.ClosePolicyViolation:
		return "too slow"
	default:
		return "closed"
	}
}

func writePump(conn *websocket.Conn, client *Client, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(client.CloseCode(), closeReason(client.CloseCode())))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
