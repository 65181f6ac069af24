package http

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// WSHandler serves board events over WebSocket. Clients only listen; any
// inbound message other than control frames is ignored.
type WSHandler struct {
	broker   *Broker
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewWSHandler constructs a WebSocket handler. allowOrigin may be nil to
// accept any origin.
func NewWSHandler(broker *Broker, logger *log.Logger, allowOrigin func(r *http.Request) bool) *WSHandler {
	if allowOrigin == nil {
		allowOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin,
		},
		logger: logger,
	}
}

type wsClient struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	broker *Broker
	logger *log.Logger
}

// ServeHTTP handles GET /BenchTest/ws?boardId=.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	boardID, ok := optionalBoardID(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("benchtest ws: upgrade failed: %v", err)
		return
	}
	client := &wsClient{
		id:     "ws_" + uuid.NewString(),
		conn:   conn,
		send:   h.broker.Subscribe(boardID),
		broker: h.broker,
		logger: h.logger,
	}
	h.logf("benchtest ws: client=%s connected board=%d", client.id, boardID)

	go client.writePump()
	go client.readPump()
}

func (h *WSHandler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

// readPump drains control frames and detects disconnects.
func (c *wsClient) readPump() {
	defer func() {
		c.broker.Unsubscribe(c.send)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.logger != nil {
				c.logger.Printf("benchtest ws: client=%s read error: %v", c.id, err)
			}
			return
		}
	}
}

// writePump forwards broker frames and keeps the connection alive.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
