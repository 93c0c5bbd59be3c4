package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/thereceipt/order-printer/internal/oplog"
)

// WebSocket message types
const (
	EventLog     = "log"
	EventBacklog = "backlog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// WSClient is one operation log subscriber
type WSClient struct {
	conn   *websocket.Conn
	log    *oplog.Log
	send   chan oplog.Entry
	server *Server
}

// handleWebSocket streams operation log entries. The recent backlog is
// sent first.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	client := &WSClient{
		conn:   conn,
		log:    s.deps.Log,
		send:   s.deps.Log.Subscribe(),
		server: s,
	}

	s.logger.Info("websocket client connected", "remote", conn.RemoteAddr().String())

	go client.writePump(s.deps.Log.Recent(20))
	go client.readPump()
}

func (c *WSClient) writePump(backlog []oplog.Entry) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(WSMessage{Event: EventBacklog, Data: backlog}); err != nil {
		return
	}

	for {
		select {
		case entry, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(WSMessage{Event: EventLog, Data: entry}); err != nil {
				c.server.logger.Debug("websocket write error", "err", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only drains control frames; clients do not send commands here.
func (c *WSClient) readPump() {
	defer func() {
		c.log.Unsubscribe(c.send)
		c.conn.Close()
		c.server.logger.Info("websocket client disconnected")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket error", "err", err)
			}
			return
		}
	}
}
