package chat

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tripchat/logger"
)

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 25 * time.Second
	sendBufferSize = 128
)

// WsConn is one authenticated socket. Writes go through the Send channel so
// the write pump is the only goroutine touching the underlying connection.
type WsConn struct {
	ConnID string
	UserID string
	Role   string
	Remote net.Addr

	ws   *websocket.Conn
	Send chan []byte

	once    sync.Once
	closeCh chan struct{}

	CreatedAt time.Time
}

func NewWsConn(userID, role string, ws *websocket.Conn) *WsConn {
	return &WsConn{
		ConnID:    uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Remote:    ws.RemoteAddr(),
		ws:        ws,
		Send:      make(chan []byte, sendBufferSize),
		closeCh:   make(chan struct{}),
		CreatedAt: time.Now(),
	}
}

// Enqueue hands payload to the write pump. A slow client whose buffer is
// full gets disconnected rather than blocking the broadcaster.
func (c *WsConn) Enqueue(payload []byte) bool {
	select {
	case <-c.closeCh:
		return false
	case c.Send <- payload:
		return true
	default:
		logger.Warnf("[WsConn] send buffer full, dropping conn user=%s conn=%s", c.UserID, c.ConnID)
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return false
	}
}

func (c *WsConn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closeCh)
		if c.ws == nil {
			return
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *WsConn) Closed() <-chan struct{} { return c.closeCh }

// WritePump drains Send and keeps the connection alive with pings. Runs
// until the connection closes; the read loop handles the teardown.
func (c *WsConn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			return
		case payload := <-c.Send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WsConn] write err user=%s conn=%s err=%v", c.UserID, c.ConnID, err)
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}
