package services

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	wsSendBuffer   = 64
	wsPingInterval = 10 * time.Second
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
)

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type WSClient struct {
	id   string
	conn wsConn
	send chan []byte

	mu     sync.Mutex
	closed bool
}

func NewWSClient(id string, conn wsConn) *WSClient {
	return &WSClient{id: id, conn: conn, send: make(chan []byte, wsSendBuffer)}
}

// enqueue reports false when the buffer is full or the client is closed.
func (c *WSClient) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	safeCloseBytes(c.send)
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

func (c *WSClient) writeLoop() {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; the browser never sends data.
func readPump(conn *websocket.Conn, onDone func()) {
	defer onDone()
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
