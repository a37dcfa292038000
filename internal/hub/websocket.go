package hub

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

// WSConn adapts a gorilla websocket connection to Conn and Pinger.
type WSConn struct {
	conn      *websocket.Conn
	writeWait time.Duration
}

// NewWSConn wraps conn. Every write gets a deadline of writeWait.
func NewWSConn(conn *websocket.Conn, writeWait time.Duration) *WSConn {
	if writeWait <= 0 {
		writeWait = 10 * time.Second
	}
	return &WSConn{conn: conn, writeWait: writeWait}
}

// WriteJSON writes one JSON text frame.
func (c *WSConn) WriteJSON(v any) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

// Ping sends a ping control frame.
func (c *WSConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close sends a normal close frame and closes the socket.
func (c *WSConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeWait))
	return c.conn.Close()
}

// ReadUntilClosed consumes inbound frames until the peer goes away or stops
// answering pings. Clients do not send anything meaningful on this channel;
// reading is what processes pong and close frames.
func (c *WSConn) ReadUntilClosed() error {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return nil
			}
			return err
		}
	}
}
