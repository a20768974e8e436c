package network

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a frame.
	writeWait = 10 * time.Second

	// Time allowed between pongs from the peer.
	pongWait = 60 * time.Second

	// Ping interval. Must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 64
)

type closeFrame struct {
	code   int
	reason string
}

// Client is one live socket bound to a (session, player) pair.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	handler EventHandler
	log     *zap.Logger

	id Identity

	mu      sync.Mutex
	send    chan Message
	closed  bool
	evicted bool

	closing chan closeFrame
}

func newClient(conn *websocket.Conn, hub *Hub, handler EventHandler, id Identity, log *zap.Logger) *Client {
	return &Client{
		conn:    conn,
		hub:     hub,
		handler: handler,
		id:      id,
		log:     log.With(zap.String("session", id.SessionID), zap.String("player", id.PlayerID)),
		send:    make(chan Message, sendBuffer),
		closing: make(chan closeFrame, 1),
	}
}

func (c *Client) SessionID() string { return c.id.SessionID }

func (c *Client) PlayerID() string { return c.id.PlayerID }

// Send queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *Client) Send(msg Message) bool {
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

// Close ends the connection with the given close code after flushing any
// frame already being written.
func (c *Client) Close(code int, reason string) {
	select {
	case c.closing <- closeFrame{code: code, reason: reason}:
	default:
	}
}

// stop closes the outbound queue. The write loop then sends a close frame
// and shuts the socket, which ends the read loop.
func (c *Client) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) markEvicted() {
	c.mu.Lock()
	c.evicted = true
	c.mu.Unlock()
}

func (c *Client) wasEvicted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evicted
}

func (c *Client) readLoop() {
	defer func() {
		registered := c.hub.unregister(c)
		c.stop()
		_ = c.conn.Close()
		if registered || c.wasEvicted() {
			c.handler.OnDisconnect(c)
		}
	}()

	c.conn.SetReadLimit(MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read loop ended", zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Any undecodable frame, empty or truncated included. An empty
			// Type is rejected by the handler.
			c.handler.OnMessage(c, Message{})
			continue
		}
		c.handler.OnMessage(c, msg)
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}

		case frame := <-c.closing:
			c.drain()
			deadline := time.Now().Add(writeWait)
			payload := websocket.FormatCloseMessage(frame.code, frame.reason)
			_ = c.conn.WriteControl(websocket.CloseMessage, payload, deadline)
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drain writes whatever is already queued so a final error message reaches
// the peer before the close frame.
func (c *Client) drain() {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}
