package hub

import (
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// per-message write deadline
	writeWait = 10 * time.Second

	// a viewer that sends nothing, not even a pong, for this long is gone
	pongWait = 60 * time.Second

	// pings go out often enough to keep pongWait from expiring
	pingPeriod = pongWait * 9 / 10

	// maxMessageSize bounds what clients may send; they only send control frames
	maxMessageSize = 4 * 1024
)

// ErrStopped is returned when registering with a stopped hub.
var ErrStopped = errors.New("hub: stopped")

// Conn is the subset of a websocket connection a client needs. Both
// *websocket.Conn from gofiber and gorilla's *websocket.Conn satisfy it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is a single websocket connection registered with a hub.
type Client struct {
	hub  *Hub
	conn Conn
	send chan Message
}

// NewClient registers conn with the hub.
func NewClient(h *Hub, conn Conn) (*Client, error) {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, h.buffer),
	}
	select {
	case h.register <- c:
		return c, nil
	case <-h.done:
		return nil, ErrStopped
	}
}

// Run writes initial, then pumps broadcasts until the connection closes or the
// hub drops the client. It blocks for the life of the connection.
func (c *Client) Run(initial ...Message) {
	for _, msg := range initial {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(wsType(msg.Type), msg.Data); err != nil {
			c.leave()
			return
		}
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
	c.conn.Close()
}

// readPump keeps the read side alive so pongs and disconnects are seen.
func (c *Client) readPump() {
	defer c.leave()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer once Run has sent the initial messages.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(wsType(msg.Type), msg.Data); err != nil {
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

func wsType(t MessageType) int {
	if t == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
