package notifications

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"inkwell/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must stay below pongWait.
	pingPeriod = (pongWait * 9) / 10
	// The stream is push-only; clients only send control frames.
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one open notification stream for a user.
type Client struct {
	UserID uint

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	// gap is set when events were dropped and the client has not been told.
	gap atomic.Bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// close stops delivery. It is safe to call more than once.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Deliver queues message for the client without blocking. When the buffer is
// full the message is dropped and the client later receives an
// events_dropped event so it can refetch its feed.
func (c *Client) Deliver(message []byte) bool {
	select {
	case <-c.done:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "closed").Inc()
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues(c.hub.Name(), "full").Inc()
		if !c.gap.Swap(true) {
			observability.GlobalLogger.Warn("notification stream full, dropping events",
				"user_id", c.UserID, "hub", c.hub.Name())
		}
		return false
	}
}

// Serve runs the stream until the peer goes away or the hub closes it.
func (c *Client) Serve() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeLoop()
	}()

	c.readLoop()
	c.hub.UnregisterClient(c)
	<-written
}

// readLoop discards data frames and keeps the read deadline alive on pongs.
func (c *Client) readLoop() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.StreamReadFailed(c.UserID, err)
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"))
			return
		case msg := <-c.send:
			if c.write(websocket.TextMessage, msg) != nil {
				return
			}
			if c.gap.Swap(false) && c.write(websocket.TextMessage, droppedNotice()) != nil {
				return
			}
		case <-ticker.C:
			if c.write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *Client) write(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func droppedNotice() []byte {
	b, _ := json.Marshal(Event{
		Type:      "events_dropped",
		Payload:   map[string]string{"reason": "buffer_full"},
		CreatedAt: time.Now().UTC(),
	})
	return b
}
