package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/PulseMediaLab/pulse/backend/internal/users"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxInboundBytes = 64 * 1024
	sendBufferSize  = 32
)

// Client is one admitted realtime connection and its authenticated identity.
// Outbound events go through a buffered send channel drained by writePump, so
// enqueueing is safe from any goroutine and a full buffer drops the event
// instead of blocking the sender.
type Client struct {
	user users.User
	conn *websocket.Conn

	send chan []byte
	done chan struct{}

	closeOnce sync.Once
	logger    *zap.Logger
}

func newClient(user users.User, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		user:   user,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// UserID returns the authenticated user id bound to this connection.
func (c *Client) UserID() string {
	return c.user.ID
}

// Profile returns the profile fields joined into outbound payloads.
func (c *Client) Profile() users.Profile {
	return users.ProfileOf(c.user)
}

// Enqueue queues an outbound event for delivery. Events offered to a closed
// or saturated connection are dropped; push delivery is best effort and the
// store remains the source of truth.
func (c *Client) Enqueue(event OutboundEvent) {
	encoded, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("outbound event encoding failed",
			zap.String("event", event.Event),
			zap.Error(err))
		return
	}

	select {
	case <-c.done:
	case c.send <- encoded:
	default:
		c.logger.Debug("outbound event dropped",
			zap.String("event", event.Event),
			zap.String("user_id", c.user.ID))
	}
}

// readPump reads inbound frames and hands them to the dispatcher until the
// connection fails or closes. It runs on the connection's serving goroutine.
func (c *Client) readPump(onMessage func([]byte)) {
	defer c.Close()

	c.conn.SetReadLimit(maxInboundBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("connection read failed",
					zap.String("user_id", c.user.ID),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		onMessage(data)
	}
}

// writePump drains the send channel onto the socket and keeps the connection
// alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
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
		case <-c.done:
			return
		}
	}
}

// Close terminates the connection. It is safe to call multiple times; only
// the first call has any effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Done is closed once the connection has terminated.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
