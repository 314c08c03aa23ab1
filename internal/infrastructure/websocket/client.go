package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"duochat/internal/conversation"
	"duochat/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

// Client represents a WebSocket connection client. It is also the sink of
// the conversation it currently has open.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu       sync.Mutex
	session  Conversation
	location *time.Location
	closed   bool
	now      func() time.Time
}

func NewClient(userID string, conn *websocket.Conn) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		location: time.UTC,
		now:      time.Now,
	}
}

// Deliver implements conversation.Sink.
func (c *Client) Deliver(e conversation.Event) {
	c.mu.Lock()
	loc := c.location
	c.mu.Unlock()

	c.enqueue(eventFrame(e, c.UserID, c.now(), loc))
}

// enqueue never blocks. A client that does not keep up is disconnected
// rather than silently losing frames; closing Send makes WritePump hang up.
func (c *Client) enqueue(frame WSMessage) bool {
	if frame.Timestamp == "" {
		frame.Timestamp = c.now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s frame: %v", frame.Type, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.Send <- payload:
		return true
	default:
		logger.Warn("WebSocket: send buffer full for client %s, closing connection", c.ID)
		c.closed = true
		close(c.Send)
		return false
	}
}

// setSession installs s and returns the session it replaces. On a shut down
// client s itself is returned so the caller closes it.
func (c *Client) setSession(s Conversation, loc *time.Location) Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed && s != nil {
		return s
	}

	old := c.session
	c.session = s
	if loc != nil {
		c.location = loc
	}
	return old
}

func (c *Client) currentSession() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// shutdown closes the open conversation and then the send channel. The
// session is closed outside the lock because it may be delivering.
func (c *Client) shutdown() {
	if old := c.setSession(nil, nil); old != nil {
		old.Close()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error for client %s: %v", c.ID, err)
			}
			break
		}

		m.HandleClientMessage(c, message)
	}
}

// WritePump sends messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket: write error for client %s: %v", c.ID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
