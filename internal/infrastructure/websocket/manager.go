package websocket

import (
	"context"
	"sync"

	"duochat/internal/conversation"
	"duochat/pkg/logger"
	"duochat/pkg/metrics"
)

// Conversation is the part of a conversation session a connection drives.
type Conversation interface {
	ChatID() string
	LoadOlder(anchor conversation.ScrollAnchor)
	Reload()
	Send(text, image string) error
	Close()
}

// OpenFunc starts a conversation for uid that reports to sink.
type OpenFunc func(uid, chatID string, sink conversation.Sink) (Conversation, error)

// SessionsFrom adapts a conversation.Opener to an OpenFunc.
func SessionsFrom(opener *conversation.Opener) OpenFunc {
	return func(uid, chatID string, sink conversation.Sink) (Conversation, error) {
		s, err := opener.Open(uid, chatID, sink)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Manager manages all active WebSocket connections
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex
	open       OpenFunc
	done       chan struct{}
}

// NewManager creates a new WebSocket connection manager
func NewManager(open OpenFunc) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		open:       open,
		done:       make(chan struct{}),
	}
}

// Start runs the manager's main loop in a goroutine. When ctx ends every
// connection is shut down.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				m.clients[client.ID] = client
				m.mutex.Unlock()
				metrics.WebsocketConnections.Inc()
				logger.Debug("Client registered: %s (user %s)", client.ID, client.UserID)

			case client := <-m.Unregister:
				m.remove(client)

			case <-ctx.Done():
				m.mutex.RLock()
				clients := make([]*Client, 0, len(m.clients))
				for _, c := range m.clients {
					clients = append(clients, c)
				}
				m.mutex.RUnlock()

				for _, c := range clients {
					m.remove(c)
				}
				return
			}
		}
	}()
}

func (m *Manager) remove(client *Client) {
	m.mutex.Lock()
	_, ok := m.clients[client.ID]
	delete(m.clients, client.ID)
	m.mutex.Unlock()

	if !ok {
		return
	}

	client.shutdown()
	metrics.WebsocketConnections.Dec()
	logger.Debug("Client unregistered: %s (user %s)", client.ID, client.UserID)
}

// Add registers client, reporting false once the manager has stopped.
func (m *Manager) Add(client *Client) bool {
	select {
	case m.Register <- client:
		return true
	case <-m.done:
		return false
	}
}

// unregister hands client back to the manager loop, or shuts it down directly
// once the loop has stopped.
func (m *Manager) unregister(client *Client) {
	select {
	case m.Unregister <- client:
	case <-m.done:
		client.shutdown()
	}
}

// ClientCount returns the number of registered connections.
func (m *Manager) ClientCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients)
}
