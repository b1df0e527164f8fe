package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventBroadcaster pushes sandbox lifecycle events to connected dashboard
// clients
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	logger  zerolog.Logger
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[string]*wsClient),
		logger:  logger.With().Str("component", "event-broadcaster").Logger(),
	}
}

// Register adds a connected client
func (b *EventBroadcaster) Register(id string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[id] = &wsClient{id: id, conn: conn}
}

// Unregister removes a client
func (b *EventBroadcaster) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}

// ClientCount returns the number of connected clients
func (b *EventBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends an event to all connected clients. Implements the pool's
// event sink.
func (b *EventBroadcaster) Publish(event string, data interface{}) {
	msg := EventMessage{
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	b.mu.RLock()
	clients := make([]*wsClient, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		if err := client.send(jsonData); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", client.id).
				Str("event", event).
				Msg("Failed to broadcast to client")
		}
	}
}
