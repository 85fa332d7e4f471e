// Package relay is the broadcast server: every text frame a client sends is
// written to every connected client, the sender included.
package relay

import (
	"context"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const sendBuffer = 256

// client is one accepted connection. The hub owns send: only the hub closes it.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and fans frames out to them.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}
	count      atomic.Int64
	logger     *zap.Logger
}

// NewHub creates a hub. Run must be called before clients are registered.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Run owns the client set until ctx ends. On exit every client's send
// channel is closed, which makes its writer close the connection.
func (h *Hub) Run(ctx context.Context) {
	clients := make(map[*client]struct{})
	defer func() {
		for c := range clients {
			close(c.send)
		}
		h.count.Store(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			clients[c] = struct{}{}
			h.count.Store(int64(len(clients)))
			h.logger.Info("client connected", zap.String("client", c.id), zap.Int("total", len(clients)))

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.count.Store(int64(len(clients)))
				h.logger.Info("client disconnected", zap.String("client", c.id), zap.Int("total", len(clients)))
			}

		case frame := <-h.broadcast:
			delivered := 0
			for c := range clients {
				select {
				case c.send <- frame:
					delivered++
				default:
					// Buffer full, drop the client.
					delete(clients, c)
					close(c.send)
					h.logger.Warn("dropping slow client", zap.String("client", c.id))
				}
			}
			h.count.Store(int64(len(clients)))
			h.logger.Debug("broadcast", zap.Int("bytes", len(frame)), zap.Int("clients", delivered))
		}
	}
}

// Register adds c. It reports false if the hub has stopped.
func (h *Hub) Register(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes c. Unregistering an unknown or dropped client is a no-op.
func (h *Hub) Unregister(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast queues frame for every connected client.
func (h *Hub) Broadcast(frame []byte) {
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}
