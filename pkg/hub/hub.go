package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultClientBuffer is the per-client send queue length.
const DefaultClientBuffer = 16

// Hub maintains the set of active clients and broadcasts messages to them.
// Clients that fall a full queue behind are dropped rather than slowing the
// broadcaster down.
type Hub struct {
	name   string
	logger *slog.Logger
	buffer int

	clients map[*Client]struct{}
	mu      sync.RWMutex

	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	sent     atomic.Uint64
	replaced atomic.Uint64
	dropped  atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithClientBuffer sets the per-client send queue length.
func WithClientBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// New creates a hub. Call Run in a goroutine before registering clients.
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		logger:     slog.Default(),
		buffer:     DefaultClientBuffer,
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "hub", "hub", name)
	return h
}

// Run is the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	h.running.Store(true)
	defer h.running.Store(false)

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client connected", "clients", count)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("client disconnected", "clients", count)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
					h.sent.Add(1)
				default:
					if msg.Coalesce && replaceQueued(c, msg) {
						h.replaced.Add(1)
						continue
					}
					close(c.send)
					delete(h.clients, c)
					h.dropped.Add(1)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// replaceQueued swaps the oldest queued message of c for msg. Only Run sends
// on c.send, so the second select succeeds unless the queue has no capacity.
func replaceQueued(c *Client, msg Message) bool {
	select {
	case <-c.send:
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Stop ends Run and closes every client queue. It is idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast queues msg for every client. It reports false when the queue is
// full or the hub has stopped; the message is then dropped.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- msg:
		return true
	default:
		h.logger.Debug("broadcast queue full, dropping message", "type", msg.Type)
		return false
	}
}

// BroadcastJSON encodes v and broadcasts it as a text message.
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(NewJSONMessage(data))
	return nil
}

// BroadcastBinary broadcasts binary data.
func (h *Hub) BroadcastBinary(data []byte) {
	h.Broadcast(NewBinaryMessage(data))
}

// BroadcastFrame broadcasts an encoded frame that may replace older frames
// still queued for slow viewers.
func (h *Hub) BroadcastFrame(data []byte) bool {
	return h.Broadcast(NewFrameMessage(data))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string { return h.name }

// Stats returns how many messages were queued to clients and how many
// clients were dropped for being slow.
func (h *Hub) Stats() (sent, droppedClients uint64) {
	return h.sent.Load(), h.dropped.Load()
}

// Replaced returns how many queued frames were superseded by newer ones.
func (h *Hub) Replaced() uint64 { return h.replaced.Load() }
