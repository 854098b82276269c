package realtime

import (
	"log/slog"
	"sync"
	"time"

	"invtrack/cmd/internal/audit"
	"invtrack/cmd/internal/metrics"
)

// Hub fans recorded access attempts out to subscribed clients. It implements
// audit.Publisher.
//
// Broadcast never blocks: a client whose queue is full misses the event.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	clients map[string]*Client
}

var _ audit.Publisher = (*Hub)(nil)

// NewHub constructs a Hub. m may be nil.
func NewHub(log *slog.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		metrics: m,
		now:     time.Now,
		clients: make(map[string]*Client),
	}
}

// Subscribe adds c to the fan-out set.
func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c.SessionID]
	h.clients[c.SessionID] = c
	h.mu.Unlock()

	if !existed {
		h.metrics.FeedSubscribers(1)
	}
}

// Unsubscribe removes the client with sessionID. Unknown ids are ignored.
func (h *Hub) Unsubscribe(sessionID string) {
	h.mu.Lock()
	_, ok := h.clients[sessionID]
	delete(h.clients, sessionID)
	h.mu.Unlock()

	if ok {
		h.metrics.FeedSubscribers(-1)
	}
}

// CloseAll closes every subscriber, ending their sessions, and empties the hub.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	targets := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range targets {
		c.Close()
	}
	if n := len(targets); n > 0 {
		h.metrics.FeedSubscribers(-n)
		h.log.Info("feed.close_all", "sessions", n)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PublishAccess broadcasts a as an access.new envelope.
func (h *Hub) PublishAccess(a audit.AccessAttempt) {
	env, err := newEnvelope(TypeAccessNew, a, h.now().UTC())
	if err != nil {
		h.log.Warn("feed.encode.fail", "id", a.ID, "err", err)
		return
	}
	h.Broadcast(env)
}

// Broadcast delivers env to every subscriber without blocking.
func (h *Hub) Broadcast(env Envelope) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case <-c.Done():
		case c.Send <- env:
		default:
			h.log.Warn("feed.drop", "session_id", c.SessionID, "type", env.Type)
		}
	}
}
