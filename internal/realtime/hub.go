package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/interteks/loomtrack/internal/platform/logger"
)

const (
	DefaultHeartbeat = 15 * time.Second
	outboundBuffer   = 32
)

type Client struct {
	ID       uuid.UUID
	Outbound chan Event
	done     chan struct{}
	once     sync.Once
}

// Hub is the registry of live subscribers. Broadcast never blocks on a slow
// subscriber.
type Hub struct {
	mu        sync.RWMutex
	log       *logger.Logger
	clients   map[uuid.UUID]*Client
	heartbeat time.Duration
	gauge     prometheus.Gauge
}

type HubOption func(*Hub)

func WithHeartbeat(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithSubscriberGauge tracks the number of connected subscribers.
func WithSubscriberGauge(g prometheus.Gauge) HubOption {
	return func(h *Hub) { h.gauge = g }
}

func NewHub(log *logger.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		log:       log.With("component", "SSEHub"),
		clients:   make(map[uuid.UUID]*Client),
		heartbeat: DefaultHeartbeat,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewClient registers a subscriber.
func (h *Hub) NewClient() *Client {
	c := &Client{
		ID:       uuid.New(),
		Outbound: make(chan Event, outboundBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.setGauge(n)
	h.log.Debug("SSE client subscribed", "clientID", c.ID)
	return c
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.Set(float64(n))
	}
}

func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("Dropping SSE message; outbound buffer full", "clientID", c.ID, "type", ev.Type)
		}
	}
}

// CloseClient unregisters c. Safe to call more than once.
func (h *Hub) CloseClient(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c.ID)
		n := len(h.clients)
		close(c.done)
		close(c.Outbound)
		h.mu.Unlock()
		h.setGauge(n)
		h.log.Debug("SSE client unsubscribed", "clientID", c.ID)
	})
}

// Serve streams events to c until the request ends or a write fails. The
// client is unregistered on return.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, c *Client) {
	defer h.CloseClient(c)

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, Event{Type: EventHello}); err != nil {
		h.log.Debug("SSE hello failed", "clientID", c.ID, "error", err)
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ":ping\n\n"); err != nil {
				h.log.Debug("SSE heartbeat failed", "clientID", c.ID, "error", err)
				return
			}
			flusher.Flush()
		case ev, ok := <-c.Outbound:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				h.log.Debug("SSE write failed", "clientID", c.ID, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", raw)
	return err
}
