// Package broker is a STOMP message broker over WebSocket. A single hub
// goroutine owns client registration, subscriptions and fan-out.
package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vesta/internal/stomp"
)

// Relay forwards local publications to other broker instances
type Relay interface {
	Forward(ctx context.Context, p *Publication) error
}

// Hub maintains active clients and routes publications to subscribers
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// destination -> client -> subscription ids
	subscriptions map[string]map[*Client]map[string]bool

	// Per-destination counters, kept only while a destination has subscribers
	destinations map[string]*Destination

	register    chan *Client
	unregister  chan *Client
	publish     chan *Publication
	subscribe   chan *Subscription
	unsubscribe chan *Subscription

	// Graceful shutdown
	shutdown     chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
	shuttingDown bool

	relay        Relay
	relayTimeout time.Duration

	logger *slog.Logger

	// Mutex for the maps above when read outside the run loop
	mu sync.RWMutex

	// Statistics
	stats Stats
}

// Publication is a message routed to one destination
type Publication struct {
	Destination string
	Body        []byte
	ContentType string
	Timestamp   time.Time
}

// Subscription binds a client subscription id to a destination
type Subscription struct {
	client      *Client
	id          string
	destination string
}

// Destination holds counters for one destination
type Destination struct {
	Name            string    `json:"name"`
	FirstSeen       time.Time `json:"first_seen"`
	MessageCount    int64     `json:"message_count"`
	SubscriberCount int       `json:"subscriber_count"`
}

// Stats holds broker statistics
type Stats struct {
	TotalClients       int           `json:"total_clients"`
	ActiveDestinations int           `json:"active_destinations"`
	TotalPublished     int64         `json:"total_published"`
	TotalDelivered     int64         `json:"total_delivered"`
	TotalDropped       int64         `json:"total_dropped"`
	Uptime             time.Duration `json:"uptime"`
	startTime          time.Time
}

// ErrHubClosed is returned when publishing to a stopped hub
var ErrHubClosed = errors.New("broker: hub is shut down")

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		subscriptions: make(map[string]map[*Client]map[string]bool),
		destinations:  make(map[string]*Destination),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		publish:       make(chan *Publication),
		subscribe:     make(chan *Subscription),
		unsubscribe:   make(chan *Subscription),
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
		relayTimeout:  2 * time.Second,
		logger:        logger,
		stats: Stats{
			startTime: time.Now(),
		},
	}
}

// SetRelay installs a relay; publications are forwarded after local delivery.
// Must be called before Run.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case p := <-h.publish:
			h.deliver(p)

		case sub := <-h.subscribe:
			h.subscribeClient(sub)

		case sub := <-h.unsubscribe:
			h.unsubscribeClient(sub)

		case <-h.shutdown:
			h.gracefulShutdown()
			return
		}
	}
}

// Shutdown initiates graceful shutdown and waits for the run loop to exit
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		h.mu.Lock()
		h.shuttingDown = true
		h.mu.Unlock()
		close(h.shutdown)
	})
	<-h.done
}

// Done is closed once the run loop has exited
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// gracefulShutdown gives clients a chance to drain their queues
func (h *Hub) gracefulShutdown() {
	h.logger.Info("broker shutting down", "clients", len(h.clients))

	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			h.logger.Warn("broker shutdown timeout reached, forcing close")
			h.closeAllClients()
			return
		case <-ticker.C:
			if h.allClientsFlushed() {
				h.closeAllClients()
				return
			}
		}
	}
}

// allClientsFlushed checks if all clients have empty queues
func (h *Hub) allClientsFlushed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if len(client.send) > 0 {
			return false
		}
	}
	return true
}

func (h *Hub) closeAllClients() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.close()
	}
}

// Register adds a client; it returns false when the hub is shutting down.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) send(ch chan *Subscription, sub *Subscription) {
	select {
	case ch <- sub:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Reject new clients during shutdown
	if h.shuttingDown {
		client.close()
		return
	}

	h.clients[client] = true
	h.stats.TotalClients = len(h.clients)
	h.logger.Debug("client registered", "session", client.id, "clients", len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)

	for dest, clients := range h.subscriptions {
		if _, exists := clients[client]; exists {
			delete(clients, client)
			h.afterSubscriberChange(dest)
		}
	}

	h.stats.TotalClients = len(h.clients)
	h.logger.Debug("client unregistered", "session", client.id, "user", client.principal.UserID, "clients", len(h.clients))
}

// afterSubscriberChange refreshes counters. Caller holds h.mu.
func (h *Hub) afterSubscriberChange(dest string) {
	clients := h.subscriptions[dest]
	if len(clients) == 0 {
		delete(h.subscriptions, dest)
		delete(h.destinations, dest)
		return
	}
	if d, ok := h.destinations[dest]; ok {
		d.SubscriberCount = len(clients)
	}
}

func (h *Hub) destination(name string) *Destination {
	d, ok := h.destinations[name]
	if !ok {
		d = &Destination{Name: name, FirstSeen: time.Now()}
		h.destinations[name] = d
	}
	return d
}

func (h *Hub) subscribeClient(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[sub.client] {
		return
	}
	if h.subscriptions[sub.destination] == nil {
		h.subscriptions[sub.destination] = make(map[*Client]map[string]bool)
	}
	ids := h.subscriptions[sub.destination][sub.client]
	if ids == nil {
		ids = make(map[string]bool)
		h.subscriptions[sub.destination][sub.client] = ids
	}
	ids[sub.id] = true
	h.destination(sub.destination).SubscriberCount = len(h.subscriptions[sub.destination])
}

func (h *Hub) unsubscribeClient(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, exists := h.subscriptions[sub.destination]
	if !exists {
		return
	}
	if ids, ok := clients[sub.client]; ok {
		delete(ids, sub.id)
		if len(ids) == 0 {
			delete(clients, sub.client)
		}
	}
	h.afterSubscriberChange(sub.destination)
}

type delivery struct {
	client *Client
	ids    []string
}

// deliver fans a publication out to local subscribers
func (h *Hub) deliver(p *Publication) {
	h.mu.Lock()
	if d, ok := h.destinations[p.Destination]; ok {
		d.MessageCount++
	}
	h.stats.TotalPublished++

	targets := make([]delivery, 0, len(h.subscriptions[p.Destination]))
	for client, ids := range h.subscriptions[p.Destination] {
		dl := delivery{client: client, ids: make([]string, 0, len(ids))}
		for id := range ids {
			dl.ids = append(dl.ids, id)
		}
		targets = append(targets, dl)
	}
	h.mu.Unlock()

	var delivered, dropped int64
	for _, t := range targets {
		for _, id := range t.ids {
			if t.client.enqueue(messageFrame(p, id)) {
				delivered++
			} else {
				dropped++
			}
		}
	}

	h.mu.Lock()
	h.stats.TotalDelivered += delivered
	h.stats.TotalDropped += dropped
	h.mu.Unlock()
}

func messageFrame(p *Publication, subscriptionID string) []byte {
	contentType := p.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	f := stomp.NewFrame(stomp.Message,
		stomp.HdrDestination, p.Destination,
		stomp.HdrSubscription, subscriptionID,
		stomp.HdrMessageID, uuid.New().String(),
		stomp.HdrContentType, contentType,
	)
	f.Body = p.Body
	return f.Encode()
}

// PublishLocal routes a publication to this instance's subscribers only
func (h *Hub) PublishLocal(p *Publication) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	select {
	case h.publish <- p:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// Publish routes body to destination locally and through the relay
func (h *Hub) Publish(destination string, body []byte) error {
	p := &Publication{Destination: destination, Body: body, Timestamp: time.Now()}
	if err := h.PublishLocal(p); err != nil {
		return err
	}
	if h.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.relayTimeout)
		defer cancel()
		if err := h.relay.Forward(ctx, p); err != nil {
			h.logger.Warn("relay forward failed", "destination", destination, "error", err)
		}
	}
	return nil
}

// SubscriberCount returns the number of clients subscribed to destination
func (h *Hub) SubscriberCount(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[destination])
}

// Destinations returns a copy of the per-destination counters
func (h *Hub) Destinations() map[string]Destination {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]Destination, len(h.destinations))
	for name, d := range h.destinations {
		out[name] = *d
	}
	return out
}

// GetStats returns broker statistics
func (h *Hub) GetStats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := h.stats
	stats.Uptime = time.Since(h.stats.startTime)
	stats.ActiveDestinations = len(h.subscriptions)
	return stats
}
