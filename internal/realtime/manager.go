// Package realtime keeps STOMP topic subscriptions over a reconnecting
// WebSocket connection to the broker.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"sync"
	"time"

	"vesta/internal/stomp"
)

const (
	// DefaultReconnectDelay is the fixed wait between connection attempts
	DefaultReconnectDelay = 5 * time.Second

	// DefaultHeartbeat is used for both heart-beat directions
	DefaultHeartbeat = 10 * time.Second

	handshakeTimeout = 10 * time.Second
)

var errStale = errors.New("connection superseded by disconnect")

// Handler receives the JSON body of a MESSAGE frame
type Handler func(destination string, body json.RawMessage)

// Subscription is a live registration
type Subscription struct {
	ID          string
	Destination string
	handler     Handler
}

type pendingSub struct {
	destination string
	handler     Handler
}

// Options configures a Manager
type Options struct {
	// URL is the broker endpoint, e.g. ws://localhost:8080/ws
	URL string

	// Token supplies the bearer token sent in CONNECT
	Token func() string

	Dialer         Dialer
	ReconnectDelay time.Duration
	HeartbeatOut   time.Duration
	HeartbeatIn    time.Duration

	// OnConnect runs after every successful handshake, once the pending
	// queue is flushed. Subscriptions made on an earlier connection are
	// gone by then.
	OnConnect func()

	Logger *slog.Logger
}

// Manager owns one broker connection and its subscriptions
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	active    bool // between Connect and Disconnect
	connected bool // handshake done on the current transport
	gen       uint64
	transport Transport
	subs      map[string]*Subscription
	pending   []pendingSub
	nextID    int
	cancel    context.CancelFunc
}

// New creates a manager; nothing is dialed until Connect.
func New(opts Options) *Manager {
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{}
	}
	if opts.Token == nil {
		opts.Token = func() string { return "" }
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.HeartbeatOut < 0 {
		opts.HeartbeatOut = 0
	} else if opts.HeartbeatOut == 0 {
		opts.HeartbeatOut = DefaultHeartbeat
	}
	if opts.HeartbeatIn < 0 {
		opts.HeartbeatIn = 0
	} else if opts.HeartbeatIn == 0 {
		opts.HeartbeatIn = DefaultHeartbeat
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		opts:   opts,
		logger: logger.With("component", "realtime"),
		subs:   make(map[string]*Subscription),
	}
}

// Connect starts the connection loop. It returns at once and is a no-op
// while the manager is already active. ctx bounds the loop.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return
	}
	m.active = true
	m.gen++
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.run(runCtx, m.gen)
}

// Connected reports whether the handshake completed on the current connection
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe registers handler for destination. While connected it returns
// the live subscription; otherwise the request is queued until the next
// handshake and nil is returned.
func (m *Manager) Subscribe(destination string, handler Handler) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		m.pending = append(m.pending, pendingSub{destination: destination, handler: handler})
		return nil
	}
	return m.subscribeLocked(destination, handler)
}

func (m *Manager) subscribeLocked(destination string, handler Handler) *Subscription {
	if old := m.subs[destination]; old != nil {
		delete(m.subs, destination)
		if err := m.transport.WriteFrame(stomp.NewFrame(stomp.Unsubscribe, stomp.HdrID, old.ID)); err != nil {
			m.logger.Warn("unsubscribe failed", "destination", destination, "error", err)
		}
	}

	m.nextID++
	sub := &Subscription{
		ID:          fmt.Sprintf("sub-%d", m.nextID),
		Destination: destination,
		handler:     handler,
	}
	f := stomp.NewFrame(stomp.Subscribe,
		stomp.HdrID, sub.ID,
		stomp.HdrDestination, destination,
		"ack", "auto",
	)
	if err := m.transport.WriteFrame(f); err != nil {
		m.logger.Warn("subscribe failed, queued for next connection", "destination", destination, "error", err)
		m.pending = append(m.pending, pendingSub{destination: destination, handler: handler})
		return nil
	}
	m.subs[destination] = sub
	return sub
}

// Unsubscribe releases the live subscription for destination, if any.
// Queued subscriptions are left alone.
func (m *Manager) Unsubscribe(destination string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := m.subs[destination]
	if sub == nil {
		return
	}
	delete(m.subs, destination)
	if m.transport == nil {
		return
	}
	if err := m.transport.WriteFrame(stomp.NewFrame(stomp.Unsubscribe, stomp.HdrID, sub.ID)); err != nil {
		m.logger.Warn("unsubscribe failed", "destination", destination, "error", err)
	}
}

// Disconnect drops every subscription, clears the queue and closes the
// connection. It may be called any number of times.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	t := m.transport
	if t != nil && m.connected {
		for _, sub := range m.subs {
			_ = t.WriteFrame(stomp.NewFrame(stomp.Unsubscribe, stomp.HdrID, sub.ID))
		}
		_ = t.WriteFrame(stomp.NewFrame(stomp.Disconnect, stomp.HdrReceipt, "disconnect"))
	}
	wasActive := m.active
	m.subs = make(map[string]*Subscription)
	m.pending = nil
	m.connected = false
	m.transport = nil
	m.active = false
	m.gen++
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if t != nil {
		_ = t.Close()
	}
	if wasActive {
		m.logger.Info("realtime disconnected")
	}
}

// Destinations lists the live subscriptions
func (m *Manager) Destinations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subs))
	for d := range m.subs {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Pending returns how many subscriptions wait for the next handshake
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

func (m *Manager) run(ctx context.Context, gen uint64) {
	defer m.loopEnded(gen)
	for {
		err := m.session(ctx, gen)
		if ctx.Err() != nil || errors.Is(err, errStale) {
			return
		}
		m.logger.Warn("realtime connection lost", "error", err, "retry_in", m.opts.ReconnectDelay)

		timer := time.NewTimer(m.opts.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Manager) session(ctx context.Context, gen uint64) error {
	t, err := m.opts.Dialer.Dial(ctx, m.opts.URL)
	if err != nil {
		return err
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = t.Close()
	}()

	connect := stomp.NewFrame(stomp.Connect,
		stomp.HdrAcceptVersion, stomp.Version,
		stomp.HdrHeartBeat, stomp.FormatHeartBeat(m.opts.HeartbeatOut, m.opts.HeartbeatIn),
	)
	if u, err := url.Parse(m.opts.URL); err == nil && u.Host != "" {
		connect.Set(stomp.HdrHost, u.Host)
	}
	if tok := m.opts.Token(); tok != "" {
		connect.Set(stomp.HdrAuthorization, "Bearer "+tok)
	}
	if err := t.WriteFrame(connect); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}

	_ = t.SetReadDeadline(time.Now().Add(handshakeTimeout))
	connected, rest, err := m.awaitConnected(t)
	if err != nil {
		return err
	}

	sx, sy, err := stomp.ParseHeartBeat(connected.Get(stomp.HdrHeartBeat))
	if err != nil {
		m.logger.Warn("ignoring server heart-beat header", "error", err)
		sx, sy = 0, 0
	}
	sendEvery := stomp.Negotiate(m.opts.HeartbeatOut, sy)
	expectEvery := stomp.Negotiate(sx, m.opts.HeartbeatIn)

	m.mu.Lock()
	if m.gen != gen || !m.active {
		m.mu.Unlock()
		return errStale
	}
	m.connected = true
	m.transport = t
	queue := m.pending
	m.pending = nil
	for _, p := range queue {
		m.subscribeLocked(p.destination, p.handler)
	}
	m.mu.Unlock()
	defer m.dropTransport(t)

	m.logger.Info("realtime connected",
		"url", m.opts.URL,
		"session", connected.Get(stomp.HdrSession),
		"flushed", len(queue),
		"heartbeat_out", sendEvery,
		"heartbeat_in", expectEvery,
	)
	if m.opts.OnConnect != nil {
		m.opts.OnConnect()
	}

	if sendEvery > 0 {
		go m.heartbeat(t, sendEvery, stop)
	}

	if err := m.handle(rest); err != nil {
		return err
	}
	for {
		if expectEvery > 0 {
			_ = t.SetReadDeadline(time.Now().Add(2 * expectEvery))
		} else {
			_ = t.SetReadDeadline(time.Time{})
		}
		frames, err := t.ReadFrames()
		if errors.Is(err, ErrMalformedFrame) {
			m.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if err != nil {
			return err
		}
		if err := m.handle(frames); err != nil {
			return err
		}
	}
}

func (m *Manager) awaitConnected(t Transport) (*stomp.Frame, []*stomp.Frame, error) {
	for {
		frames, err := t.ReadFrames()
		if errors.Is(err, ErrMalformedFrame) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("await CONNECTED: %w", err)
		}
		for i, f := range frames {
			switch f.Command {
			case stomp.Connected:
				return f, frames[i+1:], nil
			case stomp.Error:
				return nil, nil, fmt.Errorf("broker refused connection: %s", f.Get(stomp.HdrMessage))
			}
		}
	}
}

func (m *Manager) handle(frames []*stomp.Frame) error {
	for _, f := range frames {
		switch f.Command {
		case stomp.Message:
			m.dispatch(f)
		case stomp.Error:
			return fmt.Errorf("broker error: %s", f.Get(stomp.HdrMessage))
		case stomp.Receipt:
			m.logger.Debug("receipt", "id", f.Get(stomp.HdrReceiptID))
		}
	}
	return nil
}

func (m *Manager) dispatch(f *stomp.Frame) {
	dest := f.Get(stomp.HdrDestination)
	m.mu.Lock()
	sub := m.subs[dest]
	m.mu.Unlock()

	// Frames for a released or replaced subscription still in flight.
	if sub == nil || sub.ID != f.Get(stomp.HdrSubscription) {
		m.logger.Debug("no live subscription", "destination", dest)
		return
	}
	if !json.Valid(f.Body) {
		m.logger.Warn("dropping malformed payload", "destination", dest, "bytes", len(f.Body))
		return
	}
	m.deliver(sub, f.Body)
}

func (m *Manager) deliver(sub *Subscription, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscription handler panicked", "destination", sub.Destination, "panic", r)
		}
	}()
	sub.handler(sub.Destination, json.RawMessage(body))
}

func (m *Manager) heartbeat(t Transport, every time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := t.WriteHeartBeat(); err != nil {
				return
			}
		}
	}
}

// dropTransport forgets t once its session ends. Live subscriptions die
// with it.
// loopEnded marks the manager inactive when the loop for gen stops on its
// own, so the next Connect starts a fresh one. Queued subscriptions stay.
func (m *Manager) loopEnded(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.active = false
	m.connected = false
	m.transport = nil
	m.subs = make(map[string]*Subscription)
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Manager) dropTransport(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transport != t {
		return
	}
	m.transport = nil
	m.connected = false
	m.subs = make(map[string]*Subscription)
}
