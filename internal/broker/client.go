package broker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vesta/internal/auth"
	"vesta/internal/config"
	"vesta/internal/stomp"
	"vesta/internal/topics"
)

// ServerName is sent in the CONNECTED frame
const ServerName = "vesta/" + config.Version

// Authorizer decides whether principal may subscribe to destination
type Authorizer func(p auth.Principal, destination string) bool

// AppHandler receives SEND frames addressed to an application destination
type AppHandler func(ctx context.Context, p auth.Principal, destination string, body []byte) error

// Authenticator resolves the bearer token of a CONNECT frame
type Authenticator func(token string) (auth.Principal, error)

// Options configure each client connection
type Options struct {
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	MaxFrameSize  int64
	SendQueueSize int
	HeartbeatOut  time.Duration
	HeartbeatIn   time.Duration

	Authenticate Authenticator
	Authorize    Authorizer
	App          AppHandler
}

// OptionsFromConfig copies the realtime settings into Options
func OptionsFromConfig(cfg config.RealtimeConfig) Options {
	return Options{
		PingInterval:  cfg.PingInterval,
		PongWait:      cfg.PongWait,
		WriteWait:     cfg.WriteWait,
		MaxFrameSize:  cfg.MaxFrameSize,
		SendQueueSize: cfg.SendQueueSize,
		HeartbeatOut:  cfg.HeartbeatOut,
		HeartbeatIn:   cfg.HeartbeatIn,
	}
}

func (o *Options) defaults() {
	if o.PingInterval <= 0 {
		o.PingInterval = 54 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxFrameSize <= 0 {
		o.MaxFrameSize = 64 * 1024
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
}

// Client is one STOMP session on a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	opts Options
	id   string

	// Outbound frames. A nil entry asks the write pump to close after
	// flushing what precedes it. send is never closed.
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// Negotiated outbound heart-beat, handed from read to write pump
	heartbeat chan time.Duration

	mu            sync.Mutex
	principal     auth.Principal
	authenticated bool
	connected     bool
	subs          map[string]string // subscription id -> destination
	slowConsumer  bool
	readTimeout   time.Duration
}

// NewClient creates a client. A non-nil principal means the upgrade
// request was already authenticated.
func NewClient(hub *Hub, conn *websocket.Conn, opts Options, principal *auth.Principal) *Client {
	opts.defaults()
	c := &Client{
		hub:         hub,
		conn:        conn,
		opts:        opts,
		id:          uuid.New().String(),
		send:        make(chan []byte, opts.SendQueueSize),
		done:        make(chan struct{}),
		heartbeat:   make(chan time.Duration, 1),
		subs:        make(map[string]string),
		readTimeout: opts.PongWait,
	}
	if principal != nil {
		c.principal = *principal
		c.authenticated = true
	}
	return c
}

// ID returns the STOMP session id
func (c *Client) ID() string {
	return c.id
}

// Principal returns the authenticated user of the session
func (c *Client) Principal() auth.Principal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.principal
}

// IsSubscribed reports whether the client has a subscription to destination
func (c *Client) IsSubscribed(destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.subs {
		if d == destination {
			return true
		}
	}
	return false
}

// Serve registers the client and runs both pumps until the connection ends
func (c *Client) Serve() {
	if !c.hub.Register(c) {
		c.close()
		return
	}
	go c.writePump()
	c.readPump()
}

func (c *Client) logger() *slog.Logger {
	return c.hub.logger.With("session", c.id)
}

// readPump handles inbound frames. When the session ends on our side
// (ERROR or DISCONNECT) it gives the write pump WriteWait to flush.
func (c *Client) readPump() {
	flush := false
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		if flush {
			select {
			case <-c.done:
			case <-time.After(c.opts.WriteWait):
			}
		}
		c.close()
	}()

	c.conn.SetReadLimit(c.opts.MaxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger().Warn("websocket read failed", "error", err)
			}
			return
		}
		c.extendDeadline()

		frames, err := stomp.Decode(data)
		if err != nil {
			c.fail("malformed frame", err.Error(), "")
			flush = true
			return
		}
		for _, f := range frames {
			if !c.handleFrame(f) {
				flush = true
				return
			}
		}
	}
}

func (c *Client) extendDeadline() {
	c.mu.Lock()
	d := c.readTimeout
	c.mu.Unlock()
	c.conn.SetReadDeadline(time.Now().Add(d))
}

// writePump writes queued frames, WebSocket pings and STOMP heart-beats
func (c *Client) writePump() {
	ping := time.NewTicker(c.opts.PingInterval)
	var (
		beat      *time.Ticker
		beatC     <-chan time.Time
		beatEvery time.Duration
	)
	defer func() {
		ping.Stop()
		if beat != nil {
			beat.Stop()
		}
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if data == nil {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if beat != nil {
				beat.Reset(beatEvery)
			}

		case d := <-c.heartbeat:
			if beat != nil {
				beat.Stop()
				beat, beatC = nil, nil
			}
			if d > 0 {
				beat = time.NewTicker(d)
				beatC, beatEvery = beat.C, d
			}

		case <-beatC:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, stomp.HeartBeat); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// enqueue adds a frame to the send queue without blocking. A full queue
// marks the client as a slow consumer and drops the connection.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return false
	default:
	}
	if c.slowConsumer {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
		c.slowConsumer = true
		c.hub.logger.Warn("slow consumer dropped", "session", c.id, "user", c.principal.UserID)
		c.close()
		return false
	}
}

// closeAfterFlush asks the write pump to close once queued frames are out
func (c *Client) closeAfterFlush() {
	select {
	case c.send <- nil:
	default:
		c.close()
	}
}

// close tears the connection down; safe to call many times
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) sendFrame(f *stomp.Frame) bool {
	return c.enqueue(f.Encode())
}

// fail sends an ERROR frame and closes the session
func (c *Client) fail(message, detail, receipt string) {
	f := stomp.NewFrame(stomp.Error, stomp.HdrMessage, message, stomp.HdrContentType, "text/plain")
	if receipt != "" {
		f.Set(stomp.HdrReceiptID, receipt)
	}
	if detail != "" {
		f.Body = []byte(detail)
	}
	c.logger().Debug("stomp error", "message", message, "detail", detail)
	c.sendFrame(f)
	c.closeAfterFlush()
}

func (c *Client) receipt(f *stomp.Frame) {
	if r := f.Get(stomp.HdrReceipt); r != "" {
		c.sendFrame(stomp.NewFrame(stomp.Receipt, stomp.HdrReceiptID, r))
	}
}

// handleFrame processes one client frame. It returns false when the
// session has ended.
func (c *Client) handleFrame(f *stomp.Frame) bool {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		if f.Command != stomp.Connect && f.Command != stomp.StompCmd {
			c.fail("not connected", "expected CONNECT, got "+f.Command, f.Get(stomp.HdrReceipt))
			return false
		}
		return c.handleConnect(f)
	}

	switch f.Command {
	case stomp.Subscribe:
		return c.handleSubscribe(f)
	case stomp.Unsubscribe:
		return c.handleUnsubscribe(f)
	case stomp.Send:
		return c.handleSend(f)
	case stomp.Disconnect:
		c.receipt(f)
		c.closeAfterFlush()
		return false
	case stomp.Ack, stomp.Nack:
		return true
	case stomp.Connect, stomp.StompCmd:
		c.fail("already connected", "", f.Get(stomp.HdrReceipt))
		return false
	default:
		c.fail("unknown command", f.Command, f.Get(stomp.HdrReceipt))
		return false
	}
}

func acceptsVersion(header string) bool {
	if header == "" {
		return true
	}
	for _, v := range strings.Split(header, ",") {
		if strings.TrimSpace(v) == stomp.Version {
			return true
		}
	}
	return false
}

func (c *Client) handleConnect(f *stomp.Frame) bool {
	if !acceptsVersion(f.Get(stomp.HdrAcceptVersion)) {
		c.fail("unsupported version", "supported version is "+stomp.Version, "")
		return false
	}

	cx, cy, err := stomp.ParseHeartBeat(f.Get(stomp.HdrHeartBeat))
	if err != nil {
		c.fail("bad heart-beat", err.Error(), "")
		return false
	}

	c.mu.Lock()
	authenticated := c.authenticated
	c.mu.Unlock()

	if !authenticated {
		token := auth.BearerToken(f.Get(stomp.HdrAuthorization))
		if token == "" || c.opts.Authenticate == nil {
			c.fail("unauthorized", "missing bearer token", "")
			return false
		}
		p, err := c.opts.Authenticate(token)
		if err != nil {
			c.fail("unauthorized", err.Error(), "")
			return false
		}
		c.mu.Lock()
		c.principal = p
		c.authenticated = true
		c.mu.Unlock()
	}

	out := stomp.Negotiate(c.opts.HeartbeatOut, cy)
	in := stomp.Negotiate(cx, c.opts.HeartbeatIn)

	c.mu.Lock()
	c.connected = true
	if in > 0 && 2*in > c.readTimeout {
		c.readTimeout = 2 * in
	}
	user := c.principal.UserID
	c.mu.Unlock()

	c.heartbeat <- out

	c.sendFrame(stomp.NewFrame(stomp.Connected,
		stomp.HdrVersion, stomp.Version,
		stomp.HdrHeartBeat, stomp.FormatHeartBeat(c.opts.HeartbeatOut, c.opts.HeartbeatIn),
		stomp.HdrSession, c.id,
		stomp.HdrServer, ServerName,
	))
	c.logger().Info("stomp session connected", "user", user, "heartbeat_out", out, "heartbeat_in", in)
	return true
}

func (c *Client) handleSubscribe(f *stomp.Frame) bool {
	id, dest := f.Get(stomp.HdrID), f.Get(stomp.HdrDestination)
	receipt := f.Get(stomp.HdrReceipt)
	if id == "" || dest == "" {
		c.fail("bad subscribe", "id and destination are required", receipt)
		return false
	}

	p := c.Principal()
	if strings.HasPrefix(dest, topics.AppPrefix) || (c.opts.Authorize != nil && !c.opts.Authorize(p, dest)) {
		c.fail("forbidden", "cannot subscribe to "+dest, receipt)
		return false
	}

	c.mu.Lock()
	if _, exists := c.subs[id]; exists {
		c.mu.Unlock()
		c.fail("bad subscribe", "duplicate subscription id "+id, receipt)
		return false
	}
	c.subs[id] = dest
	c.mu.Unlock()

	c.hub.send(c.hub.subscribe, &Subscription{client: c, id: id, destination: dest})
	c.logger().Debug("subscribed", "user", p.UserID, "destination", dest, "id", id)
	c.receipt(f)
	return true
}

func (c *Client) handleUnsubscribe(f *stomp.Frame) bool {
	id := f.Get(stomp.HdrID)
	if id == "" {
		c.fail("bad unsubscribe", "id is required", f.Get(stomp.HdrReceipt))
		return false
	}

	c.mu.Lock()
	dest, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if ok {
		c.hub.send(c.hub.unsubscribe, &Subscription{client: c, id: id, destination: dest})
	}
	c.receipt(f)
	return true
}

func (c *Client) handleSend(f *stomp.Frame) bool {
	dest := f.Get(stomp.HdrDestination)
	receipt := f.Get(stomp.HdrReceipt)
	if !strings.HasPrefix(dest, topics.AppPrefix) || c.opts.App == nil {
		c.fail("forbidden", "cannot send to "+dest, receipt)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.WriteWait)
	defer cancel()
	if err := c.opts.App(ctx, c.Principal(), dest, f.Body); err != nil {
		msg := "send failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "send timed out"
		}
		c.fail(msg, err.Error(), receipt)
		return false
	}
	c.receipt(f)
	return true
}
