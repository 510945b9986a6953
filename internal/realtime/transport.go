package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"vesta/internal/stomp"
)

// ErrMalformedFrame is returned by ReadFrames for undecodable messages.
// The connection stays usable.
var ErrMalformedFrame = errors.New("malformed stomp frame")

// Transport carries STOMP frames over one connection
type Transport interface {
	WriteFrame(f *stomp.Frame) error
	WriteHeartBeat() error
	// ReadFrames blocks for the next message; heart-beats yield no frames.
	ReadFrames() ([]*stomp.Frame, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens transports
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// WebSocketDialer dials the broker with gorilla/websocket
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial connects to url, negotiating the v12.stomp subprotocol
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Transport, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{"v12.stomp"},
		}
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (t *wsTransport) write(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) WriteFrame(f *stomp.Frame) error {
	return t.write(f.Encode())
}

func (t *wsTransport) WriteHeartBeat() error {
	return t.write(stomp.HeartBeat)
}

func (t *wsTransport) ReadFrames() ([]*stomp.Frame, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	frames, err := stomp.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frames, nil
}

func (t *wsTransport) SetReadDeadline(deadline time.Time) error {
	return t.conn.SetReadDeadline(deadline)
}

func (t *wsTransport) Close() error {
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return t.conn.Close()
}
