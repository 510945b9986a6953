package broker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesta/internal/auth"
	"vesta/internal/stomp"
)

type testServer struct {
	hub    *Hub
	server *httptest.Server
}

func newTestServer(t *testing.T, opts Options, principal *auth.Principal) *testServer {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		NewClient(hub, conn, opts, principal).Serve()
	}))
	t.Cleanup(func() {
		srv.Close()
		hub.Shutdown()
	})
	return &testServer{hub: hub, server: srv}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, f *stomp.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, f.Encode()))
}

func readFrame(t *testing.T, conn *websocket.Conn) *stomp.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		if stomp.IsHeartBeat(data) {
			continue
		}
		frames, err := stomp.Decode(data)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		return frames[0]
	}
}

func connect(t *testing.T, conn *websocket.Conn, kv ...string) *stomp.Frame {
	t.Helper()
	headers := append([]string{stomp.HdrAcceptVersion, "1.2", stomp.HdrHeartBeat, "0,0"}, kv...)
	writeFrame(t, conn, stomp.NewFrame(stomp.Connect, headers...))
	return readFrame(t, conn)
}

func subscribe(t *testing.T, conn *websocket.Conn, id, dest string) {
	t.Helper()
	writeFrame(t, conn, stomp.NewFrame(stomp.Subscribe,
		stomp.HdrID, id, stomp.HdrDestination, dest, stomp.HdrReceipt, "sub-"+id))
	f := readFrame(t, conn)
	require.Equal(t, stomp.Receipt, f.Command, f.String())
	require.Equal(t, "sub-"+id, f.Get(stomp.HdrReceiptID))
}

var alice = &auth.Principal{UserID: "alice"}

func TestConnectAndReceive(t *testing.T) {
	s := newTestServer(t, Options{HeartbeatOut: 10 * time.Second, HeartbeatIn: 10 * time.Second}, alice)
	conn := s.dial(t)

	connected := connect(t, conn)
	require.Equal(t, stomp.Connected, connected.Command)
	assert.Equal(t, stomp.Version, connected.Get(stomp.HdrVersion))
	assert.Equal(t, "10000,10000", connected.Get(stomp.HdrHeartBeat))
	assert.Equal(t, ServerName, connected.Get(stomp.HdrServer))
	assert.NotEmpty(t, connected.Get(stomp.HdrSession))

	subscribe(t, conn, "0", "/topic/messages/alice")
	assert.Equal(t, 1, s.hub.SubscriberCount("/topic/messages/alice"))

	require.NoError(t, s.hub.Publish("/topic/messages/alice", []byte(`{"content":"hi"}`)))

	msg := readFrame(t, conn)
	assert.Equal(t, stomp.Message, msg.Command)
	assert.Equal(t, "0", msg.Get(stomp.HdrSubscription))
	assert.Equal(t, "/topic/messages/alice", msg.Get(stomp.HdrDestination))
	assert.Equal(t, "application/json", msg.Get(stomp.HdrContentType))
	assert.NotEmpty(t, msg.Get(stomp.HdrMessageID))
	assert.JSONEq(t, `{"content":"hi"}`, string(msg.Body))
}

func TestMessagesKeepPublishOrder(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)
	subscribe(t, conn, "a", "/topic/notifications/alice")

	for _, body := range []string{`1`, `2`, `3`} {
		require.NoError(t, s.hub.Publish("/topic/notifications/alice", []byte(body)))
	}
	for _, want := range []string{`1`, `2`, `3`} {
		assert.Equal(t, want, string(readFrame(t, conn).Body))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)
	subscribe(t, conn, "0", "/topic/listing/l1/favoriteCount")
	subscribe(t, conn, "1", "/topic/listing/l2/favoriteCount")

	writeFrame(t, conn, stomp.NewFrame(stomp.Unsubscribe, stomp.HdrID, "0", stomp.HdrReceipt, "u0"))
	require.Equal(t, stomp.Receipt, readFrame(t, conn).Command)
	assert.Equal(t, 0, s.hub.SubscriberCount("/topic/listing/l1/favoriteCount"))

	require.NoError(t, s.hub.Publish("/topic/listing/l1/favoriteCount", []byte(`1`)))
	require.NoError(t, s.hub.Publish("/topic/listing/l2/favoriteCount", []byte(`2`)))

	msg := readFrame(t, conn)
	assert.Equal(t, "1", msg.Get(stomp.HdrSubscription))
	assert.Equal(t, "2", string(msg.Body))
}

func TestConnectRequiresToken(t *testing.T) {
	s := newTestServer(t, Options{
		Authenticate: func(string) (auth.Principal, error) { return auth.Principal{}, errors.New("bad token") },
	}, nil)
	conn := s.dial(t)

	f := connect(t, conn)
	assert.Equal(t, stomp.Error, f.Command)
	assert.Equal(t, "unauthorized", f.Get(stomp.HdrMessage))
}

func TestConnectWithAuthorizationHeader(t *testing.T) {
	s := newTestServer(t, Options{
		Authenticate: func(token string) (auth.Principal, error) {
			if token != "good" {
				return auth.Principal{}, errors.New("bad token")
			}
			return auth.Principal{UserID: "bob"}, nil
		},
		Authorize: func(p auth.Principal, dest string) bool {
			return dest == "/topic/messages/"+p.UserID
		},
	}, nil)

	conn := s.dial(t)
	f := connect(t, conn, stomp.HdrAuthorization, "Bearer good")
	require.Equal(t, stomp.Connected, f.Command)
	subscribe(t, conn, "0", "/topic/messages/bob")

	other := s.dial(t)
	assert.Equal(t, stomp.Error, connect(t, other, stomp.HdrAuthorization, "Bearer nope").Command)
}

func TestSubscribeForbidden(t *testing.T) {
	s := newTestServer(t, Options{
		Authorize: func(p auth.Principal, dest string) bool { return dest == "/topic/messages/"+p.UserID },
	}, alice)
	conn := s.dial(t)
	connect(t, conn)

	writeFrame(t, conn, stomp.NewFrame(stomp.Subscribe,
		stomp.HdrID, "0", stomp.HdrDestination, "/topic/messages/bob", stomp.HdrReceipt, "r"))
	f := readFrame(t, conn)
	assert.Equal(t, stomp.Error, f.Command)
	assert.Equal(t, "forbidden", f.Get(stomp.HdrMessage))
	assert.Equal(t, "r", f.Get(stomp.HdrReceiptID))
}

func TestFramesBeforeConnectRejected(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)

	writeFrame(t, conn, stomp.NewFrame(stomp.Subscribe, stomp.HdrID, "0", stomp.HdrDestination, "/topic/x"))
	f := readFrame(t, conn)
	assert.Equal(t, stomp.Error, f.Command)
	assert.Equal(t, "not connected", f.Get(stomp.HdrMessage))
}

func TestUnsupportedVersion(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)

	writeFrame(t, conn, stomp.NewFrame(stomp.Connect, stomp.HdrAcceptVersion, "1.0,1.1"))
	assert.Equal(t, stomp.Error, readFrame(t, conn).Command)
}

func TestDuplicateSubscriptionID(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)
	subscribe(t, conn, "0", "/topic/a")

	writeFrame(t, conn, stomp.NewFrame(stomp.Subscribe, stomp.HdrID, "0", stomp.HdrDestination, "/topic/b"))
	assert.Equal(t, stomp.Error, readFrame(t, conn).Command)
}

func TestSendToApplication(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []string
		from string
	)
	s := newTestServer(t, Options{
		App: func(_ context.Context, p auth.Principal, dest string, body []byte) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, dest+" "+string(body))
			from = p.UserID
			return nil
		},
	}, alice)
	conn := s.dial(t)
	connect(t, conn)

	send := stomp.NewFrame(stomp.Send, stomp.HdrDestination, "/app/messages", stomp.HdrReceipt, "s1")
	send.Body = []byte(`{"content":"hello"}`)
	writeFrame(t, conn, send)

	f := readFrame(t, conn)
	require.Equal(t, stomp.Receipt, f.Command)
	assert.Equal(t, "s1", f.Get(stomp.HdrReceiptID))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{`/app/messages {"content":"hello"}`}, got)
	assert.Equal(t, "alice", from)
}

func TestSendToTopicForbidden(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)

	send := stomp.NewFrame(stomp.Send, stomp.HdrDestination, "/topic/messages/bob")
	send.Body = []byte(`{}`)
	writeFrame(t, conn, send)
	assert.Equal(t, stomp.Error, readFrame(t, conn).Command)
}

func TestDisconnectReceipt(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)

	writeFrame(t, conn, stomp.NewFrame(stomp.Disconnect, stomp.HdrReceipt, "bye"))
	f := readFrame(t, conn)
	assert.Equal(t, stomp.Receipt, f.Command)
	assert.Equal(t, "bye", f.Get(stomp.HdrReceiptID))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	assert.Eventually(t, func() bool { return s.hub.GetStats().TotalClients == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestMalformedFrameClosesSession(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("SEND\ndestination:/app/messages\n\nno terminator")))
	f := readFrame(t, conn)
	assert.Equal(t, stomp.Error, f.Command)
	assert.Equal(t, "malformed frame", f.Get(stomp.HdrMessage))
}

func TestStatsCountPublications(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)
	subscribe(t, conn, "0", "/topic/a")

	require.NoError(t, s.hub.Publish("/topic/a", []byte(`{}`)))
	require.NoError(t, s.hub.Publish("/topic/none", []byte(`{}`)))
	readFrame(t, conn)

	assert.Eventually(t, func() bool {
		stats := s.hub.GetStats()
		return stats.TotalPublished == 2 && stats.TotalDelivered == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.hub.GetStats().ActiveDestinations)

	dests := s.hub.Destinations()
	require.Len(t, dests, 1)
	assert.Equal(t, int64(1), dests["/topic/a"].MessageCount)
	assert.Equal(t, 1, dests["/topic/a"].SubscriberCount)
	assert.NotContains(t, dests, "/topic/none")
}

func TestDestinationsPruned(t *testing.T) {
	s := newTestServer(t, Options{}, alice)
	conn := s.dial(t)
	connect(t, conn)
	subscribe(t, conn, "0", "/topic/a")
	subscribe(t, conn, "1", "/topic/b")
	require.Eventually(t, func() bool { return len(s.hub.Destinations()) == 2 }, time.Second, 10*time.Millisecond)

	for i := 0; i < 100; i++ {
		require.NoError(t, s.hub.Publish(fmt.Sprintf("/topic/unwatched/%d", i), []byte(`{}`)))
	}
	require.Eventually(t, func() bool { return s.hub.GetStats().TotalPublished == 100 }, time.Second, 10*time.Millisecond)
	assert.Len(t, s.hub.Destinations(), 2)

	writeFrame(t, conn, stomp.NewFrame(stomp.Unsubscribe, stomp.HdrID, "1"))
	require.Eventually(t, func() bool { return s.hub.SubscriberCount("/topic/b") == 0 }, time.Second, 10*time.Millisecond)
	dests := s.hub.Destinations()
	assert.Len(t, dests, 1)
	assert.Contains(t, dests, "/topic/a")

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return len(s.hub.Destinations()) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishAfterShutdown(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	hub.Shutdown()
	hub.Shutdown()

	assert.ErrorIs(t, hub.Publish("/topic/a", nil), ErrHubClosed)
}

type recordingRelay struct {
	mu   sync.Mutex
	pubs []*Publication
}

func (r *recordingRelay) Forward(_ context.Context, p *Publication) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pubs = append(r.pubs, p)
	return nil
}

func TestPublishForwardsToRelay(t *testing.T) {
	hub := NewHub(nil)
	relay := &recordingRelay{}
	hub.SetRelay(relay)
	go hub.Run()
	defer hub.Shutdown()

	require.NoError(t, hub.Publish("/topic/a", []byte(`1`)))
	require.NoError(t, hub.PublishLocal(&Publication{Destination: "/topic/b"}))

	relay.mu.Lock()
	defer relay.mu.Unlock()
	require.Len(t, relay.pubs, 1)
	assert.Equal(t, "/topic/a", relay.pubs[0].Destination)
}
