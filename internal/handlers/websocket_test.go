package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesta/internal/auth"
	"vesta/internal/stomp"
	"vesta/internal/topics"
)

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, f *stomp.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, f.Encode()))
}

func nextFrame(t *testing.T, conn *websocket.Conn) *stomp.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		frames, err := stomp.Decode(data)
		require.NoError(t, err)
		if len(frames) > 0 {
			return frames[0]
		}
	}
}

func stompConnect(t *testing.T, conn *websocket.Conn, token string) *stomp.Frame {
	t.Helper()
	f := stomp.NewFrame(stomp.Connect, stomp.HdrAcceptVersion, "1.2", stomp.HdrHeartBeat, "0,0")
	if token != "" {
		f.Set(stomp.HdrAuthorization, "Bearer "+token)
	}
	sendFrame(t, conn, f)
	return nextFrame(t, conn)
}

func stompSubscribe(t *testing.T, conn *websocket.Conn, id, dest string) *stomp.Frame {
	t.Helper()
	sendFrame(t, conn, stomp.NewFrame(stomp.Subscribe, stomp.HdrID, id, stomp.HdrDestination, dest, stomp.HdrReceipt, "r-"+id))
	return nextFrame(t, conn)
}

func TestAuthorizeTopic(t *testing.T) {
	alice := auth.Principal{UserID: "alice"}
	assert.True(t, authorizeTopic(alice, topics.Messages("alice")))
	assert.True(t, authorizeTopic(alice, topics.Notifications("alice")))
	assert.False(t, authorizeTopic(alice, topics.Messages("bob")))
	assert.True(t, authorizeTopic(alice, topics.FavoriteCount("l1")))
	assert.False(t, authorizeTopic(alice, "/topic/everything"))
}

func TestWebSocketRejectsBadToken(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?access_token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketPushesMessages(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	seller, sellerUser := e.register(t, "seller@example.com", "Seller")
	buyer, _ := e.register(t, "buyer@example.com", "Buyer")
	l := e.createVehicle(t, seller, "Clio", 1)

	// Token in the CONNECT frame
	conn := dialWS(t, srv, "")
	require.Equal(t, stomp.Connected, stompConnect(t, conn, seller).Command)
	require.Equal(t, stomp.Receipt, stompSubscribe(t, conn, "m", topics.Messages(sellerUser.ID)).Command)
	require.Equal(t, stomp.Receipt, stompSubscribe(t, conn, "n", topics.Notifications(sellerUser.ID)).Command)

	rec := e.request(t, "POST", "/messages", buyer, SendMessageRequest{ListingID: l.ID, ReceiverID: sellerUser.ID, Content: "Hello"})
	require.Equal(t, http.StatusCreated, rec.Code)

	msg := nextFrame(t, conn)
	assert.Equal(t, stomp.Message, msg.Command)
	assert.Equal(t, "m", msg.Get(stomp.HdrSubscription))
	assert.Contains(t, string(msg.Body), `"content":"Hello"`)

	note := nextFrame(t, conn)
	assert.Equal(t, "n", note.Get(stomp.HdrSubscription))
	assert.Contains(t, string(note.Body), `"type":"message"`)
}

func TestWebSocketTopicOwnership(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	token, _ := e.register(t, "a@example.com", "A")
	_, other := e.register(t, "b@example.com", "B")

	// Token on the upgrade request
	conn := dialWS(t, srv, "?access_token="+token)
	require.Equal(t, stomp.Connected, stompConnect(t, conn, "").Command)

	f := stompSubscribe(t, conn, "x", topics.Messages(other.ID))
	assert.Equal(t, stomp.Error, f.Command)
	assert.Equal(t, "forbidden", f.Get(stomp.HdrMessage))
}

func TestWebSocketFavoriteCount(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	owner, _ := e.register(t, "owner@example.com", "Owner")
	fan, _ := e.register(t, "fan@example.com", "Fan")
	l := e.createVehicle(t, owner, "Clio", 1)

	conn := dialWS(t, srv, "?access_token="+fan)
	stompConnect(t, conn, "")
	require.Equal(t, stomp.Receipt, stompSubscribe(t, conn, "c", topics.FavoriteCount(l.ID)).Command)

	require.Equal(t, http.StatusCreated, e.request(t, "POST", "/favorites/"+l.ID, fan, nil).Code)
	f := nextFrame(t, conn)
	assert.JSONEq(t, `{"listingId":"`+l.ID+`","count":1}`, string(f.Body))
}

func TestWebSocketSendAppMessage(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	seller, sellerUser := e.register(t, "seller@example.com", "Seller")
	buyer, buyerUser := e.register(t, "buyer@example.com", "Buyer")
	l := e.createVehicle(t, seller, "Clio", 1)

	conn := dialWS(t, srv, "?access_token="+buyer)
	stompConnect(t, conn, "")

	send := stomp.NewFrame(stomp.Send, stomp.HdrDestination, topics.AppMessages, stomp.HdrReceipt, "s")
	send.Body = []byte(`{"listingId":"` + l.ID + `","receiverId":"` + sellerUser.ID + `","content":"Via STOMP"}`)
	sendFrame(t, conn, send)
	require.Equal(t, stomp.Receipt, nextFrame(t, conn).Command)

	convs := e.store.Conversations(sellerUser.ID)
	require.Len(t, convs, 1)
	assert.Equal(t, "Via STOMP", convs[0].LastMessage.Content)
	assert.Equal(t, buyerUser.ID, convs[0].LastMessage.SenderID)
	assert.Equal(t, 1, e.store.UnreadNotificationCount(sellerUser.ID))

	bad := stomp.NewFrame(stomp.Send, stomp.HdrDestination, topics.AppMessages)
	bad.Body = []byte(`{"listingId":"` + l.ID + `","receiverId":"` + sellerUser.ID + `","content":""}`)
	sendFrame(t, conn, bad)
	assert.Equal(t, stomp.Error, nextFrame(t, conn).Command)
}

func TestWebSocketBannedUser(t *testing.T) {
	e := newTestEnv(t)
	srv := httptest.NewServer(e.handler)
	defer srv.Close()

	token, user := e.register(t, "u@example.com", "U")
	_, err := e.store.SetBanned(user.ID, true)
	require.NoError(t, err)

	conn := dialWS(t, srv, "")
	f := stompConnect(t, conn, token)
	assert.Equal(t, stomp.Error, f.Command)
	assert.Equal(t, "unauthorized", f.Get(stomp.HdrMessage))
}
