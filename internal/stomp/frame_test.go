package stomp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeMessage(t *testing.T) {
	f := NewFrame(Message,
		HdrDestination, "/topic/messages/u1",
		HdrSubscription, "sub-0",
		HdrMessageID, "m-1",
	)
	f.Body = []byte(`{"content":"merhaba"}`)

	frames, err := Decode(f.Encode())
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got := frames[0]
	assert.Equal(t, Message, got.Command)
	assert.Equal(t, "/topic/messages/u1", got.Get(HdrDestination))
	assert.Equal(t, "sub-0", got.Get(HdrSubscription))
	assert.Equal(t, `{"content":"merhaba"}`, string(got.Body))
	assert.Empty(t, got.Get(HdrContentLength), "content-length is consumed by the decoder")
}

func TestHeaderEscaping(t *testing.T) {
	f := NewFrame(Send, HdrDestination, "/app/messages", "note", "a:b\nc\\d")
	frames, err := Decode(f.Encode())
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "a:b\nc\\d", frames[0].Get("note"))
}

func TestConnectHeadersAreNotEscaped(t *testing.T) {
	raw := "CONNECT\naccept-version:1.2\nAuthorization:Bearer a\\cb\n\n\x00"
	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, `Bearer a\cb`, frames[0].Get(HdrAuthorization))
}

func TestDecodeMultipleFramesAndHeartBeats(t *testing.T) {
	raw := "\n\nSUBSCRIBE\nid:0\ndestination:/topic/a\n\n\x00\r\nUNSUBSCRIBE\r\nid:0\r\n\r\n\x00\n"
	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, Subscribe, frames[0].Command)
	assert.Equal(t, "/topic/a", frames[0].Get(HdrDestination))
	assert.Equal(t, Unsubscribe, frames[1].Command)
	assert.Equal(t, "0", frames[1].Get(HdrID))
}

func TestDecodeBodyWithNulUsesContentLength(t *testing.T) {
	raw := "SEND\ndestination:/app/x\ncontent-length:3\n\na\x00b\x00"
	frames, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("a\x00b"), frames[0].Body)
}

func TestRepeatedHeaderFirstWins(t *testing.T) {
	frames, err := Decode([]byte("MESSAGE\nfoo:1\nfoo:2\n\n\x00"))
	require.NoError(t, err)
	assert.Equal(t, "1", frames[0].Get("foo"))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "unknown command", raw: "HELLO\n\n\x00", want: ErrUnknownCommand},
		{name: "missing nul", raw: "SEND\ndestination:/a\n\nbody", want: ErrMissingNull},
		{name: "no header terminator", raw: "SEND\ndestination:/a", want: ErrTruncated},
		{name: "bad header", raw: "SEND\nnocolon\n\n\x00", want: ErrBadHeader},
		{name: "bad escape", raw: "SEND\nk:\\t\n\n\x00", want: ErrBadHeader},
		{name: "short content-length", raw: "SEND\ncontent-length:10\n\nab\x00", want: ErrMissingNull},
		{name: "max int content-length", raw: "MESSAGE\ndestination:/topic/x\ncontent-length:9223372036854775807\n\n{}\x00", want: ErrMissingNull},
		{name: "content-length equal to body", raw: "MESSAGE\ncontent-length:3\n\n{}\x00", want: ErrMissingNull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsHeartBeat(t *testing.T) {
	assert.True(t, IsHeartBeat([]byte("\n")))
	assert.True(t, IsHeartBeat([]byte("\r\n\n")))
	assert.False(t, IsHeartBeat(nil))
	assert.False(t, IsHeartBeat([]byte("CONNECTED\n\n\x00")))
}

func TestHeartBeatHeader(t *testing.T) {
	cx, cy, err := ParseHeartBeat("10000, 5000")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cx)
	assert.Equal(t, 5*time.Second, cy)

	cx, cy, err = ParseHeartBeat("")
	require.NoError(t, err)
	assert.Zero(t, cx)
	assert.Zero(t, cy)

	_, _, err = ParseHeartBeat("x,1")
	assert.ErrorIs(t, err, ErrBadHeartBeat)

	assert.Equal(t, "10000,0", FormatHeartBeat(10*time.Second, 0))
}

func TestNegotiate(t *testing.T) {
	assert.Equal(t, 10*time.Second, Negotiate(10*time.Second, 5*time.Second))
	assert.Equal(t, 20*time.Second, Negotiate(10*time.Second, 20*time.Second))
	assert.Zero(t, Negotiate(0, 5*time.Second))
	assert.Zero(t, Negotiate(5*time.Second, 0))
}
