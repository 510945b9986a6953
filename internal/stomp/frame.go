// Package stomp implements the subset of STOMP 1.2 spoken between the
// Vesta broker and its clients over WebSocket text messages.
package stomp

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Client commands
const (
	Connect     = "CONNECT"
	StompCmd    = "STOMP"
	Send        = "SEND"
	Subscribe   = "SUBSCRIBE"
	Unsubscribe = "UNSUBSCRIBE"
	Disconnect  = "DISCONNECT"
	Ack         = "ACK"
	Nack        = "NACK"
)

// Server commands
const (
	Connected = "CONNECTED"
	Message   = "MESSAGE"
	Receipt   = "RECEIPT"
	Error     = "ERROR"
)

// Well-known headers
const (
	HdrAcceptVersion = "accept-version"
	HdrVersion       = "version"
	HdrHost          = "host"
	HdrHeartBeat     = "heart-beat"
	HdrDestination   = "destination"
	HdrID            = "id"
	HdrSubscription  = "subscription"
	HdrMessageID     = "message-id"
	HdrReceipt       = "receipt"
	HdrReceiptID     = "receipt-id"
	HdrContentType   = "content-type"
	HdrContentLength = "content-length"
	HdrMessage       = "message"
	HdrServer        = "server"
	HdrSession       = "session"
	HdrAuthorization = "Authorization"
)

// Version is the only protocol version supported.
const Version = "1.2"

var (
	ErrEmptyFrame     = errors.New("stomp: empty frame")
	ErrMissingNull    = errors.New("stomp: frame is not NUL terminated")
	ErrTruncated      = errors.New("stomp: frame ends before the header block")
	ErrBadHeader      = errors.New("stomp: malformed header line")
	ErrBadHeartBeat   = errors.New("stomp: malformed heart-beat header")
	ErrUnknownCommand = errors.New("stomp: unknown command")
)

var knownCommands = map[string]bool{
	Connect: true, StompCmd: true, Send: true, Subscribe: true, Unsubscribe: true,
	Disconnect: true, Ack: true, Nack: true,
	Connected: true, Message: true, Receipt: true, Error: true,
}

// Frame is a single STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// NewFrame builds a frame from alternating header keys and values.
func NewFrame(command string, kv ...string) *Frame {
	f := &Frame{Command: command, Headers: make(map[string]string, len(kv)/2)}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Headers[kv[i]] = kv[i+1]
	}
	return f
}

// Get returns the header value or "".
func (f *Frame) Get(key string) string {
	if f.Headers == nil {
		return ""
	}
	return f.Headers[key]
}

// Set stores a header value.
func (f *Frame) Set(key, value string) {
	if f.Headers == nil {
		f.Headers = make(map[string]string)
	}
	f.Headers[key] = value
}

// Encode serializes the frame. Header order is sorted to keep output stable.
func (f *Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	escape := f.Command != Connect && f.Command != Connected
	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		if k == HdrContentLength {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := f.Headers[k]
		if escape {
			k, v = escapeHeader(k), escapeHeader(v)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(v)
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		buf.WriteString(HdrContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// String is a short form used in logs.
func (f *Frame) String() string {
	if d := f.Get(HdrDestination); d != "" {
		return f.Command + " " + d
	}
	return f.Command
}

// Decode parses every frame in data. Heart-beat EOLs between frames are
// skipped, so a payload consisting only of EOLs yields no frames.
func Decode(data []byte) ([]*Frame, error) {
	var frames []*Frame
	for {
		data = bytes.TrimLeft(data, "\r\n")
		if len(data) == 0 {
			return frames, nil
		}
		f, rest, err := decodeOne(data)
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		data = rest
	}
}

// IsHeartBeat reports whether data carries only heart-beat EOLs.
func IsHeartBeat(data []byte) bool {
	return len(data) > 0 && len(bytes.TrimLeft(data, "\r\n")) == 0
}

// HeartBeat is the wire form of a heart-beat.
var HeartBeat = []byte{'\n'}

func decodeOne(data []byte) (*Frame, []byte, error) {
	headerEnd := bytes.Index(data, []byte("\n\n"))
	crlfEnd := bytes.Index(data, []byte("\r\n\r\n"))
	sepLen := 2
	if crlfEnd >= 0 && (headerEnd < 0 || crlfEnd < headerEnd) {
		headerEnd, sepLen = crlfEnd, 4
	}
	if headerEnd < 0 {
		return nil, nil, ErrTruncated
	}

	lines := strings.Split(strings.ReplaceAll(string(data[:headerEnd]), "\r\n", "\n"), "\n")
	command := lines[0]
	if command == "" {
		return nil, nil, ErrEmptyFrame
	}
	if !knownCommands[command] {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}

	f := &Frame{Command: command, Headers: make(map[string]string, len(lines)-1)}
	unescape := command != Connect && command != Connected
	for _, line := range lines[1:] {
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return nil, nil, fmt.Errorf("%w: %q", ErrBadHeader, line)
		}
		k, v := line[:idx], line[idx+1:]
		if unescape {
			var err error
			if k, err = unescapeHeader(k); err != nil {
				return nil, nil, err
			}
			if v, err = unescapeHeader(v); err != nil {
				return nil, nil, err
			}
		}
		// Repeated headers: only the first occurrence counts.
		if _, seen := f.Headers[k]; !seen {
			f.Headers[k] = v
		}
	}

	body := data[headerEnd+sepLen:]
	if cl, ok := f.Headers[HdrContentLength]; ok {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, nil, fmt.Errorf("%w: content-length %q", ErrBadHeader, cl)
		}
		if n >= len(body) || body[n] != 0 {
			return nil, nil, ErrMissingNull
		}
		f.Body = append([]byte(nil), body[:n]...)
		delete(f.Headers, HdrContentLength)
		return f, body[n+1:], nil
	}

	end := bytes.IndexByte(body, 0)
	if end < 0 {
		return nil, nil, ErrMissingNull
	}
	if end > 0 {
		f.Body = append([]byte(nil), body[:end]...)
	}
	return f, body[end+1:], nil
}

var headerEscaper = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)

func escapeHeader(s string) string {
	return headerEscaper.Replace(s)
}

func unescapeHeader(s string) (string, error) {
	if !strings.ContainsRune(s, '\\') {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		if i+1 >= len(s) {
			return "", fmt.Errorf("%w: dangling escape in %q", ErrBadHeader, s)
		}
		i++
		switch s[i] {
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 'c':
			b.WriteByte(':')
		default:
			return "", fmt.Errorf("%w: undefined escape \\%c", ErrBadHeader, s[i])
		}
	}
	return b.String(), nil
}

// ParseHeartBeat reads a "cx,cy" heart-beat header. An empty value means 0,0.
func ParseHeartBeat(value string) (cx, cy time.Duration, err error) {
	if value == "" {
		return 0, 0, nil
	}
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadHeartBeat, value)
	}
	x, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil || x < 0 || y < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadHeartBeat, value)
	}
	return time.Duration(x) * time.Millisecond, time.Duration(y) * time.Millisecond, nil
}

// FormatHeartBeat renders a heart-beat header.
func FormatHeartBeat(out, in time.Duration) string {
	return strconv.FormatInt(out.Milliseconds(), 10) + "," + strconv.FormatInt(in.Milliseconds(), 10)
}

// Negotiate returns the effective interval for one direction: the sender
// offers `can`, the receiver asks for `want`. Zero on either side disables it.
func Negotiate(can, want time.Duration) time.Duration {
	if can == 0 || want == 0 {
		return 0
	}
	if can > want {
		return can
	}
	return want
}
