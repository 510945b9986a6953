package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"vesta/internal/api"
	"vesta/internal/store"
)

const pushCallTimeout = 10 * time.Second

// ConversationAPI is the REST surface the conversation list needs
type ConversationAPI interface {
	Conversations(ctx context.Context) ([]store.ConversationView, error)
	Thread(ctx context.Context, conversationID string) (*api.Thread, error)
	MarkConversationRead(ctx context.Context, conversationID string) (int, error)
}

// Conversations is the local conversation list, the open thread and the
// global unread message counter.
type Conversations struct {
	api    ConversationAPI
	self   string
	logger *slog.Logger

	mu     sync.Mutex
	list   []store.ConversationView
	openID string
	thread []*store.Message
	total  int
}

// NewConversations tracks conversations for user selfID
func NewConversations(client ConversationAPI, selfID string, logger *slog.Logger) *Conversations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conversations{api: client, self: selfID, logger: logger.With("component", "conversations")}
}

// Load replaces the list with the server's
func (c *Conversations) Load(ctx context.Context) error {
	list, err := c.api.Conversations(ctx)
	if err != nil {
		return fmt.Errorf("load conversations: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list
	c.total = 0
	for i := range c.list {
		if c.list[i].ID == c.openID {
			c.list[i].UnreadCount = 0
		}
		c.total += c.list[i].UnreadCount
	}
	c.sortLocked()
	return nil
}

// Open makes conversationID the open thread. Its unread count is zeroed
// before the thread is fetched, so pushes racing the fetch never count.
func (c *Conversations) Open(ctx context.Context, conversationID string) ([]store.Message, error) {
	c.mu.Lock()
	c.openID = conversationID
	c.thread = nil
	if i := c.indexLocked(conversationID); i >= 0 {
		c.total -= c.list[i].UnreadCount
		c.list[i].UnreadCount = 0
	}
	c.mu.Unlock()

	t, err := c.api.Thread(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}

	c.mu.Lock()
	if c.openID != conversationID {
		c.mu.Unlock()
		return copyMessages(t.Messages), nil
	}
	fetched := make(map[string]bool, len(t.Messages))
	for _, m := range t.Messages {
		fetched[m.ID] = true
	}
	pushed := c.thread
	c.thread = append([]*store.Message(nil), t.Messages...)
	for _, m := range pushed {
		if !fetched[m.ID] {
			c.thread = append(c.thread, m)
		}
	}
	if c.indexLocked(conversationID) < 0 {
		view := t.Conversation
		view.UnreadCount = 0
		c.list = append(c.list, view)
		c.sortLocked()
	}
	out := copyMessages(c.thread)
	c.mu.Unlock()

	c.markRead(ctx, conversationID)
	return out, nil
}

// Close leaves the open conversation
func (c *Conversations) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openID = ""
	c.thread = nil
}

// Push applies a pushed message. A message for the open thread is
// appended and marked read at once; any other counts as unread.
func (c *Conversations) Push(ctx context.Context, m *store.Message) {
	c.mu.Lock()
	open := m.ConversationID == c.openID && c.openID != ""
	incoming := c.self == "" || m.SenderID != c.self

	i := c.indexLocked(m.ConversationID)
	if i < 0 {
		c.list = append(c.list, store.ConversationView{
			ID:        m.ConversationID,
			ListingID: m.ListingID,
		})
		i = len(c.list) - 1
	}
	view := &c.list[i]
	view.LastMessage = m
	view.UpdatedAt = m.CreatedAt

	if open {
		c.thread = append(c.thread, m)
	} else if incoming && !m.Read {
		view.UnreadCount++
		c.total++
	}
	c.sortLocked()
	c.mu.Unlock()

	if open && incoming {
		c.markRead(ctx, m.ConversationID)
	}
}

// HandlePush decodes a realtime payload and pushes it. It matches
// realtime.Handler.
func (c *Conversations) HandlePush(_ string, body json.RawMessage) {
	var m store.Message
	if err := json.Unmarshal(body, &m); err != nil {
		c.logger.Warn("dropping message payload", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), pushCallTimeout)
	defer cancel()
	c.Push(ctx, &m)
}

func (c *Conversations) markRead(ctx context.Context, conversationID string) {
	if _, err := c.api.MarkConversationRead(ctx, conversationID); err != nil {
		c.logger.Warn("mark conversation read failed", "conversation", conversationID, "error", err)
	}
}

// TotalUnread is the global unread message counter
func (c *Conversations) TotalUnread() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// IsOpen reports whether conversationID is on screen
func (c *Conversations) IsOpen(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return conversationID != "" && c.openID == conversationID
}

// OpenID returns the open conversation or ""
func (c *Conversations) OpenID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openID
}

// List returns the conversations, newest activity first
func (c *Conversations) List() []store.ConversationView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.ConversationView(nil), c.list...)
}

// Thread returns the open thread in arrival order
func (c *Conversations) Thread() []store.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyMessages(c.thread)
}

func (c *Conversations) indexLocked(id string) int {
	for i := range c.list {
		if c.list[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Conversations) sortLocked() {
	sort.SliceStable(c.list, func(i, j int) bool {
		return lastActivity(c.list[i]).After(lastActivity(c.list[j]))
	})
}

func lastActivity(v store.ConversationView) time.Time {
	if v.LastMessage != nil && v.LastMessage.CreatedAt.After(v.UpdatedAt) {
		return v.LastMessage.CreatedAt
	}
	return v.UpdatedAt
}

func copyMessages(in []*store.Message) []store.Message {
	out := make([]store.Message, len(in))
	for i, m := range in {
		out[i] = *m
	}
	return out
}
