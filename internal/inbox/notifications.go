// Package inbox reconciles REST fetches, realtime pushes and read actions
// into local notification and conversation state with unread counters.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"vesta/internal/store"
)

// NotificationAPI is the REST surface the notification center needs
type NotificationAPI interface {
	Notifications(ctx context.Context) ([]*store.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) (int, error)
}

// NotificationCenter holds the notification list and its unread counter
type NotificationCenter struct {
	api    NotificationAPI
	logger *slog.Logger

	mu     sync.Mutex
	items  []*store.Notification
	unread int
	isOpen func(conversationID string) bool
}

// NewNotificationCenter creates an empty center
func NewNotificationCenter(client NotificationAPI, logger *slog.Logger) *NotificationCenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationCenter{api: client, logger: logger.With("component", "notifications")}
}

// Load replaces local state with the server list
func (n *NotificationCenter) Load(ctx context.Context) error {
	items, err := n.api.Notifications(ctx)
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	unread := 0
	for _, it := range items {
		if !it.Read {
			unread++
		}
	}
	n.mu.Lock()
	n.items = items
	n.unread = unread
	n.mu.Unlock()
	return nil
}

// SetConversationOpen installs a check for the conversation on screen.
// Message notifications for that conversation arrive already read.
// Conversations.IsOpen fits.
func (n *NotificationCenter) SetConversationOpen(isOpen func(conversationID string) bool) {
	n.mu.Lock()
	n.isOpen = isOpen
	n.mu.Unlock()
}

// Push prepends a pushed notification. Nothing is de-duplicated against
// the loaded list. Read state for open conversations is local only.
func (n *NotificationCenter) Push(item *store.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !item.Read && item.Type == store.NotificationMessage && item.RefID != "" &&
		n.isOpen != nil && n.isOpen(item.RefID) {
		item.Read = true
	}
	n.items = append([]*store.Notification{item}, n.items...)
	if !item.Read {
		n.unread++
	}
}

// HandlePush decodes a realtime payload and pushes it. It matches
// realtime.Handler.
func (n *NotificationCenter) HandlePush(_ string, body json.RawMessage) {
	var item store.Notification
	if err := json.Unmarshal(body, &item); err != nil {
		n.logger.Warn("dropping notification payload", "error", err)
		return
	}
	n.Push(&item)
}

// MarkRead marks one notification read locally, then on the server.
// Every unread copy of id flips and each one counted leaves the counter,
// so repeated calls change nothing. A failed REST call is logged and kept.
func (n *NotificationCenter) MarkRead(ctx context.Context, id string) {
	n.mu.Lock()
	flipped := 0
	for _, it := range n.items {
		if it.ID == id && !it.Read {
			it.Read = true
			flipped++
		}
	}
	n.unread = max(n.unread-flipped, 0)
	n.mu.Unlock()

	if flipped == 0 {
		return
	}
	if err := n.api.MarkNotificationRead(ctx, id); err != nil {
		n.logger.Warn("mark notification read failed", "id", id, "error", err)
	}
}

// MarkAllRead zeroes the counter and issues one mark-all call
func (n *NotificationCenter) MarkAllRead(ctx context.Context) {
	n.mu.Lock()
	for _, it := range n.items {
		it.Read = true
	}
	n.unread = 0
	n.mu.Unlock()

	if _, err := n.api.MarkAllNotificationsRead(ctx); err != nil {
		n.logger.Warn("mark all notifications read failed", "error", err)
	}
}

// Unread returns the local unread counter
func (n *NotificationCenter) Unread() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unread
}

// Items returns a copy of the list, newest first
func (n *NotificationCenter) Items() []store.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]store.Notification, len(n.items))
	for i, it := range n.items {
		out[i] = *it
	}
	return out
}
