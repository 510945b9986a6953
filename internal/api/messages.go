package api

import (
	"context"
	"net/http"
	"net/url"

	"vesta/internal/store"
)

// SendMessageRequest posts a chat message
type SendMessageRequest struct {
	ListingID  string `json:"listingId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// Thread is a conversation with its messages in send order
type Thread struct {
	Conversation store.ConversationView `json:"conversation"`
	Messages     []*store.Message       `json:"messages"`
}

func conversationPath(id string, rest ...string) string {
	p := "/messages/conversations/" + url.PathEscape(id)
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// Conversations lists the caller's conversations, newest activity first
func (c *Client) Conversations(ctx context.Context) ([]store.ConversationView, error) {
	var out []store.ConversationView
	if err := c.get(ctx, "/messages/conversations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Thread fetches one conversation with its messages
func (c *Client) Thread(ctx context.Context, conversationID string) (*Thread, error) {
	var t Thread
	if err := c.get(ctx, conversationPath(conversationID), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SendMessage posts a chat message
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*store.Message, error) {
	var m store.Message
	if err := c.send(ctx, http.MethodPost, "/messages", req, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarkConversationRead marks the caller's received messages read and
// returns how many changed.
func (c *Client) MarkConversationRead(ctx context.Context, conversationID string) (int, error) {
	var res updatedBody
	if err := c.send(ctx, http.MethodPut, conversationPath(conversationID, "read"), nil, &res); err != nil {
		return 0, err
	}
	return res.Updated, nil
}

// UnreadMessageCount returns the server-side unread message count
func (c *Client) UnreadMessageCount(ctx context.Context) (int, error) {
	var res countBody
	if err := c.get(ctx, "/messages/unread-count", nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// LeaveConversation hides a conversation until a new message arrives
func (c *Client) LeaveConversation(ctx context.Context, conversationID string) error {
	return c.send(ctx, http.MethodDelete, conversationPath(conversationID), nil, nil)
}
