package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"vesta/internal/auth"
	"vesta/internal/store"
	"vesta/internal/topics"
)

// SendMessageRequest is the body of POST /messages and of SEND frames to
// /app/messages
type SendMessageRequest struct {
	ListingID  string `json:"listingId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
}

// ThreadResponse is a conversation with its messages
type ThreadResponse struct {
	Conversation store.ConversationView `json:"conversation"`
	Messages     []*store.Message       `json:"messages"`
}

// MarkedResponse reports how many items changed
type MarkedResponse struct {
	Updated int `json:"updated"`
}

// deliverMessage stores a chat message and pushes it to the receiver
func (a *API) deliverMessage(senderID string, req SendMessageRequest) (*store.Message, error) {
	msg, err := a.store.SendMessage(senderID, req.ReceiverID, req.ListingID, req.Content)
	if err != nil {
		return nil, err
	}
	a.publishJSON(topics.Messages(msg.ReceiverID), msg)

	title := "New message"
	if u, err := a.store.User(senderID); err == nil {
		title = "New message from " + u.Name
	}
	a.notify(msg.ReceiverID, store.NotificationMessage, title, preview(msg.Content, 80), msg.ConversationID)
	return msg, nil
}

// SendMessage serves POST /messages
// @Summary Send a chat message
// @Tags messages
// @Accept json
// @Produce json
// @Param body body SendMessageRequest true "Message"
// @Success 201 {object} store.Message
// @Security BearerAuth
// @Router /messages [post]
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	msg, err := a.deliverMessage(principal(r).UserID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleAppSend receives STOMP SEND frames for application destinations
func (a *API) HandleAppSend(_ context.Context, p auth.Principal, destination string, body []byte) error {
	if destination != topics.AppMessages {
		return fmt.Errorf("destination %s: %w", destination, store.ErrNotFound)
	}
	var req SendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errMalformedBody
	}
	_, err := a.deliverMessage(p.UserID, req)
	return err
}

// Conversations lists the caller's conversations
func (a *API) Conversations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Conversations(principal(r).UserID))
}

// Thread returns one conversation and its messages
func (a *API) Thread(w http.ResponseWriter, r *http.Request) {
	userID, id := principal(r).UserID, mux.Vars(r)["id"]
	conv, err := a.store.Conversation(userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	msgs, err := a.store.Messages(userID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ThreadResponse{Conversation: conv, Messages: msgs})
}

// MarkConversationRead marks the caller's received messages as read
func (a *API) MarkConversationRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.MarkConversationRead(principal(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MarkedResponse{Updated: n})
}

// UnreadMessages returns the caller's unread message count
func (a *API) UnreadMessages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CountResponse{Count: a.store.UnreadMessageCount(principal(r).UserID)})
}

// LeaveConversation hides a conversation for the caller
func (a *API) LeaveConversation(w http.ResponseWriter, r *http.Request) {
	if err := a.store.LeaveConversation(principal(r).UserID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
