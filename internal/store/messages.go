package store

import (
	"fmt"
	"sort"
	"strings"
)

func conversationKey(listingID, a, b string) string {
	if a > b {
		a, b = b, a
	}
	return listingID + "|" + a + "|" + b
}

func (c *Conversation) has(userID string) bool {
	for _, p := range c.ParticipantIDs {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) other(userID string) string {
	for _, p := range c.ParticipantIDs {
		if p != userID {
			return p
		}
	}
	return ""
}

// findConversation locates the conversation for a listing and user pair.
// Caller holds s.mu.
func (s *Store) findConversation(listingID, a, b string) *Conversation {
	key := conversationKey(listingID, a, b)
	for _, c := range s.conversations {
		if conversationKey(c.ListingID, c.ParticipantIDs[0], c.ParticipantIDs[1]) == key {
			return c
		}
	}
	return nil
}

// SendMessage delivers a message from sender to receiver about a listing,
// creating the conversation on first contact.
func (s *Store) SendMessage(senderID, receiverID, listingID, content string) (*Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, fmt.Errorf("message content is required: %w", ErrInvalid)
	case len(content) > maxMessageLen:
		return nil, fmt.Errorf("message longer than %d characters: %w", maxMessageLen, ErrInvalid)
	case senderID == receiverID:
		return nil, fmt.Errorf("cannot message yourself: %w", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.users[senderID]
	if !ok {
		return nil, fmt.Errorf("sender %s: %w", senderID, ErrNotFound)
	}
	if sender.Banned {
		return nil, fmt.Errorf("banned users cannot send messages: %w", ErrForbidden)
	}
	if _, ok := s.users[receiverID]; !ok {
		return nil, fmt.Errorf("receiver %s: %w", receiverID, ErrNotFound)
	}
	listing, ok := s.listings[listingID]
	if !ok {
		return nil, fmt.Errorf("listing %s: %w", listingID, ErrNotFound)
	}
	if listing.OwnerID != senderID && listing.OwnerID != receiverID {
		return nil, fmt.Errorf("conversations must include the listing owner: %w", ErrInvalid)
	}

	now := s.now().UTC()
	conv := s.findConversation(listingID, senderID, receiverID)
	if conv == nil {
		conv = &Conversation{
			ID:             s.newID(),
			ListingID:      listingID,
			ParticipantIDs: []string{senderID, receiverID},
			Unread:         make(map[string]int),
			Hidden:         make(map[string]bool),
			CreatedAt:      now,
		}
		s.conversations[conv.ID] = conv
	}

	msg := &Message{
		ID:             s.newID(),
		ConversationID: conv.ID,
		ListingID:      listingID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		CreatedAt:      now,
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], msg)
	conv.LastMessage = msg
	conv.UpdatedAt = now
	conv.Unread[receiverID]++
	delete(conv.Hidden, senderID)
	delete(conv.Hidden, receiverID)

	copied := *msg
	return &copied, nil
}

// view renders conv for userID. Caller holds s.mu.
func (s *Store) view(conv *Conversation, userID string) ConversationView {
	v := ConversationView{
		ID:          conv.ID,
		ListingID:   conv.ListingID,
		UnreadCount: conv.Unread[userID],
		UpdatedAt:   conv.UpdatedAt,
	}
	if l, ok := s.listings[conv.ListingID]; ok {
		v.ListingTitle = l.Title
	}
	if u, ok := s.users[conv.other(userID)]; ok {
		v.OtherUser = u.Public()
	}
	if conv.LastMessage != nil {
		last := *conv.LastMessage
		v.LastMessage = &last
	}
	return v
}

// Conversation returns one conversation as seen by userID
func (s *Store) Conversation(userID, conversationID string) (ConversationView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, err := s.participantOf(userID, conversationID)
	if err != nil {
		return ConversationView{}, err
	}
	return s.view(conv, userID), nil
}

// Conversations lists userID's conversations, most recent activity first
func (s *Store) Conversations(userID string) []ConversationView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]ConversationView, 0)
	for _, conv := range s.conversations {
		if conv.has(userID) && !conv.Hidden[userID] {
			views = append(views, s.view(conv, userID))
		}
	}
	sort.SliceStable(views, func(i, j int) bool { return views[i].UpdatedAt.After(views[j].UpdatedAt) })
	return views
}

// participantOf returns the conversation if userID takes part. Caller holds s.mu.
func (s *Store) participantOf(userID, conversationID string) (*Conversation, error) {
	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrNotFound)
	}
	if !conv.has(userID) {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrForbidden)
	}
	return conv, nil
}

// Messages returns the thread in send order
func (s *Store) Messages(userID, conversationID string) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.participantOf(userID, conversationID); err != nil {
		return nil, err
	}
	msgs := s.messages[conversationID]
	out := make([]*Message, len(msgs))
	for i, m := range msgs {
		copied := *m
		out[i] = &copied
	}
	return out, nil
}

// MarkConversationRead marks every message userID received in the
// conversation as read and returns how many flipped.
func (s *Store) MarkConversationRead(userID, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.participantOf(userID, conversationID)
	if err != nil {
		return 0, err
	}
	marked := 0
	for _, m := range s.messages[conversationID] {
		if m.ReceiverID == userID && !m.Read {
			m.Read = true
			marked++
		}
	}
	conv.Unread[userID] = 0
	return marked, nil
}

// UnreadMessageCount sums userID's unread messages over all conversations
func (s *Store) UnreadMessageCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, conv := range s.conversations {
		if conv.has(userID) && !conv.Hidden[userID] {
			total += conv.Unread[userID]
		}
	}
	return total
}

// LeaveConversation hides the conversation for userID until a new message
// arrives in it.
func (s *Store) LeaveConversation(userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.participantOf(userID, conversationID)
	if err != nil {
		return err
	}
	conv.Hidden[userID] = true
	conv.Unread[userID] = 0
	for _, m := range s.messages[conversationID] {
		if m.ReceiverID == userID {
			m.Read = true
		}
	}
	return nil
}

