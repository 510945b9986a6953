package store

import (
	"fmt"
	"strings"
)

// AddNotification stores a new unread notification for userID
func (s *Store) AddNotification(userID string, typ NotificationType, title, body, refID string) (*Notification, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("notification title is required: %w", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	n := s.addNotificationLocked(userID, typ, title, body, refID)
	copied := *n
	return &copied, nil
}

func (s *Store) addNotificationLocked(userID string, typ NotificationType, title, body, refID string) *Notification {
	n := &Notification{
		ID:        s.newID(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		RefID:     refID,
		CreatedAt: s.now().UTC(),
	}
	s.notifications[userID] = append(s.notifications[userID], n)
	return n
}

// BroadcastNotification adds a system notification for every user that is
// not banned and returns the created notifications.
func (s *Store) BroadcastNotification(title, body string) ([]*Notification, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("notification title is required: %w", ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Notification, 0, len(s.users))
	for id, u := range s.users {
		if u.Banned {
			continue
		}
		n := s.addNotificationLocked(id, NotificationSystem, title, body, "")
		copied := *n
		out = append(out, &copied)
	}
	return out, nil
}

// Notifications lists userID's notifications, newest first
func (s *Store) Notifications(userID string) []*Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := s.notifications[userID]
	out := make([]*Notification, 0, len(ns))
	for i := len(ns) - 1; i >= 0; i-- {
		copied := *ns[i]
		out = append(out, &copied)
	}
	return out
}

// UnreadNotificationCount counts userID's unread notifications
func (s *Store) UnreadNotificationCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unread := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			unread++
		}
	}
	return unread
}

func (s *Store) ownNotification(userID, id string) (int, *Notification, error) {
	for i, n := range s.notifications[userID] {
		if n.ID == id {
			return i, n, nil
		}
	}
	return -1, nil, fmt.Errorf("notification %s: %w", id, ErrNotFound)
}

// MarkNotificationRead flips one notification to read. Marking an already
// read notification succeeds.
func (s *Store) MarkNotificationRead(userID, id string) (*Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, n, err := s.ownNotification(userID, id)
	if err != nil {
		return nil, err
	}
	n.Read = true
	copied := *n
	return &copied, nil
}

// MarkAllNotificationsRead flips every notification of userID and
// returns how many changed.
func (s *Store) MarkAllNotificationsRead(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := 0
	for _, n := range s.notifications[userID] {
		if !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed
}

// DeleteNotification removes one of userID's notifications
func (s *Store) DeleteNotification(userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, _, err := s.ownNotification(userID, id)
	if err != nil {
		return err
	}
	ns := s.notifications[userID]
	s.notifications[userID] = append(ns[:i], ns[i+1:]...)
	return nil
}
