package handlers

import (
	"vesta/internal/store"
	"vesta/internal/topics"
)

// FavoriteCountEvent is published on /topic/listing/{id}/favoriteCount
type FavoriteCountEvent struct {
	ListingID string `json:"listingId"`
	Count     int    `json:"count"`
}

// notify stores a notification and pushes it to the user's topic
func (a *API) notify(userID string, typ store.NotificationType, title, body, refID string) {
	n, err := a.store.AddNotification(userID, typ, title, body, refID)
	if err != nil {
		a.logger.Warn("add notification", "user", userID, "type", typ, "error", err)
		return
	}
	a.pushNotification(n)
}

func (a *API) pushNotification(n *store.Notification) {
	a.publishJSON(topics.Notifications(n.UserID), n)
}

func (a *API) pushFavoriteCount(l *store.Listing) {
	a.publishJSON(topics.FavoriteCount(l.ID), FavoriteCountEvent{ListingID: l.ID, Count: l.FavoriteCount})
}

// preview shortens text for notification bodies
func preview(text string, max int) string {
	r := []rune(text)
	if len(r) <= max {
		return text
	}
	return string(r[:max]) + "…"
}
