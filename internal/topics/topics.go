// Package topics names the broker destinations shared by server and client.
package topics

import "strings"

const (
	notificationsPrefix = "/topic/notifications/"
	messagesPrefix      = "/topic/messages/"
	listingPrefix       = "/topic/listing/"
	favoriteCountSuffix = "/favoriteCount"

	// AppMessages is the SEND destination for chat messages.
	AppMessages = "/app/messages"
	// AppPrefix marks destinations handled by the application, not the broker.
	AppPrefix = "/app/"
)

// Notifications is the per-user notification topic
func Notifications(userID string) string {
	return notificationsPrefix + userID
}

// Messages is the per-user direct message topic
func Messages(userID string) string {
	return messagesPrefix + userID
}

// FavoriteCount is the public favorite counter topic of a listing
func FavoriteCount(listingID string) string {
	return listingPrefix + listingID + favoriteCountSuffix
}

// Owner returns the user a private topic belongs to, or "" for public or
// unknown destinations.
func Owner(destination string) string {
	for _, prefix := range []string{notificationsPrefix, messagesPrefix} {
		if rest, ok := strings.CutPrefix(destination, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return rest
		}
	}
	return ""
}

// IsFavoriteCount reports whether destination is a listing counter topic
func IsFavoriteCount(destination string) bool {
	rest, ok := strings.CutPrefix(destination, listingPrefix)
	if !ok {
		return false
	}
	id, ok := strings.CutSuffix(rest, favoriteCountSuffix)
	return ok && id != "" && !strings.Contains(id, "/")
}
