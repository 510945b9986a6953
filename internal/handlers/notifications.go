package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Notifications lists the caller's notifications, newest first
func (a *API) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Notifications(principal(r).UserID))
}

// UnreadNotifications returns the caller's unread notification count
func (a *API) UnreadNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CountResponse{Count: a.store.UnreadNotificationCount(principal(r).UserID)})
}

// MarkNotificationRead marks one notification read
func (a *API) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.store.MarkNotificationRead(principal(r).UserID, mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MarkAllNotificationsRead marks every notification of the caller read
func (a *API) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, MarkedResponse{Updated: a.store.MarkAllNotificationsRead(principal(r).UserID)})
}

// DeleteNotification removes one notification
func (a *API) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteNotification(principal(r).UserID, mux.Vars(r)["id"]); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
