package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"vesta/internal/store"
)

// Routes registers every endpoint on a new router
func (a *API) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.recoverPanics, a.accessLog)

	// WebSocket endpoint
	r.HandleFunc("/ws", a.HandleWebSocket)

	r.HandleFunc("/health", a.Health).Methods("GET")
	r.HandleFunc("/stats", a.requireAdmin(a.Stats)).Methods("GET")

	// Accounts
	r.HandleFunc("/auth/register", a.Register).Methods("POST")
	r.HandleFunc("/auth/login", a.Login).Methods("POST")
	r.HandleFunc("/users/me", a.requireAuth(a.Me)).Methods("GET")
	r.HandleFunc("/users/me", a.requireAuth(a.UpdateMe)).Methods("PUT")
	r.HandleFunc("/users/me/password", a.requireAuth(a.ChangePassword)).Methods("PUT")
	r.HandleFunc("/users/me/listings", a.requireAuth(a.MyListings)).Methods("GET")
	r.HandleFunc("/users/{id}", a.PublicProfile).Methods("GET")

	// Listings, one collection per category
	for _, c := range store.Categories {
		base := "/" + c.PathSegment()
		r.HandleFunc(base, a.ListListings(c)).Methods("GET")
		r.HandleFunc(base, a.requireAuth(a.CreateListing(c))).Methods("POST")
		r.HandleFunc(base+"/{id}", a.GetListing(c)).Methods("GET")
		r.HandleFunc(base+"/{id}", a.requireAuth(a.UpdateListing(c))).Methods("PUT")
		r.HandleFunc(base+"/{id}", a.requireAuth(a.DeleteListing(c))).Methods("DELETE")
		r.HandleFunc(base+"/{id}/images", a.requireAuth(a.UploadImage(c))).Methods("POST")
		r.HandleFunc(base+"/{id}/images", a.requireAuth(a.RemoveImage(c))).Methods("DELETE")
	}

	// Favorites
	r.HandleFunc("/favorites", a.requireAuth(a.Favorites)).Methods("GET")
	r.HandleFunc("/favorites/{listingId}", a.requireAuth(a.AddFavorite)).Methods("POST")
	r.HandleFunc("/favorites/{listingId}", a.requireAuth(a.RemoveFavorite)).Methods("DELETE")
	r.HandleFunc("/favorites/{listingId}/status", a.requireAuth(a.FavoriteStatus)).Methods("GET")

	// Messages
	r.HandleFunc("/messages", a.requireAuth(a.SendMessage)).Methods("POST")
	r.HandleFunc("/messages/unread-count", a.requireAuth(a.UnreadMessages)).Methods("GET")
	r.HandleFunc("/messages/conversations", a.requireAuth(a.Conversations)).Methods("GET")
	r.HandleFunc("/messages/conversations/{id}", a.requireAuth(a.Thread)).Methods("GET")
	r.HandleFunc("/messages/conversations/{id}", a.requireAuth(a.LeaveConversation)).Methods("DELETE")
	r.HandleFunc("/messages/conversations/{id}/read", a.requireAuth(a.MarkConversationRead)).Methods("PUT")

	// Notifications
	r.HandleFunc("/notifications", a.requireAuth(a.Notifications)).Methods("GET")
	r.HandleFunc("/notifications/unread-count", a.requireAuth(a.UnreadNotifications)).Methods("GET")
	r.HandleFunc("/notifications/read-all", a.requireAuth(a.MarkAllNotificationsRead)).Methods("PUT")
	r.HandleFunc("/notifications/{id}/read", a.requireAuth(a.MarkNotificationRead)).Methods("PUT")
	r.HandleFunc("/notifications/{id}", a.requireAuth(a.DeleteNotification)).Methods("DELETE")

	r.HandleFunc("/compare", a.Compare).Methods("POST")

	// Admin dashboard
	r.HandleFunc("/admin/stats", a.requireAdmin(a.AdminStats)).Methods("GET")
	r.HandleFunc("/admin/users", a.requireAdmin(a.AdminUsers)).Methods("GET")
	r.HandleFunc("/admin/users/{id}/ban", a.requireAdmin(a.AdminBanUser)).Methods("PUT")
	r.HandleFunc("/admin/users/{id}/role", a.requireAdmin(a.AdminSetRole)).Methods("PUT")
	r.HandleFunc("/admin/listings", a.requireAdmin(a.AdminListings)).Methods("GET")
	r.HandleFunc("/admin/listings/{id}/status", a.requireAdmin(a.AdminSetListingStatus)).Methods("PUT")
	r.HandleFunc("/admin/listings/{id}", a.requireAdmin(a.AdminDeleteListing)).Methods("DELETE")
	r.HandleFunc("/admin/notifications", a.requireAdmin(a.AdminBroadcast)).Methods("POST")

	// Uploaded images
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", http.FileServer(http.Dir(a.cfg.Server.UploadDir)))).Methods("GET")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
	})
	return r
}

// Handler wraps h with the outer middleware that must also see requests
// no route matches, such as CORS preflights.
func (a *API) Handler(h http.Handler) http.Handler {
	return a.cors(h)
}
