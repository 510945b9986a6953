package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"vesta/internal/broker"
	"vesta/internal/store"
)

// DashboardResponse feeds the admin dashboard
type DashboardResponse struct {
	store.Stats
	Realtime broker.Stats `json:"realtime"`
}

// BanRequest is the body of PUT /admin/users/{id}/ban
type BanRequest struct {
	Banned bool `json:"banned"`
}

// RoleRequest is the body of PUT /admin/users/{id}/role
type RoleRequest struct {
	Role store.Role `json:"role"`
}

// StatusRequest is the body of PUT /admin/listings/{id}/status
type StatusRequest struct {
	Status store.ListingStatus `json:"status"`
}

// BroadcastRequest is the body of POST /admin/notifications
type BroadcastRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BroadcastResponse reports how many users were notified
type BroadcastResponse struct {
	Sent int `json:"sent"`
}

// AdminStats returns the dashboard counters
// @Summary Dashboard counters
// @Tags admin
// @Produce json
// @Success 200 {object} DashboardResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (a *API) AdminStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DashboardResponse{Stats: a.store.Stats(), Realtime: a.hub.GetStats()})
}

// AdminUsers lists every account
func (a *API) AdminUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Users())
}

// AdminBanUser bans or unbans an account. Admins cannot ban themselves.
func (a *API) AdminBanUser(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if id == principal(r).UserID {
		a.fail(w, r, fmt.Errorf("cannot ban your own account: %w", store.ErrInvalid))
		return
	}
	u, err := a.store.SetBanned(id, req.Banned)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.logger.Info("user ban changed", "user", id, "banned", req.Banned, "admin", principal(r).UserID)
	writeJSON(w, http.StatusOK, u)
}

// AdminSetRole changes an account's role. Admins cannot demote themselves.
func (a *API) AdminSetRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	id := mux.Vars(r)["id"]
	if id == principal(r).UserID && req.Role != store.RoleAdmin {
		a.fail(w, r, fmt.Errorf("cannot remove your own admin role: %w", store.ErrInvalid))
		return
	}
	u, err := a.store.SetRole(id, req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// AdminListings lists listings of every status, optionally one category
func (a *API) AdminListings(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if c := r.URL.Query().Get("category"); c != "" {
		if f.Category, err = store.ParseCategory(c); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	f.AnyStatus = f.Status == ""
	writeJSON(w, http.StatusOK, a.store.ListListings(f))
}

// AdminSetListingStatus moderates a listing and tells its owner
func (a *API) AdminSetListingStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	l, err := a.store.SetListingStatus(mux.Vars(r)["id"], req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.notify(l.OwnerID, store.NotificationListing, "Listing status changed",
		fmt.Sprintf("\"%s\" is now %s", l.Title, l.Status), l.ID)
	writeJSON(w, http.StatusOK, l)
}

// AdminDeleteListing removes a listing and tells its owner
func (a *API) AdminDeleteListing(w http.ResponseWriter, r *http.Request) {
	l, err := a.store.DeleteListing(principal(r).UserID, true, mux.Vars(r)["id"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.removeUploads(l.Images)
	a.notify(l.OwnerID, store.NotificationListing, "Listing removed",
		fmt.Sprintf("\"%s\" was removed by a moderator", l.Title), l.ID)
	w.WriteHeader(http.StatusNoContent)
}

// AdminBroadcast sends a system notification to every active user
func (a *API) AdminBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := decodeJSON(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sent, err := a.store.BroadcastNotification(req.Title, req.Body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	for _, n := range sent {
		a.pushNotification(n)
	}
	a.logger.Info("system notification broadcast", "recipients", len(sent))
	writeJSON(w, http.StatusCreated, BroadcastResponse{Sent: len(sent)})
}
