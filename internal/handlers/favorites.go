package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"vesta/internal/store"
)

// FavoriteResponse reports the favorite state of a listing for the caller
type FavoriteResponse struct {
	ListingID string `json:"listingId"`
	Favorited bool   `json:"favorited"`
	Count     int    `json:"count"`
}

// Favorites lists the caller's favorite listings
func (a *API) Favorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.Favorites(principal(r).UserID))
}

// AddFavorite favorites a listing, pushes the new count and tells the owner
func (a *API) AddFavorite(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	l, err := a.store.AddFavorite(p.UserID, mux.Vars(r)["listingId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.pushFavoriteCount(l)

	if l.OwnerID != p.UserID {
		name := "Someone"
		if u, err := a.store.User(p.UserID); err == nil {
			name = u.Name
		}
		a.notify(l.OwnerID, store.NotificationFavorite, "New favorite",
			name+" added \""+l.Title+"\" to favorites", l.ID)
	}
	writeJSON(w, http.StatusCreated, FavoriteResponse{ListingID: l.ID, Favorited: true, Count: l.FavoriteCount})
}

// RemoveFavorite drops a favorite and pushes the new count
func (a *API) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	l, err := a.store.RemoveFavorite(principal(r).UserID, mux.Vars(r)["listingId"])
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.pushFavoriteCount(l)
	writeJSON(w, http.StatusOK, FavoriteResponse{ListingID: l.ID, Favorited: false, Count: l.FavoriteCount})
}

// FavoriteStatus reports whether the caller favorited the listing
func (a *API) FavoriteStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["listingId"]
	fav, count, err := a.store.FavoriteStatus(principal(r).UserID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteResponse{ListingID: id, Favorited: fav, Count: count})
}
