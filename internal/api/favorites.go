package api

import (
	"context"
	"net/http"
	"net/url"

	"vesta/internal/store"
)

// FavoriteState is the favorite flag and counter of one listing
type FavoriteState struct {
	ListingID string `json:"listingId"`
	Favorited bool   `json:"favorited"`
	Count     int    `json:"count"`
}

// Favorites lists the caller's favorites, newest first
func (c *Client) Favorites(ctx context.Context) ([]*store.Listing, error) {
	var out []*store.Listing
	if err := c.get(ctx, "/favorites", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddFavorite favorites a listing
func (c *Client) AddFavorite(ctx context.Context, listingID string) (*FavoriteState, error) {
	var st FavoriteState
	if err := c.send(ctx, http.MethodPost, "/favorites/"+url.PathEscape(listingID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RemoveFavorite drops a favorite
func (c *Client) RemoveFavorite(ctx context.Context, listingID string) (*FavoriteState, error) {
	var st FavoriteState
	if err := c.send(ctx, http.MethodDelete, "/favorites/"+url.PathEscape(listingID), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// FavoriteStatus reports whether the caller favorited a listing
func (c *Client) FavoriteStatus(ctx context.Context, listingID string) (*FavoriteState, error) {
	var st FavoriteState
	if err := c.get(ctx, "/favorites/"+url.PathEscape(listingID)+"/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
