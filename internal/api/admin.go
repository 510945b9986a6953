package api

import (
	"context"
	"net/http"
	"net/url"

	"vesta/internal/compare"
	"vesta/internal/store"
)

// Dashboard is the admin dashboard payload
type Dashboard struct {
	store.Stats
	Realtime struct {
		TotalClients       int   `json:"total_clients"`
		ActiveDestinations int   `json:"active_destinations"`
		TotalPublished     int64 `json:"total_published"`
		TotalDelivered     int64 `json:"total_delivered"`
		TotalDropped       int64 `json:"total_dropped"`
	} `json:"realtime"`
}

// Compare fetches a comparison table for 2 to 4 listing ids
func (c *Client) Compare(ctx context.Context, ids []string) (*compare.Table, error) {
	var t compare.Table
	if err := c.send(ctx, http.MethodPost, "/compare", map[string][]string{"ids": ids}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AdminStats returns the dashboard counters
func (c *Client) AdminStats(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	if err := c.get(ctx, "/admin/stats", nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AdminUsers lists every account
func (c *Client) AdminUsers(ctx context.Context) ([]*store.User, error) {
	var out []*store.User
	if err := c.get(ctx, "/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BanUser bans or unbans an account
func (c *Client) BanUser(ctx context.Context, id string, banned bool) (*store.User, error) {
	var u store.User
	if err := c.send(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id)+"/ban", map[string]bool{"banned": banned}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetRole changes an account's role
func (c *Client) SetRole(ctx context.Context, id string, role store.Role) (*store.User, error) {
	var u store.User
	if err := c.send(ctx, http.MethodPut, "/admin/users/"+url.PathEscape(id)+"/role", map[string]store.Role{"role": role}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AdminListings lists listings of any status; category may be empty
func (c *Client) AdminListings(ctx context.Context, category store.Category, q ListingQuery) (*store.ListingPage, error) {
	v := q.Values()
	if category != "" {
		v.Set("category", string(category))
	}
	var page store.ListingPage
	if err := c.get(ctx, "/admin/listings", v, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// SetListingStatus moderates a listing
func (c *Client) SetListingStatus(ctx context.Context, id string, status store.ListingStatus) (*store.Listing, error) {
	var l store.Listing
	if err := c.send(ctx, http.MethodPut, "/admin/listings/"+url.PathEscape(id)+"/status",
		map[string]store.ListingStatus{"status": status}, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// AdminDeleteListing removes any listing
func (c *Client) AdminDeleteListing(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/admin/listings/"+url.PathEscape(id), nil, nil)
}

// Broadcast sends a system notification to every active user and returns
// the number of recipients.
func (c *Client) Broadcast(ctx context.Context, title, body string) (int, error) {
	var res struct {
		Sent int `json:"sent"`
	}
	if err := c.send(ctx, http.MethodPost, "/admin/notifications", map[string]string{"title": title, "body": body}, &res); err != nil {
		return 0, err
	}
	return res.Sent, nil
}
