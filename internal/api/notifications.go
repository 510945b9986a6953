package api

import (
	"context"
	"net/http"
	"net/url"

	"vesta/internal/store"
)

// Notifications lists the caller's notifications, newest first
func (c *Client) Notifications(ctx context.Context) ([]*store.Notification, error) {
	var out []*store.Notification
	if err := c.get(ctx, "/notifications", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UnreadNotificationCount returns the server-side unread count
func (c *Client) UnreadNotificationCount(ctx context.Context) (int, error) {
	var res countBody
	if err := c.get(ctx, "/notifications/unread-count", nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// MarkNotificationRead marks one notification read
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllNotificationsRead issues PUT /notifications/read-all
func (c *Client) MarkAllNotificationsRead(ctx context.Context) (int, error) {
	var res updatedBody
	if err := c.send(ctx, http.MethodPut, "/notifications/read-all", nil, &res); err != nil {
		return 0, err
	}
	return res.Updated, nil
}

// DeleteNotification removes a notification
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/notifications/"+url.PathEscape(id), nil, nil)
}
