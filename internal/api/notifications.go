package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/and161185/social-client/internal/model"
)

// Notifications fetches one page of notifications.
func (c *Client) Notifications(ctx context.Context, page, limit int) ([]model.Notification, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var res []model.Notification
	err := c.Do(ctx, http.MethodGet, "/api/notifications", q, nil, &res)
	return res, err
}

// UnreadNotifications returns the number of unread notifications.
func (c *Client) UnreadNotifications(ctx context.Context) (int, error) {
	var res struct {
		Count int `json:"count"`
	}
	err := c.Do(ctx, http.MethodGet, "/api/notifications/unread-count", nil, nil, &res)
	return res.Count, err
}

// MarkNotificationRead marks one notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodPatch, "/api/notifications/"+pathID(id)+"/read", nil, nil, nil)
}

// MarkAllNotificationsRead marks every notification read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.Do(ctx, http.MethodPatch, "/api/notifications/read-all", nil, nil, nil)
}

// DeleteNotification deletes one notification.
func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/notifications/"+pathID(id), nil, nil, nil)
}
