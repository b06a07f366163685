package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/and161185/social-client/internal/model"
)

// Search queries users and posts.
func (c *Client) Search(ctx context.Context, q string) (model.SearchResults, error) {
	v := url.Values{}
	v.Set("q", q)
	var res model.SearchResults
	err := c.Do(ctx, http.MethodGet, "/api/search", v, nil, &res)
	return res, err
}

// SearchHistory lists the viewer's past queries.
func (c *Client) SearchHistory(ctx context.Context) ([]model.SearchHistoryEntry, error) {
	var res []model.SearchHistoryEntry
	err := c.Do(ctx, http.MethodGet, "/api/search/history", nil, nil, &res)
	return res, err
}

// DeleteSearchHistory removes one history entry.
func (c *Client) DeleteSearchHistory(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/search/history/"+pathID(id), nil, nil, nil)
}

// ClearSearchHistory removes all history entries.
func (c *Client) ClearSearchHistory(ctx context.Context) error {
	return c.Do(ctx, http.MethodDelete, "/api/search/history", nil, nil, nil)
}

// Trending lists trending hashtags.
func (c *Client) Trending(ctx context.Context, limit int) ([]model.TrendingTag, error) {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var res []model.TrendingTag
	err := c.Do(ctx, http.MethodGet, "/api/search/trending", v, nil, &res)
	return res, err
}
