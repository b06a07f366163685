package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/and161185/social-client/internal/model"
)

// NewPost is a post to publish.
type NewPost struct {
	Content string
	Media   []File
}

// LikeResult is the server's view of a like toggle.
type LikeResult struct {
	Liked      bool `json:"isLiked"`
	LikesCount int  `json:"likesCount"`
}

// Posts fetches one feed page.
func (c *Client) Posts(ctx context.Context, page, limit int) ([]model.Post, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var res []model.Post
	err := c.Do(ctx, http.MethodGet, "/api/posts", q, nil, &res)
	return res, err
}

// CreatePost publishes a post with optional media files.
func (c *Client) CreatePost(ctx context.Context, p NewPost) (model.Post, error) {
	form := NewForm().Field("content", p.Content)
	for _, f := range p.Media {
		if f.Field == "" {
			f.Field = "media"
		}
		form.File(f)
	}
	var res model.Post
	err := c.Upload(ctx, http.MethodPost, "/api/posts", form, &res)
	return res, err
}

// LikePost toggles the viewer's like on a post.
func (c *Client) LikePost(ctx context.Context, postID string) (LikeResult, error) {
	var res LikeResult
	err := c.Do(ctx, http.MethodPost, "/api/posts/"+pathID(postID)+"/like", nil, nil, &res)
	return res, err
}

// DeletePost removes one of the viewer's posts.
func (c *Client) DeletePost(ctx context.Context, postID string) error {
	return c.Do(ctx, http.MethodDelete, "/api/posts/"+pathID(postID), nil, nil, nil)
}
