package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/and161185/social-client/internal/model"
)

// NewStory is a story to publish.
type NewStory struct {
	Media      File
	Effects    map[string]any
	Visibility string
}

// Stories lists the active stories visible to the viewer.
func (c *Client) Stories(ctx context.Context) ([]model.Story, error) {
	var res []model.Story
	err := c.Do(ctx, http.MethodGet, "/api/stories", nil, nil, &res)
	return res, err
}

// ArchivedStories lists the viewer's archived stories.
func (c *Client) ArchivedStories(ctx context.Context) ([]model.Story, error) {
	var res []model.Story
	err := c.Do(ctx, http.MethodGet, "/api/stories/archived", nil, nil, &res)
	return res, err
}

// CreateStory publishes a story.
func (c *Client) CreateStory(ctx context.Context, s NewStory) (model.Story, error) {
	form := NewForm().Field("visibility", s.Visibility)
	if len(s.Effects) > 0 {
		b, err := json.Marshal(s.Effects)
		if err != nil {
			return model.Story{}, fmt.Errorf("encode effects: %w", err)
		}
		form.Field("effects", string(b))
	}
	if s.Media.Field == "" {
		s.Media.Field = "media"
	}
	form.File(s.Media)
	var res model.Story
	err := c.Upload(ctx, http.MethodPost, "/api/stories", form, &res)
	return res, err
}

// ViewStory records a view lasting durationMS.
func (c *Client) ViewStory(ctx context.Context, id string, durationMS int64) error {
	return c.Do(ctx, http.MethodPost, "/api/stories/"+pathID(id)+"/view", nil,
		map[string]int64{"duration": durationMS}, nil)
}

// ReactStory places a reaction on the story canvas.
func (c *Client) ReactStory(ctx context.Context, id, kind string, pos model.Position) (model.StoryReaction, error) {
	var res model.StoryReaction
	err := c.Do(ctx, http.MethodPost, "/api/stories/"+pathID(id)+"/react", nil,
		map[string]any{"type": kind, "position": pos}, &res)
	return res, err
}

// MoveStoryReaction moves a placed reaction.
func (c *Client) MoveStoryReaction(ctx context.Context, id, reactionID string, pos model.Position) error {
	return c.Do(ctx, http.MethodPatch, "/api/stories/"+pathID(id)+"/reactions/"+pathID(reactionID), nil,
		map[string]any{"position": pos}, nil)
}

// ReplyStory replies to a story with text and optional media.
func (c *Client) ReplyStory(ctx context.Context, id, text string, media *File) (model.StoryReply, error) {
	form := NewForm().Field("text", text)
	if media != nil {
		m := *media
		if m.Field == "" {
			m.Field = "media"
		}
		form.File(m)
	}
	var res model.StoryReply
	err := c.Upload(ctx, http.MethodPost, "/api/stories/"+pathID(id)+"/reply", form, &res)
	return res, err
}

// DeleteStory deletes a story permanently.
func (c *Client) DeleteStory(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodDelete, "/api/stories/"+pathID(id), nil, nil, nil)
}

// HighlightStory assigns a story to a named highlight category.
func (c *Client) HighlightStory(ctx context.Context, id, category string) error {
	return c.Do(ctx, http.MethodPost, "/api/stories/"+pathID(id)+"/highlight", nil,
		map[string]string{"category": category}, nil)
}

// ArchiveStory archives a story manually.
func (c *Client) ArchiveStory(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodPost, "/api/stories/"+pathID(id)+"/archive", nil, nil, nil)
}

// RestoreStory restores a manually archived story.
func (c *Client) RestoreStory(ctx context.Context, id string) error {
	return c.Do(ctx, http.MethodPost, "/api/stories/"+pathID(id)+"/restore", nil, nil, nil)
}
