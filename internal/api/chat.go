package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/and161185/social-client/internal/model"
)

// OutgoingMessage is the body of a send.
type OutgoingMessage struct {
	Type     model.MessageType `json:"type"`
	Content  string            `json:"content"`
	MediaURL string            `json:"mediaUrl,omitempty"`
	TempID   string            `json:"tempId,omitempty"`
}

// Conversations lists the viewer's conversations.
func (c *Client) Conversations(ctx context.Context) ([]model.Conversation, error) {
	var res []model.Conversation
	err := c.Do(ctx, http.MethodGet, "/api/chat/conversations", nil, nil, &res)
	return res, err
}

// GetOrCreateConversation returns the direct conversation with userID, creating it if needed.
func (c *Client) GetOrCreateConversation(ctx context.Context, userID string) (model.Conversation, error) {
	var res model.Conversation
	err := c.Do(ctx, http.MethodPost, "/api/chat/conversations", nil,
		map[string]string{"participantId": userID}, &res)
	return res, err
}

// Messages fetches one page of a conversation, newest page first.
func (c *Client) Messages(ctx context.Context, convID string, page, limit int) ([]model.Message, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var res []model.Message
	err := c.Do(ctx, http.MethodGet, "/api/chat/conversations/"+pathID(convID)+"/messages", q, nil, &res)
	return res, err
}

// SendMessage posts a message to a conversation.
func (c *Client) SendMessage(ctx context.Context, convID string, m OutgoingMessage) (model.Message, error) {
	var res model.Message
	err := c.Do(ctx, http.MethodPost, "/api/chat/conversations/"+pathID(convID)+"/messages", nil, m, &res)
	return res, err
}

// EditMessage replaces the text of a message.
func (c *Client) EditMessage(ctx context.Context, msgID, content string) (model.Message, error) {
	var res model.Message
	err := c.Do(ctx, http.MethodPatch, "/api/chat/messages/"+pathID(msgID), nil,
		map[string]string{"content": content}, &res)
	return res, err
}

// RecallMessage recalls a message for everyone.
func (c *Client) RecallMessage(ctx context.Context, msgID string) error {
	return c.Do(ctx, http.MethodPost, "/api/chat/messages/"+pathID(msgID)+"/recall", nil, nil, nil)
}

// DeleteMessage deletes a message.
func (c *Client) DeleteMessage(ctx context.Context, msgID string) error {
	return c.Do(ctx, http.MethodDelete, "/api/chat/messages/"+pathID(msgID), nil, nil, nil)
}

// ReactMessage toggles an emoji reaction and returns the message's reactions.
func (c *Client) ReactMessage(ctx context.Context, msgID, emoji string) ([]model.Reaction, error) {
	var res []model.Reaction
	err := c.Do(ctx, http.MethodPost, "/api/chat/messages/"+pathID(msgID)+"/reactions", nil,
		map[string]string{"emoji": emoji}, &res)
	return res, err
}

// MarkRead marks messages of a conversation as read. It is a direct call.
func (c *Client) MarkRead(ctx context.Context, convID string, msgIDs []string) error {
	return c.Direct(ctx, http.MethodPost, "/api/chat/conversations/"+pathID(convID)+"/read",
		map[string][]string{"messageIds": msgIDs}, nil)
}
