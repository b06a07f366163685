package chat

import (
	"encoding/json"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
)

// Socket event names.
const (
	EventMessageNew          = "message:new"
	EventMessageDelivered    = "message:delivered"
	EventMessagesRead        = "messages:read"
	EventMessageReaction     = "message:reaction"
	EventMessageDeleted      = "message:deleted"
	EventMessageRecalled     = "message:recalled"
	EventMessageEdited       = "message:edited"
	EventTyping              = "typing"
	EventConversationUpdated = "conversation:updated"
)

type messageRef struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

type readEvent struct {
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	ReaderID       string   `json:"readerId"`
}

type reactionEvent struct {
	ConversationID string           `json:"conversationId"`
	MessageID      string           `json:"messageId"`
	Reactions      []model.Reaction `json:"reactions"`
}

type typingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

func (s *Service) register() {
	on := func(event string, h func(json.RawMessage)) {
		s.offs = append(s.offs, s.socket.On(event, h))
	}
	on(EventMessageNew, s.onMessage)
	on(EventMessageEdited, s.onMessage)
	on(EventMessageDelivered, s.onDelivered)
	on(EventMessagesRead, s.onRead)
	on(EventMessageReaction, s.onReaction)
	on(EventMessageDeleted, func(data json.RawMessage) {
		s.onRef(EventMessageDeleted, data, func(m *model.Message) {
			m.IsDeleted = true
			m.Content = ""
		})
	})
	on(EventMessageRecalled, func(data json.RawMessage) {
		s.onRef(EventMessageRecalled, data, func(m *model.Message) {
			m.Status = MergeStatus(m.Status, model.StatusRecalled)
		})
	})
	on(EventTyping, s.onTyping)
	on(EventConversationUpdated, func(json.RawMessage) { s.cache.Invalidate(ConversationsKey) })
	s.offs = append(s.offs, s.socket.OnReconnect(s.onReconnect))
}

// onMessage merges a pushed message. A copy of the viewer's own pending
// message is matched by tempId so it never shows twice.
func (s *Service) onMessage(data json.RawMessage) {
	m, ok := decode[model.Message](s, EventMessageNew, data)
	if !ok || m.ID == "" {
		return
	}
	s.cache.Invalidate(ConversationsKey)
	if !s.IsOpen(m.ConversationID) {
		return
	}
	if m.Status == "" {
		m.Status = model.StatusSent
	}
	querycache.Update(s.cache, MessagesKey(m.ConversationID), func(cur Thread, _ bool) Thread {
		return Upsert(cur, m)
	})
	if m.Sender.ID != "" && m.Sender.ID != s.opts.Self().ID {
		s.typing.Set(m.ConversationID, m.Sender.ID, false)
	}
}

func (s *Service) onDelivered(data json.RawMessage) {
	s.onRef(EventMessageDelivered, data, func(m *model.Message) {
		m.Status = MergeStatus(m.Status, model.StatusDelivered)
	})
}

// onRef applies fn to one referenced message. Unknown ids force a refetch.
func (s *Service) onRef(event string, data json.RawMessage, fn func(*model.Message)) {
	ref, ok := decode[messageRef](s, event, data)
	if !ok || !s.IsOpen(ref.ConversationID) {
		return
	}
	s.applyTo(ref.ConversationID, []string{ref.MessageID}, fn)
}

// applyTo updates the listed messages of convID and refetches when any is unknown.
func (s *Service) applyTo(convID string, ids []string, fn func(*model.Message)) {
	missing := false
	querycache.Update(s.cache, MessagesKey(convID), func(cur Thread, _ bool) Thread {
		next := cur
		for _, id := range ids {
			var found bool
			next, found = mapMessage(next, id, fn)
			missing = missing || !found
		}
		return next
	})
	if missing {
		s.log.Debug("event for unknown message, refetching", zap.String("conversation", convID))
		s.refetchAsync(convID)
	}
}

func (s *Service) onRead(data json.RawMessage) {
	ev, ok := decode[readEvent](s, EventMessagesRead, data)
	if !ok || !s.IsOpen(ev.ConversationID) || len(ev.MessageIDs) == 0 {
		return
	}
	s.applyTo(ev.ConversationID, ev.MessageIDs, func(m *model.Message) {
		m.Status = MergeStatus(m.Status, model.StatusRead)
	})
}

func (s *Service) onReaction(data json.RawMessage) {
	ev, ok := decode[reactionEvent](s, EventMessageReaction, data)
	if !ok || !s.IsOpen(ev.ConversationID) {
		return
	}
	s.applyTo(ev.ConversationID, []string{ev.MessageID}, func(m *model.Message) {
		m.Reactions = slices.Clone(ev.Reactions)
	})
}

func (s *Service) onTyping(data json.RawMessage) {
	ev, ok := decode[typingEvent](s, EventTyping, data)
	if !ok || ev.UserID == "" || ev.UserID == s.opts.Self().ID || !s.IsOpen(ev.ConversationID) {
		return
	}
	s.typing.Set(ev.ConversationID, ev.UserID, ev.IsTyping)
}

// onReconnect rejoins open rooms and refetches what may have been missed.
func (s *Service) onReconnect() {
	s.cache.Invalidate(ConversationsKey)
	for _, id := range s.openIDs() {
		s.emit(s.ctx, "conversation:join", map[string]string{"conversationId": id})
		s.refetchAsync(id)
	}
}
