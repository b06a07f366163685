// Package chat is the real-time messaging layer: conversation and message
// caches, optimistic send/edit/recall with server confirmation, and socket
// event reconciliation.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
	"github.com/and161185/social-client/internal/realtime"
)

// Cache keys.
var (
	ConversationsKey = querycache.Key{"chat", "conversations"}
	messagesPrefix   = querycache.Key{"chat", "messages"}
)

// MessagesKey is the cache key of one conversation's messages.
func MessagesKey(convID string) querycache.Key {
	return querycache.Key{"chat", "messages", convID}
}

// Backend is the part of the API client chat uses.
type Backend interface {
	Conversations(ctx context.Context) ([]model.Conversation, error)
	GetOrCreateConversation(ctx context.Context, userID string) (model.Conversation, error)
	Messages(ctx context.Context, convID string, page, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, convID string, m api.OutgoingMessage) (model.Message, error)
	EditMessage(ctx context.Context, msgID, content string) (model.Message, error)
	RecallMessage(ctx context.Context, msgID string) error
	DeleteMessage(ctx context.Context, msgID string) error
	ReactMessage(ctx context.Context, msgID, emoji string) ([]model.Reaction, error)
	MarkRead(ctx context.Context, convID string, msgIDs []string) error
}

// Socket is the part of the realtime client chat uses.
type Socket interface {
	On(event string, h realtime.Handler) (off func())
	OnReconnect(fn func()) (off func())
	Emit(ctx context.Context, event string, data any) error
}

// Draft is a message the user is about to send.
type Draft struct {
	Type     model.MessageType
	Content  string
	MediaURL string
}

// Options configures the chat service.
type Options struct {
	SlowThreshold time.Duration
	TypingTTL     time.Duration
	ReadDebounce  time.Duration
	PageLimit     int
	Clock         clock.Clock
	Logger        *zap.Logger
	// Self returns the logged-in user.
	Self func() model.User
	// OnTyping observes typing flag changes of peers.
	OnTyping func(convID, userID string, typing bool)
}

// Service is safe for concurrent use.
type Service struct {
	backend Backend
	socket  Socket
	cache   *querycache.Cache
	opts    Options
	clock   clock.Clock
	log     *zap.Logger

	typing *TypingTracker
	reads  *ReadBatcher

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	open map[string]bool
	offs []func()
}

// New constructs the service and registers its socket handlers. Call Close to release them.
func New(backend Backend, socket Socket, cache *querycache.Cache, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.SlowThreshold <= 0 {
		opts.SlowThreshold = 500 * time.Millisecond
	}
	if opts.TypingTTL <= 0 {
		opts.TypingTTL = 3 * time.Second
	}
	if opts.ReadDebounce <= 0 {
		opts.ReadDebounce = 2 * time.Second
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 20
	}
	if opts.Self == nil {
		opts.Self = func() model.User { return model.User{} }
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		backend: backend,
		socket:  socket,
		cache:   cache,
		opts:    opts,
		clock:   opts.Clock,
		log:     logging.OrNop(opts.Logger),
		ctx:     ctx,
		cancel:  cancel,
		open:    make(map[string]bool),
	}
	s.typing = NewTypingTracker(opts.Clock, opts.TypingTTL, opts.OnTyping)
	s.reads = NewReadBatcher(opts.Clock, opts.ReadDebounce, s.flushRead)
	if socket != nil {
		s.register()
	}
	return s
}

// Close flushes pending read marks, unregisters socket handlers and stops timers.
func (s *Service) Close() {
	s.reads.FlushAll()
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()
	for _, off := range offs {
		off()
	}
	s.typing.Stop()
	s.cancel()
	s.wg.Wait()
}

// Reset drops every cached conversation and thread, e.g. after logout.
func (s *Service) Reset() {
	s.mu.Lock()
	clear(s.open)
	s.mu.Unlock()
	s.cache.Remove(ConversationsKey)
	s.cache.Remove(messagesPrefix)
}

// Typing exposes the peer typing flags.
func (s *Service) Typing() *TypingTracker { return s.typing }

// IsOpen reports whether convID is of interest.
func (s *Service) IsOpen(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[convID]
}

func (s *Service) openIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Conversations returns the conversation list, fetching it when stale.
func (s *Service) Conversations(ctx context.Context) ([]model.Conversation, error) {
	return querycache.Fetch(ctx, s.cache, ConversationsKey, s.backend.Conversations)
}

// GetOrCreate returns the direct conversation with userID.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (model.Conversation, error) {
	if userID == "" {
		return model.Conversation{}, fmt.Errorf("validation: empty user id: %w", errs.ErrValidation)
	}
	conv, err := s.backend.GetOrCreateConversation(ctx, userID)
	if err != nil {
		return model.Conversation{}, fmt.Errorf("get or create conversation: %w", err)
	}
	s.cache.Invalidate(ConversationsKey)
	return conv, nil
}

// Messages returns the cached thread of convID, fetching the newest page when stale.
func (s *Service) Messages(ctx context.Context, convID string) (Thread, error) {
	key := MessagesKey(convID)
	if !s.cache.IsStale(key) {
		t, _ := querycache.Get[Thread](s.cache, key)
		return t, nil
	}
	return s.refetch(ctx, convID)
}

// refetch loads the newest page and reconciles it with the cached thread as
// it stands when the answer arrives.
func (s *Service) refetch(ctx context.Context, convID string) (Thread, error) {
	issued := s.clock.Now()
	return querycache.RefetchMerge(ctx, s.cache, MessagesKey(convID),
		func(ctx context.Context) ([]model.Message, error) {
			fresh, err := s.backend.Messages(ctx, convID, 1, s.opts.PageLimit)
			if err != nil {
				return nil, fmt.Errorf("load messages: %w", err)
			}
			return fresh, nil
		},
		func(local Thread, _ bool, fresh []model.Message) Thread {
			t := Reconcile(local, fresh, issued)
			if !slices.Contains(t.Pages, 1) {
				t.Pages = append(t.Pages, 1)
				t.HasOlder = len(fresh) >= s.opts.PageLimit
			}
			return t
		})
}

// refetchAsync refetches convID in the background, e.g. from socket handlers.
func (s *Service) refetchAsync(convID string) {
	s.cache.Invalidate(MessagesKey(convID))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.refetch(s.ctx, convID); err != nil && s.ctx.Err() == nil {
			s.log.Warn("refetch messages", zap.String("conversation", convID), zap.Error(err))
		}
	}()
}

// LoadOlder fetches an older page and prepends it.
func (s *Service) LoadOlder(ctx context.Context, convID string, page int) (Thread, error) {
	if page < 2 {
		return Thread{}, fmt.Errorf("validation: older pages start at 2: %w", errs.ErrValidation)
	}
	if t, ok := querycache.Get[Thread](s.cache, MessagesKey(convID)); ok && slices.Contains(t.Pages, page) {
		return t, nil
	}
	older, err := s.backend.Messages(ctx, convID, page, s.opts.PageLimit)
	if err != nil {
		return Thread{}, fmt.Errorf("load older messages: %w", err)
	}
	return querycache.Update(s.cache, MessagesKey(convID), func(cur Thread, _ bool) Thread {
		return PrependOlder(cur, older, page, s.opts.PageLimit)
	}), nil
}

// Open marks convID as of interest, joins its socket room and loads it.
func (s *Service) Open(ctx context.Context, convID string) (Thread, error) {
	s.mu.Lock()
	s.open[convID] = true
	s.mu.Unlock()
	s.emit(ctx, "conversation:join", map[string]string{"conversationId": convID})
	return s.Messages(ctx, convID)
}

// CloseConversation stops following convID and leaves its socket room.
func (s *Service) CloseConversation(ctx context.Context, convID string) {
	s.mu.Lock()
	delete(s.open, convID)
	s.mu.Unlock()
	s.reads.Flush(convID)
	s.typing.ClearConversation(convID)
	s.emit(ctx, "conversation:leave", map[string]string{"conversationId": convID})
}

// Send inserts an optimistic message and delivers it.
func (s *Service) Send(ctx context.Context, convID string, d Draft) (model.Message, error) {
	if d.Type == "" {
		d.Type = model.MessageText
	}
	if d.Type == model.MessageText && strings.TrimSpace(d.Content) == "" {
		return model.Message{}, fmt.Errorf("validation: empty message: %w", errs.ErrValidation)
	}
	if d.Type != model.MessageText && d.MediaURL == "" {
		return model.Message{}, fmt.Errorf("validation: %s message needs media: %w", d.Type, errs.ErrValidation)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.Message{}, err
	}
	tempID := TempPrefix + id.String()
	msg := model.Message{
		ID:             tempID,
		TempID:         tempID,
		ConversationID: convID,
		Sender:         s.opts.Self(),
		Type:           d.Type,
		Content:        d.Content,
		MediaURL:       d.MediaURL,
		Status:         model.StatusSending,
		CreatedAt:      s.clock.Now(),
	}
	querycache.Update(s.cache, MessagesKey(convID), func(cur Thread, _ bool) Thread {
		next := cur.clone()
		next.Messages = append(next.Messages, msg)
		return next
	})
	return s.deliver(ctx, convID, msg)
}

// Resend retries a failed message, reusing its entry.
func (s *Service) Resend(ctx context.Context, convID, tempID string) (model.Message, error) {
	var msg model.Message
	var ok bool
	querycache.Update(s.cache, MessagesKey(convID), func(cur Thread, _ bool) Thread {
		next, found := mapMessage(cur, tempID, func(m *model.Message) {
			if m.Status != model.StatusFailed || !IsPending(*m) {
				return
			}
			m.Status = model.StatusSending
			m.Slow = false
			msg, ok = *m, true
		})
		if !found {
			return cur
		}
		return next
	})
	if !ok {
		return model.Message{}, fmt.Errorf("resend %s: only failed messages can be resent: %w", tempID, errs.ErrNotEligible)
	}
	return s.deliver(ctx, convID, msg)
}

// deliver posts a pending message and applies the outcome to its entry.
func (s *Service) deliver(ctx context.Context, convID string, msg model.Message) (model.Message, error) {
	key := MessagesKey(convID)
	slow := s.clock.AfterFunc(s.opts.SlowThreshold, func() {
		querycache.Update(s.cache, key, func(cur Thread, _ bool) Thread {
			next, _ := mapMessage(cur, msg.TempID, func(m *model.Message) {
				if m.Status == model.StatusSending {
					m.Slow = true
				}
			})
			return next
		})
	})
	srv, err := s.backend.SendMessage(ctx, convID, api.OutgoingMessage{
		Type:     msg.Type,
		Content:  msg.Content,
		MediaURL: msg.MediaURL,
		TempID:   msg.TempID,
	})
	slow.Stop()
	if err != nil {
		querycache.Update(s.cache, key, func(cur Thread, _ bool) Thread {
			next, _ := mapMessage(cur, msg.TempID, func(m *model.Message) {
				m.Status = MergeStatus(m.Status, model.StatusFailed)
				m.Slow = false
			})
			return next
		})
		s.log.Warn("send failed", zap.String("conversation", convID), zap.Error(err))
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	if srv.ConversationID == "" {
		srv.ConversationID = convID
	}
	t := querycache.Update(s.cache, key, func(cur Thread, _ bool) Thread {
		return Confirm(cur, msg.TempID, srv)
	})
	s.touchConversation(convID, srv)
	if m, ok := t.Find(srv.ID); ok {
		return m, nil
	}
	return srv, nil
}

// touchConversation moves the last message of convID in the cached list.
func (s *Service) touchConversation(convID string, m model.Message) {
	if _, ok := querycache.Get[[]model.Conversation](s.cache, ConversationsKey); !ok {
		return
	}
	querycache.Update(s.cache, ConversationsKey, func(cur []model.Conversation, _ bool) []model.Conversation {
		next := slices.Clone(cur)
		for i := range next {
			if next[i].ID == convID {
				mm := m
				next[i].LastMessage = &mm
				if !m.CreatedAt.IsZero() {
					next[i].UpdatedAt = m.CreatedAt
				}
			}
		}
		return next
	})
}

// message returns a cached message or errs.ErrNotFound.
func (s *Service) message(convID, msgID string) (model.Message, error) {
	t, _ := querycache.Get[Thread](s.cache, MessagesKey(convID))
	m, ok := t.Find(msgID)
	if !ok {
		return model.Message{}, fmt.Errorf("message %s: %w", msgID, errs.ErrNotFound)
	}
	return m, nil
}

// Edit replaces the text of an own, recent text message.
func (s *Service) Edit(ctx context.Context, convID, msgID, text string) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, fmt.Errorf("validation: empty message: %w", errs.ErrValidation)
	}
	m, err := s.message(convID, msgID)
	if err != nil {
		return model.Message{}, err
	}
	now := s.clock.Now()
	if !CanEdit(m, s.opts.Self().ID, now) || IsPending(m) {
		return model.Message{}, fmt.Errorf("edit %s: %w", msgID, errs.ErrNotEligible)
	}
	return querycache.Optimistic(ctx, s.cache, querycache.Mutation[Thread, model.Message]{
		Key: MessagesKey(convID),
		Apply: func(cur Thread) Thread {
			next, _ := mapMessage(cur, msgID, func(m *model.Message) {
				m.EditHistory = append(slices.Clone(m.EditHistory), model.Edit{Content: m.Content, EditedAt: now})
				m.Content = text
				m.Edited = true
			})
			return next
		},
		Call: func(ctx context.Context) (model.Message, error) {
			return s.backend.EditMessage(ctx, msgID, text)
		},
		Commit: func(cur Thread, res model.Message) Thread {
			if res.ID != msgID {
				return cur
			}
			next, _ := mapMessage(cur, msgID, func(m *model.Message) { *m = mergeMessage(*m, res) })
			return next
		},
	})
}

// Recall withdraws an own, recent message for everyone.
func (s *Service) Recall(ctx context.Context, convID, msgID string) error {
	m, err := s.message(convID, msgID)
	if err != nil {
		return err
	}
	if !CanRecall(m, s.opts.Self().ID, s.clock.Now()) || IsPending(m) {
		return fmt.Errorf("recall %s: %w", msgID, errs.ErrNotEligible)
	}
	_, err = querycache.Optimistic(ctx, s.cache, querycache.Mutation[Thread, struct{}]{
		Key: MessagesKey(convID),
		Apply: func(cur Thread) Thread {
			next, _ := mapMessage(cur, msgID, func(m *model.Message) { m.Status = model.StatusRecalled })
			return next
		},
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.RecallMessage(ctx, msgID)
		},
	})
	return err
}

// Delete removes an own message.
func (s *Service) Delete(ctx context.Context, convID, msgID string) error {
	m, err := s.message(convID, msgID)
	if err != nil {
		return err
	}
	if m.Sender.ID != s.opts.Self().ID || m.IsDeleted || IsPending(m) {
		return fmt.Errorf("delete %s: %w", msgID, errs.ErrNotEligible)
	}
	_, err = querycache.Optimistic(ctx, s.cache, querycache.Mutation[Thread, struct{}]{
		Key: MessagesKey(convID),
		Apply: func(cur Thread) Thread {
			next, _ := mapMessage(cur, msgID, func(m *model.Message) {
				m.IsDeleted = true
				m.Content = ""
			})
			return next
		},
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.DeleteMessage(ctx, msgID)
		},
	})
	return err
}

// React toggles the viewer's emoji on a message.
func (s *Service) React(ctx context.Context, convID, msgID, emoji string) ([]model.Reaction, error) {
	if emoji == "" {
		return nil, fmt.Errorf("validation: empty emoji: %w", errs.ErrValidation)
	}
	m, err := s.message(convID, msgID)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted || m.Status == model.StatusRecalled || IsPending(m) {
		return nil, fmt.Errorf("react %s: %w", msgID, errs.ErrNotEligible)
	}
	self := s.opts.Self().ID
	return querycache.Optimistic(ctx, s.cache, querycache.Mutation[Thread, []model.Reaction]{
		Key: MessagesKey(convID),
		Apply: func(cur Thread) Thread {
			next, _ := mapMessage(cur, msgID, func(m *model.Message) {
				m.Reactions = toggleReaction(m.Reactions, self, emoji)
			})
			return next
		},
		Call: func(ctx context.Context) ([]model.Reaction, error) {
			return s.backend.ReactMessage(ctx, msgID, emoji)
		},
		Commit: func(cur Thread, res []model.Reaction) Thread {
			if res == nil {
				return cur
			}
			next, _ := mapMessage(cur, msgID, func(m *model.Message) { m.Reactions = res })
			return next
		},
	})
}

func toggleReaction(rs []model.Reaction, userID, emoji string) []model.Reaction {
	out := slices.Clone(rs)
	i := slices.IndexFunc(out, func(r model.Reaction) bool { return r.UserID == userID && r.Emoji == emoji })
	if i >= 0 {
		return slices.Delete(out, i, i+1)
	}
	return append(out, model.Reaction{UserID: userID, Emoji: emoji})
}

// MarkRead queues ids for the batched read receipt of convID.
func (s *Service) MarkRead(convID string, ids ...string) {
	s.reads.Add(convID, ids...)
}

// MarkThreadRead queues every confirmed peer message of convID.
func (s *Service) MarkThreadRead(convID string) {
	t, _ := querycache.Get[Thread](s.cache, MessagesKey(convID))
	self := s.opts.Self().ID
	var ids []string
	for _, m := range t.Messages {
		if m.Sender.ID != self && !IsPending(m) && m.Status != model.StatusRead {
			ids = append(ids, m.ID)
		}
	}
	s.MarkRead(convID, ids...)
}

// flushRead sends one batched receipt for all ids.
func (s *Service) flushRead(convID string, ids []string) {
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	if err := s.backend.MarkRead(ctx, convID, ids); err != nil {
		s.log.Warn("mark read", zap.String("conversation", convID), zap.Int("messages", len(ids)), zap.Error(err))
		return
	}
	s.emit(ctx, "message:read", map[string]any{"conversationId": convID, "messageIds": ids})
	querycache.Update(s.cache, ConversationsKey, func(cur []model.Conversation, ok bool) []model.Conversation {
		if !ok {
			return cur
		}
		next := slices.Clone(cur)
		for i := range next {
			if next[i].ID == convID {
				next[i].UnreadCount = max(0, next[i].UnreadCount-len(ids))
			}
		}
		return next
	})
}

// SetTyping emits the local user's typing state.
func (s *Service) SetTyping(ctx context.Context, convID string, typing bool) error {
	if s.socket == nil {
		return realtime.ErrNotConnected
	}
	return s.socket.Emit(ctx, "typing", map[string]any{"conversationId": convID, "isTyping": typing})
}

// emit sends a best-effort socket event.
func (s *Service) emit(ctx context.Context, event string, data any) {
	if s.socket == nil {
		return
	}
	if err := s.socket.Emit(ctx, event, data); err != nil {
		s.log.Debug("emit skipped", zap.String("event", event), zap.Error(err))
	}
}

func decode[T any](s *Service, event string, data json.RawMessage) (T, bool) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		s.log.Debug("bad event payload", zap.String("event", event), zap.Error(err))
		return v, false
	}
	return v, true
}
