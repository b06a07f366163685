// Package notifications lists the viewer's notifications and keeps the read
// flags and unread counter in step with the server.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
	"github.com/and161185/social-client/internal/realtime"
)

// Cache keys.
var (
	Prefix    = querycache.Key{"notifications"}
	ListKey   = querycache.Key{"notifications", "list"}
	UnreadKey = querycache.Key{"notifications", "unread"}
)

// EventNew is pushed by the server for every new notification.
const EventNew = "notification:new"

// Backend is the part of the API client notifications use.
type Backend interface {
	Notifications(ctx context.Context, page, limit int) ([]model.Notification, error)
	UnreadNotifications(ctx context.Context) (int, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id string) error
}

// Socket is the part of the realtime client notifications use.
type Socket interface {
	On(event string, h realtime.Handler) (off func())
}

// List is the cached, paged notification list.
type List struct {
	Items   []model.Notification
	Pages   []int
	HasMore bool
}

func (l List) clone() List {
	return List{Items: slices.Clone(l.Items), Pages: slices.Clone(l.Pages), HasMore: l.HasMore}
}

// Service is safe for concurrent use.
type Service struct {
	backend Backend
	cache   *querycache.Cache
	limit   int
	log     *zap.Logger
	off     func()
}

// New constructs the service. socket may be nil.
func New(backend Backend, socket Socket, cache *querycache.Cache, limit int, log *zap.Logger) *Service {
	if limit <= 0 {
		limit = 20
	}
	s := &Service{backend: backend, cache: cache, limit: limit, log: logging.OrNop(log)}
	if socket != nil {
		s.off = socket.On(EventNew, func(json.RawMessage) { s.cache.Invalidate(Prefix) })
	}
	return s
}

// Close unregisters the socket handler.
func (s *Service) Close() {
	if s.off != nil {
		s.off()
	}
}

// List loads page n (1-based) and appends it to the cached list.
func (s *Service) List(ctx context.Context, page int) (List, error) {
	if page < 1 {
		return List{}, fmt.Errorf("validation: page must be >= 1: %w", errs.ErrValidation)
	}
	if cur, ok := querycache.Get[List](s.cache, ListKey); ok && !s.cache.IsStale(ListKey) && slices.Contains(cur.Pages, page) {
		return cur, nil
	}
	items, err := s.backend.Notifications(ctx, page, s.limit)
	if err != nil {
		return List{}, fmt.Errorf("load notifications page %d: %w", page, err)
	}
	stale := s.cache.IsStale(ListKey)
	return querycache.Update(s.cache, ListKey, func(cur List, ok bool) List {
		next := cur.clone()
		if !ok || (stale && page == 1) {
			next = List{}
		}
		for _, n := range items {
			if !slices.ContainsFunc(next.Items, func(x model.Notification) bool { return x.ID == n.ID }) {
				next.Items = append(next.Items, n)
			}
		}
		if !slices.Contains(next.Pages, page) {
			next.Pages = append(next.Pages, page)
		}
		next.HasMore = len(items) >= s.limit
		return next
	}), nil
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	n, err := querycache.Fetch(ctx, s.cache, UnreadKey, s.backend.UnreadNotifications)
	if err != nil {
		return 0, fmt.Errorf("load unread count: %w", err)
	}
	return n, nil
}

func (s *Service) mutate(ctx context.Context, apply func(List) List, call func(context.Context) error) error {
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[List, struct{}]{
		Key:   ListKey,
		Apply: apply,
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, call(ctx)
		},
		Invalidate: []querycache.Key{UnreadKey},
	})
	return err
}

func setRead(l List, match func(model.Notification) bool) List {
	next := l.clone()
	for i := range next.Items {
		if match(next.Items[i]) {
			next.Items[i].IsRead = true
		}
	}
	return next
}

// MarkRead flags one notification as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	err := s.mutate(ctx,
		func(l List) List { return setRead(l, func(n model.Notification) bool { return n.ID == id }) },
		func(ctx context.Context) error { return s.backend.MarkNotificationRead(ctx, id) })
	if err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead flags every notification as read.
func (s *Service) MarkAllRead(ctx context.Context) error {
	err := s.mutate(ctx,
		func(l List) List { return setRead(l, func(model.Notification) bool { return true }) },
		s.backend.MarkAllNotificationsRead)
	if err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Delete removes a notification.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.mutate(ctx,
		func(l List) List {
			next := l.clone()
			next.Items = slices.DeleteFunc(next.Items, func(n model.Notification) bool { return n.ID == id })
			return next
		},
		func(ctx context.Context) error { return s.backend.DeleteNotification(ctx, id) })
	if err != nil {
		return fmt.Errorf("delete notification %s: %w", id, err)
	}
	return nil
}
