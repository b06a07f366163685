// Package search runs debounced user/post searches and manages the search
// history and trending tags.
package search

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/debounce"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
)

// Cache keys.
var (
	Prefix     = querycache.Key{"search"}
	HistoryKey = querycache.Key{"search", "history"}
)

// ResultsKey is the cache key of the results for q.
func ResultsKey(q string) querycache.Key { return querycache.Key{"search", "results", q} }

// TrendingKey is the cache key of the trending tags.
func TrendingKey(limit int) querycache.Key {
	return querycache.Key{"search", "trending", fmt.Sprint(limit)}
}

// Backend is the part of the API client search uses.
type Backend interface {
	Search(ctx context.Context, q string) (model.SearchResults, error)
	SearchHistory(ctx context.Context) ([]model.SearchHistoryEntry, error)
	DeleteSearchHistory(ctx context.Context, id string) error
	ClearSearchHistory(ctx context.Context) error
	Trending(ctx context.Context, limit int) ([]model.TrendingTag, error)
}

// ResultFunc receives the answer to a typed query.
type ResultFunc func(q string, res model.SearchResults, err error)

// Service is safe for concurrent use.
type Service struct {
	backend  Backend
	cache    *querycache.Cache
	log      *zap.Logger
	debounce *debounce.Debouncer[string]

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	onResult ResultFunc
	latest   string
}

// New constructs the service. Typed queries are sent once input has been
// quiet for delay.
func New(backend Backend, cache *querycache.Cache, clk clock.Clock, delay time.Duration, log *zap.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{backend: backend, cache: cache, log: logging.OrNop(log), ctx: ctx, cancel: cancel}
	s.debounce = debounce.New(clk, delay, s.run)
	return s
}

// OnResult sets the callback for typed queries.
func (s *Service) OnResult(fn ResultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// Close cancels a pending query and any request in flight.
func (s *Service) Close() {
	s.debounce.Cancel()
	s.cancel()
}

// Type records the current input. Only the last input of a burst is searched.
// Clearing the input drops the pending query.
func (s *Service) Type(q string) {
	q = strings.TrimSpace(q)
	s.mu.Lock()
	s.latest = q
	s.mu.Unlock()
	if q == "" {
		s.debounce.Cancel()
		return
	}
	s.debounce.Call(q)
}

// Flush sends a pending typed query now.
func (s *Service) Flush() { s.debounce.Flush() }

// loader is querycache.Fetch or querycache.Refetch.
type loader func(context.Context, *querycache.Cache, querycache.Key, func(context.Context) (model.SearchResults, error)) (model.SearchResults, error)

// run always asks the server: a query typed again later must not be served
// the answer cached the first time.
func (s *Service) run(q string) {
	res, err := s.search(s.ctx, q, querycache.Refetch[model.SearchResults])
	s.mu.Lock()
	fn, current := s.onResult, s.latest == q
	s.mu.Unlock()
	if !current {
		s.log.Debug("dropping outdated search result", zap.String("query", q))
		return
	}
	if fn != nil {
		fn(q, res, err)
	}
}

// Search queries users and posts immediately, reusing cached results.
func (s *Service) Search(ctx context.Context, q string) (model.SearchResults, error) {
	return s.search(ctx, q, querycache.Fetch[model.SearchResults])
}

func (s *Service) search(ctx context.Context, q string, load loader) (model.SearchResults, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return model.SearchResults{}, fmt.Errorf("validation: empty query: %w", errs.ErrValidation)
	}
	res, err := load(ctx, s.cache, ResultsKey(q), func(ctx context.Context) (model.SearchResults, error) {
		return s.backend.Search(ctx, q)
	})
	if err != nil {
		return model.SearchResults{}, fmt.Errorf("search %q: %w", q, err)
	}
	// the server records queries in the history
	s.cache.Invalidate(HistoryKey)
	return res, nil
}

// History lists past queries.
func (s *Service) History(ctx context.Context) ([]model.SearchHistoryEntry, error) {
	h, err := querycache.Fetch(ctx, s.cache, HistoryKey, s.backend.SearchHistory)
	if err != nil {
		return nil, fmt.Errorf("load search history: %w", err)
	}
	return h, nil
}

// DeleteHistory removes one entry.
func (s *Service) DeleteHistory(ctx context.Context, id string) error {
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.SearchHistoryEntry, struct{}]{
		Key: HistoryKey,
		Apply: func(cur []model.SearchHistoryEntry) []model.SearchHistoryEntry {
			return slices.DeleteFunc(slices.Clone(cur), func(e model.SearchHistoryEntry) bool { return e.ID == id })
		},
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.DeleteSearchHistory(ctx, id)
		},
	})
	if err != nil {
		return fmt.Errorf("delete search history %s: %w", id, err)
	}
	return nil
}

// ClearHistory removes every entry.
func (s *Service) ClearHistory(ctx context.Context) error {
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.SearchHistoryEntry, struct{}]{
		Key:   HistoryKey,
		Apply: func([]model.SearchHistoryEntry) []model.SearchHistoryEntry { return []model.SearchHistoryEntry{} },
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.ClearSearchHistory(ctx)
		},
	})
	if err != nil {
		return fmt.Errorf("clear search history: %w", err)
	}
	return nil
}

// Trending lists the most used tags.
func (s *Service) Trending(ctx context.Context, limit int) ([]model.TrendingTag, error) {
	if limit <= 0 {
		limit = 10
	}
	tags, err := querycache.Fetch(ctx, s.cache, TrendingKey(limit), func(ctx context.Context) ([]model.TrendingTag, error) {
		return s.backend.Trending(ctx, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("load trending: %w", err)
	}
	return tags, nil
}
