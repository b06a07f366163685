// Package feed is the paginated post list with optimistic likes, follows and deletes.
package feed

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/media"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
)

// Key is the cache key of the feed.
var Key = querycache.Key{"posts", "feed"}

// Backend is the part of the API client the feed uses.
type Backend interface {
	Posts(ctx context.Context, page, limit int) ([]model.Post, error)
	CreatePost(ctx context.Context, p api.NewPost) (model.Post, error)
	LikePost(ctx context.Context, postID string) (api.LikeResult, error)
	DeletePost(ctx context.Context, postID string) error
	Follow(ctx context.Context, userID string) (api.FollowResult, error)
}

// State is the cached feed.
type State struct {
	Posts   []model.Post
	Loaded  []int
	HasMore bool
}

func (s State) loaded(page int) bool { return slices.Contains(s.Loaded, page) }

func (s State) clone() State {
	return State{Posts: slices.Clone(s.Posts), Loaded: slices.Clone(s.Loaded), HasMore: s.HasMore}
}

// Service implements the feed operations.
type Service struct {
	backend  Backend
	cache    *querycache.Cache
	resolver *media.Resolver
	limit    int
	log      *zap.Logger
}

// New constructs the feed service. resolver may be nil.
func New(backend Backend, cache *querycache.Cache, resolver *media.Resolver, limit int, log *zap.Logger) *Service {
	if limit <= 0 {
		limit = 20
	}
	return &Service{backend: backend, cache: cache, resolver: resolver, limit: limit, log: logging.OrNop(log)}
}

// State returns the cached feed.
func (s *Service) State() State {
	st, _ := querycache.Get[State](s.cache, Key)
	return st
}

// LoadPage fetches page n and appends it. Loading an already loaded page is a no-op.
func (s *Service) LoadPage(ctx context.Context, n int) (State, error) {
	if n < 1 {
		return State{}, fmt.Errorf("validation: page must be >= 1: %w", errs.ErrValidation)
	}
	if st := s.State(); st.loaded(n) {
		return st, nil
	}
	posts, err := s.backend.Posts(ctx, n, s.limit)
	if err != nil {
		return State{}, fmt.Errorf("load feed page %d: %w", n, err)
	}
	return querycache.Update(s.cache, Key, func(cur State, ok bool) State {
		next := cur.clone()
		if !ok {
			next = State{}
		}
		if next.loaded(n) {
			return next
		}
		seen := make(map[string]bool, len(next.Posts))
		for _, p := range next.Posts {
			seen[p.ID] = true
		}
		for _, p := range posts {
			if !seen[p.ID] {
				next.Posts = append(next.Posts, p)
				seen[p.ID] = true
			}
		}
		next.Loaded = append(next.Loaded, n)
		next.HasMore = len(posts) >= s.limit
		return next
	}), nil
}

// LoadMore loads the page after the highest loaded one, if any remain.
func (s *Service) LoadMore(ctx context.Context) (State, error) {
	st := s.State()
	if len(st.Loaded) > 0 && !st.HasMore {
		return st, nil
	}
	return s.LoadPage(ctx, slices.Max(append([]int{0}, st.Loaded...))+1)
}

// Refresh drops all pages and loads page 1.
func (s *Service) Refresh(ctx context.Context) (State, error) {
	s.cache.Remove(Key)
	return s.LoadPage(ctx, 1)
}

// ToggleLike flips the viewer's like optimistically and commits the server counts.
func (s *Service) ToggleLike(ctx context.Context, postID string) (api.LikeResult, error) {
	return querycache.Optimistic(ctx, s.cache, querycache.Mutation[State, api.LikeResult]{
		Key: Key,
		Apply: func(cur State) State {
			return mapPost(cur, postID, func(p *model.Post) {
				p.Liked = !p.Liked
				if p.Liked {
					p.LikesCount++
				} else if p.LikesCount > 0 {
					p.LikesCount--
				}
			})
		},
		Call: func(ctx context.Context) (api.LikeResult, error) {
			return s.backend.LikePost(ctx, postID)
		},
		Commit: func(cur State, res api.LikeResult) State {
			return mapPost(cur, postID, func(p *model.Post) {
				p.Liked = res.Liked
				p.LikesCount = res.LikesCount
			})
		},
	})
}

// Follow toggles following an author. It bypasses the request queue.
func (s *Service) Follow(ctx context.Context, userID string) (api.FollowResult, error) {
	setFollow := func(cur State, v func(bool) bool) State {
		next := cur.clone()
		for i := range next.Posts {
			if next.Posts[i].Author.ID == userID {
				next.Posts[i].Author.IsFollowing = v(next.Posts[i].Author.IsFollowing)
			}
		}
		return next
	}
	return querycache.Optimistic(ctx, s.cache, querycache.Mutation[State, api.FollowResult]{
		Key:   Key,
		Apply: func(cur State) State { return setFollow(cur, func(b bool) bool { return !b }) },
		Call: func(ctx context.Context) (api.FollowResult, error) {
			return s.backend.Follow(ctx, userID)
		},
		Commit: func(cur State, res api.FollowResult) State {
			return setFollow(cur, func(bool) bool { return res.Following })
		},
	})
}

// CreatePost publishes a post and prepends it to the feed.
func (s *Service) CreatePost(ctx context.Context, p api.NewPost) (model.Post, error) {
	if strings.TrimSpace(p.Content) == "" && len(p.Media) == 0 {
		return model.Post{}, fmt.Errorf("validation: post needs content or media: %w", errs.ErrValidation)
	}
	created, err := s.backend.CreatePost(ctx, p)
	if err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}
	querycache.Update(s.cache, Key, func(cur State, _ bool) State {
		next := cur.clone()
		next.Posts = append([]model.Post{created}, next.Posts...)
		return next
	})
	return created, nil
}

// DeletePost removes a post optimistically.
func (s *Service) DeletePost(ctx context.Context, postID string) error {
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[State, struct{}]{
		Key: Key,
		Apply: func(cur State) State {
			next := cur.clone()
			next.Posts = slices.DeleteFunc(next.Posts, func(p model.Post) bool { return p.ID == postID })
			return next
		},
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.DeletePost(ctx, postID)
		},
	})
	return err
}

// ResolveMedia rewrites the post's media URLs to reachable hosts.
func (s *Service) ResolveMedia(ctx context.Context, p model.Post) model.Post {
	if s.resolver == nil || len(p.Media) == 0 {
		return p
	}
	p.Media = slices.Clone(p.Media)
	for i := range p.Media {
		p.Media[i].URL, _ = s.resolver.Resolve(ctx, p.Media[i].URL)
	}
	return p
}

func mapPost(cur State, postID string, fn func(*model.Post)) State {
	next := cur.clone()
	for i := range next.Posts {
		if next.Posts[i].ID == postID {
			fn(&next.Posts[i])
		}
	}
	return next
}
