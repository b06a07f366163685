// Package stories manages ephemeral stories: the active and archived lists,
// canvas reactions, replies, highlights and the archive/restore lifecycle.
package stories

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
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
	Prefix      = querycache.Key{"stories"}
	ActiveKey   = querycache.Key{"stories", "active"}
	ArchivedKey = querycache.Key{"stories", "archived"}
)

// Socket events.
const (
	EventCreated        = "story:created"
	EventDeleted        = "story:deleted"
	EventReaction       = "story:reaction"
	EventPositionUpdate = "story:position_update"
)

// Lifetime is how long a story stays active when the server sends no expiry.
const Lifetime = 24 * time.Hour

// Backend is the part of the API client stories use.
type Backend interface {
	Stories(ctx context.Context) ([]model.Story, error)
	ArchivedStories(ctx context.Context) ([]model.Story, error)
	CreateStory(ctx context.Context, s api.NewStory) (model.Story, error)
	ViewStory(ctx context.Context, id string, durationMS int64) error
	ReactStory(ctx context.Context, id, kind string, pos model.Position) (model.StoryReaction, error)
	MoveStoryReaction(ctx context.Context, id, reactionID string, pos model.Position) error
	ReplyStory(ctx context.Context, id, text string, media *api.File) (model.StoryReply, error)
	DeleteStory(ctx context.Context, id string) error
	HighlightStory(ctx context.Context, id, category string) error
	ArchiveStory(ctx context.Context, id string) error
	RestoreStory(ctx context.Context, id string) error
}

// Socket is the part of the realtime client stories use.
type Socket interface {
	On(event string, h realtime.Handler) (off func())
	Emit(ctx context.Context, event string, data any) error
}

// Service implements story operations. It is safe for concurrent use.
type Service struct {
	backend Backend
	socket  Socket
	cache   *querycache.Cache
	clock   clock.Clock
	log     *zap.Logger

	mu   sync.Mutex
	offs []func()
}

// New constructs the service. socket and clk may be nil.
func New(backend Backend, socket Socket, cache *querycache.Cache, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	s := &Service{backend: backend, socket: socket, cache: cache, clock: clk, log: logging.OrNop(log)}
	if socket != nil {
		for _, ev := range []string{EventCreated, EventDeleted, EventReaction, EventPositionUpdate} {
			s.offs = append(s.offs, socket.On(ev, func(json.RawMessage) { s.cache.Invalidate(Prefix) }))
		}
	}
	return s
}

// Close unregisters socket handlers.
func (s *Service) Close() {
	s.mu.Lock()
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()
	for _, off := range offs {
		off()
	}
}

// ExpiresAt returns when st leaves the active list.
func ExpiresAt(st model.Story) time.Time {
	if st.ExpiresAt.IsZero() {
		return st.CreatedAt.Add(Lifetime)
	}
	return st.ExpiresAt
}

// Expired reports whether the 24h window of st has elapsed at now.
func Expired(st model.Story, now time.Time) bool {
	return !now.Before(ExpiresAt(st))
}

// Classify marks a non-archived story whose window elapsed as an expired archive.
func Classify(st model.Story, now time.Time) model.Story {
	if st.Archived || !Expired(st, now) {
		return st
	}
	at := ExpiresAt(st)
	st.Archived = true
	st.ArchiveType = model.ArchiveExpired
	st.ArchivedAt = &at
	return st
}

// Restorable reports whether an archived story may return to the active list:
// only manual archives whose window is still open.
func Restorable(st model.Story, now time.Time) bool {
	return st.Archived && st.ArchiveType == model.ArchiveManual && !Expired(st, now)
}

func (s *Service) fetchActive(ctx context.Context) ([]model.Story, error) {
	return querycache.Fetch(ctx, s.cache, ActiveKey, s.backend.Stories)
}

// Active lists stories still inside their window.
func (s *Service) Active(ctx context.Context) ([]model.Story, error) {
	all, err := s.fetchActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	now := s.clock.Now()
	out := make([]model.Story, 0, len(all))
	for _, st := range all {
		if !Classify(st, now).Archived {
			out = append(out, st)
		}
	}
	return out, nil
}

// Archived lists archived stories plus active-list stories whose window elapsed.
func (s *Service) Archived(ctx context.Context) ([]model.Story, error) {
	archived, err := querycache.Fetch(ctx, s.cache, ArchivedKey, s.backend.ArchivedStories)
	if err != nil {
		return nil, fmt.Errorf("load archived stories: %w", err)
	}
	all, err := s.fetchActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stories: %w", err)
	}
	now := s.clock.Now()
	seen := make(map[string]bool, len(archived))
	out := make([]model.Story, 0, len(archived))
	for _, st := range archived {
		seen[st.ID] = true
		if !st.Archived {
			st.Archived = true
			if st.ArchiveType == model.ArchiveNone {
				st.ArchiveType = model.ArchiveManual
			}
		}
		out = append(out, st)
	}
	for _, st := range all {
		if c := Classify(st, now); c.Archived && !seen[st.ID] {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Story) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Service) emit(ctx context.Context, event string, data any) {
	if s.socket == nil {
		return
	}
	if err := s.socket.Emit(ctx, event, data); err != nil {
		s.log.Debug("emit skipped", zap.String("event", event), zap.Error(err))
	}
}

// Create publishes a story.
func (s *Service) Create(ctx context.Context, in api.NewStory) (model.Story, error) {
	if len(in.Media.Data) == 0 {
		return model.Story{}, fmt.Errorf("validation: story needs media: %w", errs.ErrValidation)
	}
	if in.Visibility == "" {
		in.Visibility = "public"
	}
	st, err := s.backend.CreateStory(ctx, in)
	if err != nil {
		return model.Story{}, fmt.Errorf("create story: %w", err)
	}
	s.cache.Invalidate(ActiveKey)
	s.emit(ctx, EventCreated, map[string]string{"storyId": st.ID})
	return st, nil
}

// View records that the viewer watched story id for d.
func (s *Service) View(ctx context.Context, id string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("validation: negative view duration: %w", errs.ErrValidation)
	}
	if err := s.backend.ViewStory(ctx, id, d.Milliseconds()); err != nil {
		return fmt.Errorf("view story %s: %w", id, err)
	}
	s.cache.Invalidate(ActiveKey)
	return nil
}

func validPosition(p model.Position) bool {
	return p.X >= 0 && p.X <= 1 && p.Y >= 0 && p.Y <= 1
}

// mapStory applies fn to a copy of story id in list.
func mapStory(list []model.Story, id string, fn func(*model.Story)) []model.Story {
	out := slices.Clone(list)
	for i := range out {
		if out[i].ID == id {
			fn(&out[i])
		}
	}
	return out
}

// React places a reaction of kind at pos on the story canvas.
func (s *Service) React(ctx context.Context, id, kind string, pos model.Position) (model.StoryReaction, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" || !validPosition(pos) {
		return model.StoryReaction{}, fmt.Errorf("validation: reaction needs a type and a position in [0,1]: %w", errs.ErrValidation)
	}
	tmp := model.StoryReaction{ID: "pending", Type: kind, Position: pos}
	res, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.Story, model.StoryReaction]{
		Key: ActiveKey,
		Apply: func(cur []model.Story) []model.Story {
			return mapStory(cur, id, func(st *model.Story) {
				st.Reactions = append(slices.Clone(st.Reactions), tmp)
			})
		},
		Call: func(ctx context.Context) (model.StoryReaction, error) {
			return s.backend.ReactStory(ctx, id, kind, pos)
		},
		Commit: func(cur []model.Story, r model.StoryReaction) []model.Story {
			return mapStory(cur, id, func(st *model.Story) {
				st.Reactions = slices.Clone(st.Reactions)
				if i := slices.IndexFunc(st.Reactions, func(x model.StoryReaction) bool { return x.ID == tmp.ID }); i >= 0 {
					st.Reactions[i] = r
				}
			})
		},
		Invalidate: []querycache.Key{ActiveKey},
	})
	if err != nil {
		return model.StoryReaction{}, fmt.Errorf("react to story %s: %w", id, err)
	}
	s.emit(ctx, EventReaction, map[string]any{"storyId": id, "reaction": res})
	return res, nil
}

// MoveReaction drags a placed reaction to pos.
func (s *Service) MoveReaction(ctx context.Context, id, reactionID string, pos model.Position) error {
	if !validPosition(pos) {
		return fmt.Errorf("validation: position outside [0,1]: %w", errs.ErrValidation)
	}
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.Story, struct{}]{
		Key: ActiveKey,
		Apply: func(cur []model.Story) []model.Story {
			return mapStory(cur, id, func(st *model.Story) {
				st.Reactions = slices.Clone(st.Reactions)
				for i := range st.Reactions {
					if st.Reactions[i].ID == reactionID {
						st.Reactions[i].Position = pos
					}
				}
			})
		},
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.MoveStoryReaction(ctx, id, reactionID, pos)
		},
	})
	if err != nil {
		return fmt.Errorf("move reaction %s: %w", reactionID, err)
	}
	s.emit(ctx, EventPositionUpdate, map[string]any{"storyId": id, "reactionId": reactionID, "position": pos})
	return nil
}

// Reply answers a story with text and optional media.
func (s *Service) Reply(ctx context.Context, id, text string, media *api.File) (model.StoryReply, error) {
	text = strings.TrimSpace(text)
	if text == "" && (media == nil || len(media.Data) == 0) {
		return model.StoryReply{}, fmt.Errorf("validation: empty reply: %w", errs.ErrValidation)
	}
	r, err := s.backend.ReplyStory(ctx, id, text, media)
	if err != nil {
		return model.StoryReply{}, fmt.Errorf("reply to story %s: %w", id, err)
	}
	s.cache.Invalidate(ActiveKey)
	return r, nil
}

func without(list []model.Story, id string) []model.Story {
	return slices.DeleteFunc(slices.Clone(list), func(st model.Story) bool { return st.ID == id })
}

// Delete removes a story permanently.
func (s *Service) Delete(ctx context.Context, id string) error {
	archived, _ := querycache.Get[[]model.Story](s.cache, ArchivedKey)
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.Story, struct{}]{
		Key:   ActiveKey,
		Apply: func(cur []model.Story) []model.Story { return without(cur, id) },
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.DeleteStory(ctx, id)
		},
		Invalidate: []querycache.Key{Prefix},
	})
	if err != nil {
		return fmt.Errorf("delete story %s: %w", id, err)
	}
	if archived != nil {
		querycache.Set(s.cache, ArchivedKey, without(archived, id))
		s.cache.Invalidate(ArchivedKey)
	}
	s.emit(ctx, EventDeleted, map[string]string{"storyId": id})
	return nil
}

// Highlight files a story under category.
func (s *Service) Highlight(ctx context.Context, id, category string) error {
	category = strings.TrimSpace(category)
	if category == "" {
		return fmt.Errorf("validation: empty highlight category: %w", errs.ErrValidation)
	}
	if err := s.backend.HighlightStory(ctx, id, category); err != nil {
		return fmt.Errorf("highlight story %s: %w", id, err)
	}
	s.cache.Invalidate(Prefix)
	return nil
}

// Archive moves an active story to the archive manually.
func (s *Service) Archive(ctx context.Context, id string) error {
	_, err := querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.Story, struct{}]{
		Key:   ActiveKey,
		Apply: func(cur []model.Story) []model.Story { return without(cur, id) },
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.ArchiveStory(ctx, id)
		},
		Invalidate: []querycache.Key{Prefix},
	})
	if err != nil {
		return fmt.Errorf("archive story %s: %w", id, err)
	}
	return nil
}

// Restore returns a manually archived story to the active list. Expired
// stories are rejected with errs.ErrRestoreWindow before any request.
func (s *Service) Restore(ctx context.Context, id string) error {
	archived, err := s.Archived(ctx)
	if err != nil {
		return err
	}
	i := slices.IndexFunc(archived, func(st model.Story) bool { return st.ID == id })
	if i < 0 {
		return fmt.Errorf("archived story %s: %w", id, errs.ErrNotFound)
	}
	if !Restorable(archived[i], s.clock.Now()) {
		return fmt.Errorf("restore story %s: %w", id, errs.ErrRestoreWindow)
	}
	_, err = querycache.Optimistic(ctx, s.cache, querycache.Mutation[[]model.Story, struct{}]{
		Key:   ArchivedKey,
		Apply: func(cur []model.Story) []model.Story { return without(cur, id) },
		Call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.backend.RestoreStory(ctx, id)
		},
		Invalidate: []querycache.Key{Prefix},
	})
	if err != nil {
		return fmt.Errorf("restore story %s: %w", id, err)
	}
	return nil
}
