package stories

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
	"github.com/and161185/social-client/internal/realtime"
)

type fakeBackend struct {
	mu         sync.Mutex
	active     []model.Story
	archived   []model.Story
	restores   atomic.Int32
	archiveErr error
	reactErr   error
}

func (b *fakeBackend) Stories(context.Context) ([]model.Story, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Story(nil), b.active...), nil
}

func (b *fakeBackend) ArchivedStories(context.Context) ([]model.Story, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Story(nil), b.archived...), nil
}

func (b *fakeBackend) CreateStory(_ context.Context, s api.NewStory) (model.Story, error) {
	return model.Story{ID: "new", Visibility: s.Visibility}, nil
}

func (b *fakeBackend) ViewStory(context.Context, string, int64) error { return nil }

func (b *fakeBackend) ReactStory(_ context.Context, _, kind string, pos model.Position) (model.StoryReaction, error) {
	if b.reactErr != nil {
		return model.StoryReaction{}, b.reactErr
	}
	return model.StoryReaction{ID: "r1", UserID: "me", Type: kind, Position: pos}, nil
}

func (b *fakeBackend) MoveStoryReaction(context.Context, string, string, model.Position) error {
	return nil
}

func (b *fakeBackend) ReplyStory(_ context.Context, _, text string, _ *api.File) (model.StoryReply, error) {
	return model.StoryReply{ID: "rep", Text: text}, nil
}

func (b *fakeBackend) DeleteStory(context.Context, string) error            { return nil }
func (b *fakeBackend) HighlightStory(context.Context, string, string) error { return nil }
func (b *fakeBackend) ArchiveStory(context.Context, string) error           { return b.archiveErr }

func (b *fakeBackend) RestoreStory(context.Context, string) error {
	b.restores.Add(1)
	return nil
}

type fakeSocket struct {
	mu       sync.Mutex
	handlers map[string]realtime.Handler
	emits    []string
}

func (s *fakeSocket) On(event string, h realtime.Handler) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
	return func() {}
}

func (s *fakeSocket) Emit(_ context.Context, event string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emits = append(s.emits, event)
	return nil
}

var t0 = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T, b *fakeBackend) (*Service, *querycache.Cache, *clock.Mock, *fakeSocket) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(t0)
	cache := querycache.New(querycache.Options{})
	sock := &fakeSocket{handlers: make(map[string]realtime.Handler)}
	s := New(b, sock, cache, clk, nil)
	t.Cleanup(s.Close)
	return s, cache, clk, sock
}

func TestExpiredStoryMovesToArchive(t *testing.T) {
	b := &fakeBackend{active: []model.Story{
		{ID: "s1", CreatedAt: t0, ExpiresAt: t0.Add(24 * time.Hour)},
	}}
	s, cache, clk, _ := newService(t, b)

	active, err := s.Active(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)

	clk.Add(24*time.Hour + time.Second)
	cache.Invalidate(Prefix)

	active, err = s.Active(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	archived, err := s.Archived(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "s1", archived[0].ID)
	assert.Equal(t, model.ArchiveExpired, archived[0].ArchiveType)

	err = s.Restore(context.Background(), "s1")
	require.ErrorIs(t, err, errs.ErrRestoreWindow)
	assert.Zero(t, b.restores.Load())
}

func TestRestoreManualArchive(t *testing.T) {
	b := &fakeBackend{archived: []model.Story{
		{ID: "s2", CreatedAt: t0, ExpiresAt: t0.Add(24 * time.Hour), Archived: true, ArchiveType: model.ArchiveManual},
	}}
	s, cache, clk, _ := newService(t, b)

	clk.Add(time.Hour)
	require.NoError(t, s.Restore(context.Background(), "s2"))
	assert.Equal(t, int32(1), b.restores.Load())
	assert.True(t, cache.IsStale(ActiveKey))

	clk.Add(24 * time.Hour)
	cache.Invalidate(Prefix)
	require.ErrorIs(t, s.Restore(context.Background(), "s2"), errs.ErrRestoreWindow)
	assert.Equal(t, int32(1), b.restores.Load())

	require.ErrorIs(t, s.Restore(context.Background(), "missing"), errs.ErrNotFound)
}

func TestClassify(t *testing.T) {
	st := model.Story{ID: "x", CreatedAt: t0}
	assert.False(t, Classify(st, t0.Add(23*time.Hour)).Archived)
	c := Classify(st, t0.Add(Lifetime))
	assert.True(t, c.Archived)
	assert.Equal(t, model.ArchiveExpired, c.ArchiveType)
	require.NotNil(t, c.ArchivedAt)
	assert.Equal(t, t0.Add(Lifetime), *c.ArchivedAt)

	manual := model.Story{Archived: true, ArchiveType: model.ArchiveManual, CreatedAt: t0}
	assert.Equal(t, manual, Classify(manual, t0.Add(48*time.Hour)))
}

func TestArchive_RollsBack(t *testing.T) {
	b := &fakeBackend{active: []model.Story{{ID: "s1", CreatedAt: t0}}, archiveErr: errors.New("boom")}
	s, cache, _, _ := newService(t, b)
	_, err := s.Active(context.Background())
	require.NoError(t, err)

	require.Error(t, s.Archive(context.Background(), "s1"))
	list, _ := querycache.Get[[]model.Story](cache, ActiveKey)
	assert.Len(t, list, 1)
}

func TestReact(t *testing.T) {
	b := &fakeBackend{active: []model.Story{{ID: "s1", CreatedAt: t0}}}
	s, cache, _, sock := newService(t, b)
	_, err := s.Active(context.Background())
	require.NoError(t, err)

	_, err = s.React(context.Background(), "s1", "heart", model.Position{X: 1.5, Y: 0})
	require.ErrorIs(t, err, errs.ErrValidation)

	r, err := s.React(context.Background(), "s1", "heart", model.Position{X: 0.2, Y: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "r1", r.ID)
	list, _ := querycache.Get[[]model.Story](cache, ActiveKey)
	require.Len(t, list[0].Reactions, 1)
	assert.Equal(t, "r1", list[0].Reactions[0].ID)
	assert.Contains(t, sock.emits, EventReaction)

	b.reactErr = errors.New("boom")
	_, err = s.React(context.Background(), "s1", "fire", model.Position{X: 0.5, Y: 0.5})
	require.Error(t, err)
	list, _ = querycache.Get[[]model.Story](cache, ActiveKey)
	assert.Len(t, list[0].Reactions, 1)
}

func TestMoveReactionAndDeleteEmit(t *testing.T) {
	b := &fakeBackend{active: []model.Story{{ID: "s1", CreatedAt: t0, Reactions: []model.StoryReaction{{ID: "r1"}}}}}
	s, cache, _, sock := newService(t, b)
	_, err := s.Active(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.MoveReaction(context.Background(), "s1", "r1", model.Position{X: 0.9, Y: 0.1}))
	list, _ := querycache.Get[[]model.Story](cache, ActiveKey)
	assert.Equal(t, model.Position{X: 0.9, Y: 0.1}, list[0].Reactions[0].Position)

	require.NoError(t, s.Delete(context.Background(), "s1"))
	list, _ = querycache.Get[[]model.Story](cache, ActiveKey)
	assert.Empty(t, list)
	assert.Equal(t, []string{EventPositionUpdate, EventDeleted}, sock.emits)
}

func TestValidation(t *testing.T) {
	s, _, _, _ := newService(t, &fakeBackend{})
	_, err := s.Create(context.Background(), api.NewStory{})
	require.ErrorIs(t, err, errs.ErrValidation)
	_, err = s.Reply(context.Background(), "s1", " ", nil)
	require.ErrorIs(t, err, errs.ErrValidation)
	require.ErrorIs(t, s.Highlight(context.Background(), "s1", ""), errs.ErrValidation)

	st, err := s.Create(context.Background(), api.NewStory{Media: api.File{Name: "a.jpg", Data: []byte{1}}})
	require.NoError(t, err)
	assert.Equal(t, "public", st.Visibility)
}

func TestSocketEchoInvalidates(t *testing.T) {
	b := &fakeBackend{active: []model.Story{{ID: "s1", CreatedAt: t0}}}
	s, cache, _, sock := newService(t, b)
	_, err := s.Active(context.Background())
	require.NoError(t, err)
	require.False(t, cache.IsStale(ActiveKey))

	sock.handlers[EventCreated](json.RawMessage(`{"storyId":"s9"}`))
	assert.True(t, cache.IsStale(ActiveKey))
}
