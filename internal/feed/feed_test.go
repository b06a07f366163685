package feed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
)

type fakeBackend struct {
	pages     map[int][]model.Post
	pageCalls int
	likeRes   api.LikeResult
	likeErr   error
	followRes api.FollowResult
	followErr error
	deleteErr error
	created   model.Post
	// seen captures the cached state while a mutation is in flight.
	seen func()
}

func (f *fakeBackend) Posts(_ context.Context, page, _ int) ([]model.Post, error) {
	f.pageCalls++
	return f.pages[page], nil
}

func (f *fakeBackend) CreatePost(_ context.Context, p api.NewPost) (model.Post, error) {
	f.created.Content = p.Content
	return f.created, nil
}

func (f *fakeBackend) LikePost(context.Context, string) (api.LikeResult, error) {
	if f.seen != nil {
		f.seen()
	}
	return f.likeRes, f.likeErr
}

func (f *fakeBackend) DeletePost(context.Context, string) error {
	if f.seen != nil {
		f.seen()
	}
	return f.deleteErr
}

func (f *fakeBackend) Follow(context.Context, string) (api.FollowResult, error) {
	if f.seen != nil {
		f.seen()
	}
	return f.followRes, f.followErr
}

func posts(prefix string, n int) []model.Post {
	out := make([]model.Post, n)
	for i := range out {
		out[i] = model.Post{ID: fmt.Sprintf("%s%d", prefix, i), Author: model.User{ID: "a1"}, LikesCount: 5}
	}
	return out
}

func newService(be *fakeBackend) *Service {
	return New(be, querycache.New(querycache.Options{}), nil, 2, nil)
}

func TestLoadPage_Pagination(t *testing.T) {
	be := &fakeBackend{pages: map[int][]model.Post{1: posts("a", 2), 2: posts("b", 1)}}
	s := newService(be)
	ctx := context.Background()

	st, err := s.LoadPage(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, st.Posts, 2)
	assert.True(t, st.HasMore)

	st, err = s.LoadPage(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, st.Posts, 2)
	assert.Equal(t, 1, be.pageCalls, "reloading a page is a no-op")

	st, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Posts, 3)
	assert.False(t, st.HasMore)

	st, err = s.LoadMore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, be.pageCalls, "no page after the last short one")

	_, err = s.LoadPage(ctx, 0)
	require.ErrorIs(t, err, errs.ErrValidation)

	st, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Posts, 2)
	assert.Equal(t, []int{1}, st.Loaded)
}

func TestToggleLike_OptimisticThenCommit(t *testing.T) {
	be := &fakeBackend{pages: map[int][]model.Post{1: posts("a", 2)}, likeRes: api.LikeResult{Liked: true, LikesCount: 9}}
	s := newService(be)
	_, err := s.LoadPage(context.Background(), 1)
	require.NoError(t, err)

	be.seen = func() {
		p := s.State().Posts[0]
		assert.True(t, p.Liked)
		assert.Equal(t, 6, p.LikesCount)
	}
	_, err = s.ToggleLike(context.Background(), "a0")
	require.NoError(t, err)
	p := s.State().Posts[0]
	assert.True(t, p.Liked)
	assert.Equal(t, 9, p.LikesCount)
}

func TestToggleLike_RollbackOnFailure(t *testing.T) {
	be := &fakeBackend{pages: map[int][]model.Post{1: posts("a", 2)}, likeErr: errors.New("offline")}
	s := newService(be)
	_, err := s.LoadPage(context.Background(), 1)
	require.NoError(t, err)

	_, err = s.ToggleLike(context.Background(), "a0")
	require.Error(t, err)
	p := s.State().Posts[0]
	assert.False(t, p.Liked)
	assert.Equal(t, 5, p.LikesCount)
}

func TestFollow(t *testing.T) {
	be := &fakeBackend{pages: map[int][]model.Post{1: posts("a", 2)}, followRes: api.FollowResult{Following: true}}
	s := newService(be)
	_, err := s.LoadPage(context.Background(), 1)
	require.NoError(t, err)

	_, err = s.Follow(context.Background(), "a1")
	require.NoError(t, err)
	for _, p := range s.State().Posts {
		assert.True(t, p.Author.IsFollowing)
	}

	be.followErr = errors.New("boom")
	_, err = s.Follow(context.Background(), "a1")
	require.Error(t, err)
	for _, p := range s.State().Posts {
		assert.True(t, p.Author.IsFollowing, "rolled back to committed state")
	}
}

func TestDeletePost(t *testing.T) {
	be := &fakeBackend{pages: map[int][]model.Post{1: posts("a", 2)}, deleteErr: errors.New("boom")}
	s := newService(be)
	_, err := s.LoadPage(context.Background(), 1)
	require.NoError(t, err)

	be.seen = func() { assert.Len(t, s.State().Posts, 1) }
	require.Error(t, s.DeletePost(context.Background(), "a0"))
	assert.Len(t, s.State().Posts, 2)

	be.deleteErr = nil
	require.NoError(t, s.DeletePost(context.Background(), "a0"))
	assert.Equal(t, "a1", s.State().Posts[0].ID)
}

func TestCreatePost(t *testing.T) {
	be := &fakeBackend{pages: map[int][]model.Post{1: posts("a", 2)}, created: model.Post{ID: "new"}}
	s := newService(be)
	_, err := s.LoadPage(context.Background(), 1)
	require.NoError(t, err)

	_, err = s.CreatePost(context.Background(), api.NewPost{})
	require.ErrorIs(t, err, errs.ErrValidation)

	p, err := s.CreatePost(context.Background(), api.NewPost{Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", p.Content)
	assert.Equal(t, "new", s.State().Posts[0].ID)
}
