package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/model"
)

type memRepo struct {
	mu      sync.Mutex
	data    map[string]model.Session
	loadErr error
	deletes int
}

func newMemRepo() *memRepo { return &memRepo{data: map[string]model.Session{}} }

func (m *memRepo) Save(_ context.Context, p string, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[p] = s
	return nil
}

func (m *memRepo) Load(_ context.Context, p string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return model.Session{}, m.loadErr
	}
	s, ok := m.data[p]
	if !ok {
		return model.Session{}, errs.ErrNotFound
	}
	return s, nil
}

func (m *memRepo) Delete(_ context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, p)
	return nil
}

func (m *memRepo) Purge(context.Context, time.Time) (int, error) { return 0, nil }

func TestGate(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	t.Run("no session", func(t *testing.T) {
		s := NewStore(newMemRepo(), "default", clk, nil)
		assert.Equal(t, RouteAuth, Gate(ctx, s))
	})

	t.Run("valid session", func(t *testing.T) {
		repo := newMemRepo()
		repo.data["default"] = model.Session{Token: "tok", User: model.User{ID: "u1"}, ExpiresAt: clk.Now().Add(time.Hour)}
		s := NewStore(repo, "default", clk, nil)
		assert.Equal(t, RouteFeed, Gate(ctx, s))
		assert.Equal(t, "tok", s.Token())
		assert.Equal(t, "u1", s.UserID())
	})

	t.Run("expired session is removed", func(t *testing.T) {
		repo := newMemRepo()
		repo.data["default"] = model.Session{Token: "tok", ExpiresAt: clk.Now().Add(-time.Second)}
		s := NewStore(repo, "default", clk, nil)
		assert.Equal(t, RouteAuth, Gate(ctx, s))
		assert.Empty(t, repo.data)
		assert.Empty(t, s.Token())
	})

	t.Run("unreadable session", func(t *testing.T) {
		repo := newMemRepo()
		repo.loadErr = errors.New("disk on fire")
		s := NewStore(repo, "default", clk, nil)
		assert.Equal(t, RouteAuth, Gate(ctx, s))
	})
}

func TestStore_LoginLogoutSubscribe(t *testing.T) {
	clk := clock.NewMock()
	repo := newMemRepo()
	s := NewStore(repo, "work", clk, nil)
	ctx := context.Background()

	var states []State
	unsub := s.Subscribe(func(st State) { states = append(states, st) })

	require.ErrorIs(t, s.Login(ctx, model.Session{}), errs.ErrValidation)

	sess := model.Session{Token: "tok", User: model.User{ID: "u1"}, ExpiresAt: clk.Now().Add(time.Hour)}
	require.NoError(t, s.Login(ctx, sess))
	assert.Equal(t, sess, repo.data["work"])

	require.NoError(t, s.UpdateProfile(ctx, model.Profile{Avatar: "/new.jpg", Bio: "hi"}))
	cur, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "/new.jpg", cur.Profile.Avatar)
	assert.Equal(t, "/new.jpg", cur.User.Avatar)
	assert.Equal(t, "hi", repo.data["work"].Profile.Bio)

	require.NoError(t, s.Logout(ctx))
	_, ok = s.Current()
	assert.False(t, ok)
	assert.Empty(t, repo.data)

	unsub()
	require.NoError(t, s.Login(ctx, sess))

	require.Len(t, states, 3)
	assert.True(t, states[0].LoggedIn)
	assert.True(t, states[1].LoggedIn)
	assert.False(t, states[2].LoggedIn)
}

func TestStore_ExpiresInMemory(t *testing.T) {
	clk := clock.NewMock()
	s := NewStore(newMemRepo(), "default", clk, nil)
	require.NoError(t, s.Login(context.Background(), model.Session{Token: "tok", ExpiresAt: clk.Now().Add(time.Minute)}))
	assert.Equal(t, "tok", s.Token())
	clk.Add(time.Minute)
	assert.Empty(t, s.Token())
}

func TestStore_Invalidate(t *testing.T) {
	clk := clock.NewMock()
	repo := newMemRepo()
	s := NewStore(repo, "default", clk, nil)
	require.NoError(t, s.Login(context.Background(), model.Session{Token: "tok", ExpiresAt: clk.Now().Add(time.Hour)}))

	s.Invalidate()
	s.Invalidate()
	assert.Empty(t, s.Token())
	assert.Empty(t, repo.data)
	assert.Equal(t, 1, repo.deletes)
	require.ErrorIs(t, s.UpdateProfile(context.Background(), model.Profile{}), errs.ErrNoSession)
}
