package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/social-client/internal/config"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/feed"
	"github.com/and161185/social-client/internal/querycache"
	"github.com/and161185/social-client/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func backend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/auth/google/login", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"token":   "opaque-token",
			"user":    map[string]any{"_id": "u1", "username": "ann", "hashId": "h1"},
			"profile": map[string]any{"hashId": "h1", "displayName": "Ann"},
		})
	})
	r.Get("/api/posts", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "Bearer opaque-token", req.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{
			{"_id": "p1", "content": "hello", "likesCount": 1},
		}})
	})
	r.Post("/api/posts/{id}/like", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"message": "db down"})
	})
	r.Get("/api/notifications", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "jwt expired"})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.API.SocketURL = config.SocketURLFor(srv.URL)
	cfg.API.MaxRetries = 0
	cfg.API.RatePerSecond = 1000
	cfg.API.Burst = 100
	cfg.Session.Dir = dir
	cfg.Session.Profile = config.DefaultProfileName
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestLoginPersistsAcrossRestarts(t *testing.T) {
	srv := backend(t)
	cfg := testConfig(t, srv, t.TempDir())
	ctx := context.Background()

	a := newApp(t, cfg)
	assert.Equal(t, session.RouteAuth, a.Start(ctx))
	_, err := a.RequireSession(ctx)
	require.ErrorIs(t, err, errs.ErrNoSession)

	sess, err := a.Auth.LoginWithGoogle(ctx, "google-credential")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.User.ID)
	assert.True(t, sess.ExpiresAt.After(time.Now().Add(29*24*time.Hour)))

	b := newApp(t, cfg)
	assert.Equal(t, session.RouteFeed, b.Start(ctx))
	cur, err := b.RequireSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ann", cur.Profile.DisplayName)
}

func TestRollbackIsCountedAndUnauthorizedLogsOut(t *testing.T) {
	srv := backend(t)
	cfg := testConfig(t, srv, t.TempDir())
	ctx := context.Background()

	a := newApp(t, cfg)
	_, err := a.Auth.LoginWithGoogle(ctx, "google-credential")
	require.NoError(t, err)

	st, err := a.Feed.LoadPage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, st.Posts, 1)

	_, err = a.Feed.ToggleLike(ctx, "p1")
	require.Error(t, err)
	cached, _ := querycache.Get[feed.State](a.Cache, feed.Key)
	assert.False(t, cached.Posts[0].Liked)
	assert.Equal(t, 1, cached.Posts[0].LikesCount)
	n, err := testutil.GatherAndCount(a.Metrics.Registry, "sc_optimistic_rollbacks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = a.Notifications.List(ctx, 1)
	require.ErrorIs(t, err, errs.ErrUnauthorized)
	_, ok := a.Store.Current()
	assert.False(t, ok)
	_, ok = querycache.Get[feed.State](a.Cache, feed.Key)
	assert.False(t, ok, "cache cleared on logout")

	b := newApp(t, cfg)
	assert.Equal(t, session.RouteAuth, b.Start(ctx))
}
