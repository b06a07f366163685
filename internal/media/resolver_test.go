package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func host(t *testing.T, has map[string]bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Head("/*", func(w http.ResponseWriter, req *http.Request) {
		hits.Add(1)
		if has[req.URL.Path] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_FallsBackAcrossHosts(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	a := host(t, map[string]bool{}, &hitsA)
	b := host(t, map[string]bool{"/uploads/p.jpg": true}, &hitsB)

	r := NewResolver([]string{a.URL + "/", b.URL}, nil, nil)
	u, ok := r.Resolve(context.Background(), "/uploads/p.jpg")
	require.True(t, ok)
	assert.Equal(t, b.URL+"/uploads/p.jpg", u)

	// cached
	u, ok = r.Resolve(context.Background(), "/uploads/p.jpg")
	require.True(t, ok)
	assert.Equal(t, b.URL+"/uploads/p.jpg", u)
	assert.Equal(t, int32(1), hitsA.Load())
	assert.Equal(t, int32(1), hitsB.Load())
}

func TestResolve_AbsoluteRefTriedFirst(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	a := host(t, map[string]bool{}, &hitsA)
	b := host(t, map[string]bool{"/v.mp4": true}, &hitsB)

	r := NewResolver([]string{b.URL}, nil, nil)
	assert.Equal(t, []string{a.URL + "/v.mp4", b.URL + "/v.mp4"}, r.Candidates(a.URL+"/v.mp4"))

	u, ok := r.Resolve(context.Background(), a.URL+"/v.mp4")
	require.True(t, ok)
	assert.Equal(t, b.URL+"/v.mp4", u)
}

func TestResolve_PlaceholderWhenExhausted(t *testing.T) {
	var hits atomic.Int32
	a := host(t, map[string]bool{}, &hits)
	r := NewResolver([]string{a.URL}, nil, nil)

	u, ok := r.Resolve(context.Background(), "missing.png")
	assert.False(t, ok)
	assert.Equal(t, Placeholder, u)

	_, _ = r.Resolve(context.Background(), "missing.png")
	assert.Equal(t, int32(1), hits.Load())

	r.Forget("missing.png")
	_, _ = r.Resolve(context.Background(), "missing.png")
	assert.Equal(t, int32(2), hits.Load())

	u, ok = r.Resolve(context.Background(), "")
	assert.False(t, ok)
	assert.Equal(t, Placeholder, u)
}
