// Package media resolves media paths against a prioritized list of hosts,
// falling back to the next host when one fails.
package media

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/logging"
)

// Placeholder is returned once every candidate failed.
const Placeholder = "placeholder://media-unavailable"

// Resolver probes candidate URLs with HEAD and remembers the first that works.
type Resolver struct {
	bases []string
	http  *http.Client
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver returns a resolver trying bases in order. hc may be nil.
func NewResolver(bases []string, hc *http.Client, log *zap.Logger) *Resolver {
	if hc == nil {
		hc = &http.Client{Timeout: 5 * time.Second}
	}
	clean := make([]string, 0, len(bases))
	for _, b := range bases {
		if b = strings.TrimRight(strings.TrimSpace(b), "/"); b != "" {
			clean = append(clean, b)
		}
	}
	return &Resolver{bases: clean, http: hc, log: logging.OrNop(log), cache: make(map[string]string)}
}

// Candidates lists the URLs tried for ref, in order. An absolute ref is tried
// as is first, then its path on every base.
func (r *Resolver) Candidates(ref string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(u string) {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	p := ref
	if u, err := url.Parse(ref); err == nil && u.IsAbs() {
		add(ref)
		p = u.RequestURI()
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, b := range r.bases {
		add(b + p)
	}
	return out
}

// Resolve returns the first reachable candidate for ref and true, or
// Placeholder and false when all candidates are exhausted. Results are cached.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, bool) {
	if ref == "" {
		return Placeholder, false
	}
	r.mu.Lock()
	hit, ok := r.cache[ref]
	r.mu.Unlock()
	if ok {
		return hit, hit != Placeholder
	}

	res := Placeholder
	for _, c := range r.Candidates(ref) {
		if err := ctx.Err(); err != nil {
			// not cached: a cancelled probe says nothing about the hosts
			return Placeholder, false
		}
		if r.probe(ctx, c) {
			res = c
			break
		}
		r.log.Debug("media candidate failed", zap.String("url", c))
	}
	r.mu.Lock()
	r.cache[ref] = res
	r.mu.Unlock()
	return res, res != Placeholder
}

// Forget drops the cached result for ref, e.g. after the resolved URL failed to load.
func (r *Resolver) Forget(ref string) {
	r.mu.Lock()
	delete(r.cache, ref)
	r.mu.Unlock()
}

func (r *Resolver) probe(ctx context.Context, u string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
