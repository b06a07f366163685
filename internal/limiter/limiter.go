// Package limiter paces queued API requests and pauses the queue after rate-limit responses.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// Limiter controls when the next queued request may go out.
type Limiter interface {
	// Allow reports whether a request may be sent now and, if not, the remaining cooldown.
	Allow() (bool, time.Duration)
	// Wait blocks until a request may be sent or ctx is done.
	Wait(ctx context.Context) error
	// Success clears any cooldown after an accepted request.
	Success()
	// Failure records a rate-limited response and pauses the queue for retryAfter.
	Failure(retryAfter time.Duration) time.Duration
}

// Queue is a token-bucket limiter with a shared cooldown.
type Queue struct {
	mu           sync.Mutex
	bucket       *rate.Limiter
	clock        clock.Clock
	blockedUntil time.Time
	fallback     time.Duration
}

// New returns a queue admitting rps requests per second with the given burst.
// A 429 without Retry-After pauses the queue for fallback.
func New(rps float64, burst int, fallback time.Duration) *Queue {
	return NewWithClock(rps, burst, fallback, clock.New())
}

// NewWithClock is New with an injectable clock for the cooldown.
func NewWithClock(rps float64, burst int, fallback time.Duration, clk clock.Clock) *Queue {
	if rps <= 0 {
		rps = 10
	}
	if burst <= 0 {
		burst = 1
	}
	return &Queue{
		bucket:   rate.NewLimiter(rate.Limit(rps), burst),
		clock:    clk,
		fallback: fallback,
	}
}

// Allow reports whether the queue is open now.
func (q *Queue) Allow() (bool, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if left := q.blockedUntil.Sub(q.clock.Now()); left > 0 {
		return false, left
	}
	return true, 0
}

// Wait sits out the cooldown, then takes a token.
func (q *Queue) Wait(ctx context.Context) error {
	for {
		ok, left := q.Allow()
		if ok {
			break
		}
		t := q.clock.Timer(left)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return q.bucket.Wait(ctx)
}

// Success reopens the queue.
func (q *Queue) Success() {
	q.mu.Lock()
	q.blockedUntil = time.Time{}
	q.mu.Unlock()
}

// Failure pauses the queue for retryAfter (or the fallback) and returns the pause applied.
// An existing longer pause is kept.
func (q *Queue) Failure(retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		retryAfter = q.fallback
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	until := q.clock.Now().Add(retryAfter)
	if until.After(q.blockedUntil) {
		q.blockedUntil = until
	}
	return q.blockedUntil.Sub(q.clock.Now())
}

var _ Limiter = (*Queue)(nil)
