package chat

import (
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type typingKey struct{ conv, user string }

// TypingTracker keeps per (conversation, user) typing flags that expire
// after ttl unless refreshed.
type TypingTracker struct {
	clock    clock.Clock
	ttl      time.Duration
	onChange func(convID, userID string, typing bool)

	mu     sync.Mutex
	timers map[typingKey]*clock.Timer
}

// NewTypingTracker returns a tracker. onChange may be nil.
func NewTypingTracker(clk clock.Clock, ttl time.Duration, onChange func(convID, userID string, typing bool)) *TypingTracker {
	return &TypingTracker{clock: clk, ttl: ttl, onChange: onChange, timers: make(map[typingKey]*clock.Timer)}
}

// Set records a typing update. true (re)starts the expiry timer, false clears at once.
func (t *TypingTracker) Set(convID, userID string, typing bool) {
	k := typingKey{convID, userID}
	t.mu.Lock()
	old, was := t.timers[k]
	if was {
		old.Stop()
		delete(t.timers, k)
	}
	if typing {
		var tm *clock.Timer
		tm = t.clock.AfterFunc(t.ttl, func() { t.expire(k, tm) })
		t.timers[k] = tm
	}
	t.mu.Unlock()

	if was != typing && t.onChange != nil {
		t.onChange(convID, userID, typing)
	}
}

func (t *TypingTracker) expire(k typingKey, tm *clock.Timer) {
	t.mu.Lock()
	cur, ok := t.timers[k]
	if !ok || cur != tm {
		// refreshed or cleared meanwhile
		t.mu.Unlock()
		return
	}
	delete(t.timers, k)
	t.mu.Unlock()
	if t.onChange != nil {
		t.onChange(k.conv, k.user, false)
	}
}

// IsTyping reports whether userID is typing in convID.
func (t *TypingTracker) IsTyping(convID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[typingKey{convID, userID}]
	return ok
}

// Typing lists the users typing in convID, sorted.
func (t *TypingTracker) Typing(convID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for k := range t.timers {
		if k.conv == convID {
			out = append(out, k.user)
		}
	}
	slices.Sort(out)
	return out
}

// ClearConversation drops all flags of convID without notifying.
func (t *TypingTracker) ClearConversation(convID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, tm := range t.timers {
		if k.conv == convID {
			tm.Stop()
			delete(t.timers, k)
		}
	}
}

// Stop cancels every timer.
func (t *TypingTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, tm := range t.timers {
		tm.Stop()
		delete(t.timers, k)
	}
}
