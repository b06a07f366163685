package chat

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ReadBatcher collects read message ids per conversation and flushes all of
// them in one call once marking has been quiet for delay.
type ReadBatcher struct {
	clock clock.Clock
	delay time.Duration
	flush func(convID string, ids []string)

	mu      sync.Mutex
	pending map[string][]string
	seen    map[string]map[string]bool
	timers  map[string]*clock.Timer
}

// NewReadBatcher returns a batcher calling flush with every accumulated id.
func NewReadBatcher(clk clock.Clock, delay time.Duration, flush func(convID string, ids []string)) *ReadBatcher {
	return &ReadBatcher{
		clock:   clk,
		delay:   delay,
		flush:   flush,
		pending: make(map[string][]string),
		seen:    make(map[string]map[string]bool),
		timers:  make(map[string]*clock.Timer),
	}
}

// Add queues ids of convID and restarts its quiet timer.
func (b *ReadBatcher) Add(convID string, ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[convID] == nil {
		b.seen[convID] = make(map[string]bool)
	}
	added := false
	for _, id := range ids {
		if id == "" || b.seen[convID][id] {
			continue
		}
		b.seen[convID][id] = true
		b.pending[convID] = append(b.pending[convID], id)
		added = true
	}
	if !added {
		return
	}
	if tm, ok := b.timers[convID]; ok {
		tm.Stop()
	}
	b.timers[convID] = b.clock.AfterFunc(b.delay, func() { b.Flush(convID) })
}

// Pending returns the queued ids of convID.
func (b *ReadBatcher) Pending(convID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.pending[convID]...)
}

// Flush sends the queued ids of convID now.
func (b *ReadBatcher) Flush(convID string) {
	b.mu.Lock()
	ids := b.pending[convID]
	delete(b.pending, convID)
	delete(b.seen, convID)
	if tm, ok := b.timers[convID]; ok {
		tm.Stop()
		delete(b.timers, convID)
	}
	b.mu.Unlock()
	if len(ids) > 0 {
		b.flush(convID, ids)
	}
}

// FlushAll sends every queued id now.
func (b *ReadBatcher) FlushAll() {
	b.mu.Lock()
	convs := make([]string, 0, len(b.pending))
	for c := range b.pending {
		convs = append(convs, c)
	}
	b.mu.Unlock()
	for _, c := range convs {
		b.Flush(c)
	}
}
