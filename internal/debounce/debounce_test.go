package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, s)
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestDebouncer_OnlyLastOfBurst(t *testing.T) {
	clk := clock.NewMock()
	var rec recorder
	d := New(clk, 500*time.Millisecond, rec.add)

	d.Call("a")
	clk.Add(200 * time.Millisecond)
	d.Call("ab")
	clk.Add(400 * time.Millisecond)
	assert.Empty(t, rec.calls())
	assert.True(t, d.Pending())

	clk.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"ab"}, rec.calls())
	assert.False(t, d.Pending())
}

func TestDebouncer_FlushAndCancel(t *testing.T) {
	clk := clock.NewMock()
	var rec recorder
	d := New(clk, time.Second, rec.add)

	d.Call("x")
	d.Flush()
	assert.Equal(t, []string{"x"}, rec.calls())

	d.Call("y")
	d.Cancel()
	clk.Add(2 * time.Second)
	d.Flush()
	assert.Equal(t, []string{"x"}, rec.calls())
}
