package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	k := Key{"chat", "messages", "c1"}
	assert.True(t, k.HasPrefix(Key{"chat"}))
	assert.True(t, k.HasPrefix(Key{"chat", "messages"}))
	assert.False(t, k.HasPrefix(Key{"chat", "conversations"}))
	assert.False(t, Key{"chat"}.HasPrefix(k))
	assert.Equal(t, "chat/messages", k.Label())
}

func TestFetch_CachesUntilInvalidated(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	load := func(context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"a"}, nil
	}
	key := Key{"posts", "feed"}

	v, err := Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, v)
	_, err = Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	c.Invalidate(Key{"posts"})
	assert.True(t, c.IsStale(key))
	_, err = Fetch(context.Background(), c, key, load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, c.IsStale(key))
}

func TestFetch_SharesConcurrentLoads(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Fetch(context.Background(), c, Key{"n"}, load)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSubscribe(t *testing.T) {
	c := New(Options{})
	var got []Event
	unsub := c.Subscribe(Key{"chat"}, func(_ Key, ev Event) { got = append(got, ev) })

	Set(c, Key{"chat", "conversations"}, 1)
	Set(c, Key{"posts"}, 1)
	c.Invalidate(Key{"chat"})
	unsub()
	unsub()
	Set(c, Key{"chat", "conversations"}, 2)

	assert.Equal(t, []Event{Updated, Invalidated}, got)
}

func TestOptimistic_Commit(t *testing.T) {
	c := New(Options{})
	key := Key{"n"}
	Set(c, key, 1)

	res, err := Optimistic(context.Background(), c, Mutation[int, int]{
		Key:   key,
		Apply: func(cur int) int { return cur + 1 },
		Call: func(context.Context) (int, error) {
			v, _ := Get[int](c, key)
			assert.Equal(t, 2, v, "optimistic value visible during call")
			return 10, nil
		},
		Commit: func(cur, res int) int { return res },
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res)
	v, _ := Get[int](c, key)
	assert.Equal(t, 10, v)
}

func TestOptimistic_Rollback(t *testing.T) {
	var rolled []string
	c := New(Options{OnRollback: func(k Key) { rolled = append(rolled, k.String()) }})
	key := Key{"list"}
	Set(c, key, []string{"a", "b"})

	boom := errors.New("boom")
	_, err := Optimistic(context.Background(), c, Mutation[[]string, struct{}]{
		Key: key,
		Apply: func(cur []string) []string {
			return append(append([]string(nil), cur...), "c")
		},
		Call: func(context.Context) (struct{}, error) { return struct{}{}, boom },
	})
	require.ErrorIs(t, err, boom)
	v, _ := Get[[]string](c, key)
	assert.Equal(t, []string{"a", "b"}, v)
	assert.Equal(t, []string{"list"}, rolled)
}

func TestOptimistic_RollbackOfMissingKey(t *testing.T) {
	c := New(Options{})
	key := Key{"fresh"}
	_, err := Optimistic(context.Background(), c, Mutation[int, int]{
		Key:   key,
		Apply: func(int) int { return 5 },
		Call:  func(context.Context) (int, error) { return 0, errors.New("nope") },
	})
	require.Error(t, err)
	_, ok := Get[int](c, key)
	assert.False(t, ok)
}

func TestOptimistic_InvalidatesOnSuccess(t *testing.T) {
	c := New(Options{})
	Set(c, Key{"stories", "active"}, 1)
	_, err := Optimistic(context.Background(), c, Mutation[int, int]{
		Key:        Key{"stories", "active"},
		Call:       func(context.Context) (int, error) { return 0, nil },
		Invalidate: []Key{{"stories"}},
	})
	require.NoError(t, err)
	assert.True(t, c.IsStale(Key{"stories", "active"}))
}

func TestOptimistic_RollbackKeepsConcurrentWrites(t *testing.T) {
	c := New(Options{})
	key := Key{"list"}
	Set(c, key, []string{"a"})

	inCall := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Optimistic(context.Background(), c, Mutation[[]string, struct{}]{
			Key:   key,
			Apply: func(cur []string) []string { return append(append([]string(nil), cur...), "opt") },
			Call: func(context.Context) (struct{}, error) {
				close(inCall)
				<-release
				return struct{}{}, errors.New("boom")
			},
		})
		done <- err
	}()
	<-inCall

	got := Update(c, key, func(cur []string, _ bool) []string { return append(append([]string(nil), cur...), "pushed") })
	assert.Equal(t, []string{"a", "pushed", "opt"}, got, "pending write stays on top")

	close(release)
	require.Error(t, <-done)
	v, _ := Get[[]string](c, key)
	assert.Equal(t, []string{"a", "pushed"}, v)
}

func TestOptimistic_CommitReplaysOverConcurrentWrites(t *testing.T) {
	c := New(Options{})
	key := Key{"n"}
	Set(c, key, 1)

	_, err := Optimistic(context.Background(), c, Mutation[int, int]{
		Key:   key,
		Apply: func(cur int) int { return cur * 10 },
		Call: func(context.Context) (int, error) {
			Update(c, key, func(cur int, _ bool) int { return cur + 1 })
			v, _ := Get[int](c, key)
			assert.Equal(t, 20, v)
			return 3, nil
		},
		Commit: func(cur, res int) int { return cur + res },
	})
	require.NoError(t, err)
	v, _ := Get[int](c, key)
	assert.Equal(t, 23, v)
}

func TestOptimistic_RemovedKeyStaysRemoved(t *testing.T) {
	c := New(Options{})
	key := Key{"chat", "messages", "c1"}
	Set(c, key, 1)

	_, err := Optimistic(context.Background(), c, Mutation[int, int]{
		Key:   key,
		Apply: func(cur int) int { return cur + 1 },
		Call: func(context.Context) (int, error) {
			c.Remove(Key{"chat"})
			return 0, nil
		},
	})
	require.NoError(t, err)
	_, ok := Get[int](c, key)
	assert.False(t, ok)
}

func TestRefetchMerge_SeesWritesMadeDuringLoad(t *testing.T) {
	c := New(Options{})
	key := Key{"list"}
	Set(c, key, []string{"a"})
	c.Invalidate(key)

	v, err := RefetchMerge(context.Background(), c, key,
		func(context.Context) (string, error) {
			Update(c, key, func(cur []string, _ bool) []string { return append(append([]string(nil), cur...), "pushed") })
			return "fresh", nil
		},
		func(cur []string, ok bool, fresh string) []string {
			assert.True(t, ok)
			return append(append([]string(nil), cur...), fresh)
		})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "pushed", "fresh"}, v)
	assert.False(t, c.IsStale(key))
}
