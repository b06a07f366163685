package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// fakeServer accepts sockets, records emitted envelopes and lets tests push events.
type fakeServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	received []Envelope
	accepts  atomic.Int32
	auth     atomic.Value
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.auth.Store(r.Header.Get("Authorization"))
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		f.accepts.Add(1)
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		for {
			var env Envelope
			if err := wsjson.Read(context.Background(), conn, &env); err != nil {
				return
			}
			f.mu.Lock()
			f.received = append(f.received, env)
			f.mu.Unlock()
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) url() string { return "ws" + strings.TrimPrefix(f.srv.URL, "http") }

func (f *fakeServer) last() *websocket.Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

func (f *fakeServer) push(t *testing.T, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(context.Background(), f.last(), Envelope{Event: event, Data: raw}))
}

func (f *fakeServer) events() []Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Envelope(nil), f.received...)
}

func startClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	c := New(f.url(), staticToken("tok"), Options{ReconnectBase: 10 * time.Millisecond, ReconnectMax: 50 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)
	return c
}

func TestClient_ReceiveAndOff(t *testing.T) {
	f := newFakeServer(t)
	c := startClient(t, f)
	assert.Equal(t, "Bearer tok", f.auth.Load())

	got := make(chan string, 4)
	off := c.On("message:new", func(data json.RawMessage) {
		var m struct {
			ID string `json:"_id"`
		}
		_ = json.Unmarshal(data, &m)
		got <- m.ID
	})

	f.push(t, "message:new", map[string]string{"_id": "m1"})
	select {
	case id := <-got:
		assert.Equal(t, "m1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	off()
	f.push(t, "message:new", map[string]string{"_id": "m2"})
	f.push(t, "ping", nil)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got)
}

func TestClient_Emit(t *testing.T) {
	f := newFakeServer(t)
	c := startClient(t, f)

	require.NoError(t, c.Emit(context.Background(), "conversation:join", map[string]string{"conversationId": "c1"}))
	require.Eventually(t, func() bool { return len(f.events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	ev := f.events()[0]
	assert.Equal(t, "conversation:join", ev.Event)
	assert.JSONEq(t, `{"conversationId":"c1"}`, string(ev.Data))
}

func TestClient_EmitWhileDown(t *testing.T) {
	c := New("ws://127.0.0.1:1/socket", nil, Options{})
	require.ErrorIs(t, c.Emit(context.Background(), "typing", nil), ErrNotConnected)
}

func TestClient_ReconnectRunsHooks(t *testing.T) {
	f := newFakeServer(t)
	c := startClient(t, f)

	var hooks atomic.Int32
	c.OnReconnect(func() { hooks.Add(1) })

	require.NoError(t, f.last().Close(websocket.StatusGoingAway, "restart"))
	require.Eventually(t, func() bool { return f.accepts.Load() == 2 && hooks.Load() == 1 }, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, c.Connected, 2*time.Second, 5*time.Millisecond)
}

func TestClient_DispatchLocal(t *testing.T) {
	c := New("ws://unused", nil, Options{})
	var n atomic.Int32
	c.On("typing", func(json.RawMessage) { n.Add(1) })
	c.On("typing", func(json.RawMessage) { n.Add(1) })
	c.Dispatch("typing", nil)
	c.Dispatch("other", nil)
	assert.Equal(t, int32(2), n.Load())
}
