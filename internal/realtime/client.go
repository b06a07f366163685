// Package realtime is the single long-lived socket connection: JSON event
// envelopes, handler registration and reconnect with backoff.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/metrics"
)

// ErrNotConnected is returned by Emit while the socket is down.
var ErrNotConnected = errors.New("socket not connected")

// Envelope is the wire format of every socket frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Handler receives the raw data of one event.
type Handler func(data json.RawMessage)

// TokenSource yields the bearer token for the handshake.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	// ReconnectBase is the first reconnect delay; it grows exponentially up to ReconnectMax.
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	ReadLimit     int64
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Client is safe for concurrent use.
type Client struct {
	url    string
	tokens TokenSource
	opts   Options
	log    *zap.Logger

	mu         sync.Mutex
	handlers   map[string]map[int]Handler
	reconnects map[int]func()
	nextID     int
	conn       *websocket.Conn
}

// New returns a client for the ws(s) url. Call Run to connect.
func New(url string, tokens TokenSource, opts Options) *Client {
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = 500 * time.Millisecond
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = 30 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 1 << 20
	}
	return &Client{
		url:        url,
		tokens:     tokens,
		opts:       opts,
		log:        logging.OrNop(opts.Logger),
		handlers:   make(map[string]map[int]Handler),
		reconnects: make(map[int]func()),
	}
}

// On registers h for event. The returned func removes it.
func (c *Client) On(event string, h Handler) (off func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]Handler)
	}
	c.handlers[event][id] = h
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.handlers[event], id)
		c.mu.Unlock()
	}
}

// OnReconnect registers fn to run after every reconnect (not the first connect).
func (c *Client) OnReconnect(fn func()) (off func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.reconnects[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.reconnects, id)
		c.mu.Unlock()
	}
}

// Connected reports whether the socket is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit sends one event.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := wsjson.Write(ctx, conn, Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Dispatch delivers an event to the registered handlers.
func (c *Client) Dispatch(event string, data json.RawMessage) {
	c.opts.Metrics.Event(event)
	c.mu.Lock()
	hs := make([]Handler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		hs = append(hs, h)
	}
	c.mu.Unlock()
	for _, h := range hs {
		h(data)
	}
}

// Run keeps the socket connected until ctx is done, reconnecting with
// exponential backoff. It returns ctx.Err().
func (c *Client) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.ReconnectBase
	b.MaxInterval = c.opts.ReconnectMax
	b.MaxElapsedTime = 0
	b.Reset()

	first := true
	for {
		connected, err := c.session(ctx, first)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			first = false
			b.Reset()
		}
		wait := b.NextBackOff()
		c.log.Warn("socket down, reconnecting", zap.Error(err), zap.Duration("in", wait))
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// session dials once and reads until the connection drops.
func (c *Client) session(ctx context.Context, first bool) (bool, error) {
	hdr := http.Header{}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			hdr.Set("Authorization", "Bearer "+tok)
		}
	}
	conn, resp, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: hdr})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, fmt.Errorf("dial: unauthorized: %w", err)
		}
		return false, fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(c.opts.ReadLimit)

	c.mu.Lock()
	c.conn = conn
	var hooks []func()
	if !first {
		for _, fn := range c.reconnects {
			hooks = append(hooks, fn)
		}
	}
	c.mu.Unlock()

	if first {
		c.log.Info("socket connected")
	} else {
		c.opts.Metrics.Reconnect()
		c.log.Info("socket reconnected")
		for _, fn := range hooks {
			fn()
		}
	}

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.log.Debug("dropping malformed frame", zap.Int("bytes", len(raw)))
			continue
		}
		c.Dispatch(env.Event, env.Data)
	}
}
