// Package app wires configuration, persistence, transport and services into
// one client instance.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/auth"
	"github.com/and161185/social-client/internal/chat"
	"github.com/and161185/social-client/internal/config"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/feed"
	"github.com/and161185/social-client/internal/limiter"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/media"
	"github.com/and161185/social-client/internal/metrics"
	"github.com/and161185/social-client/internal/migrate"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/notifications"
	"github.com/and161185/social-client/internal/profile"
	"github.com/and161185/social-client/internal/querycache"
	"github.com/and161185/social-client/internal/realtime"
	"github.com/and161185/social-client/internal/repository"
	"github.com/and161185/social-client/internal/repository/file"
	"github.com/and161185/social-client/internal/repository/postgres"
	"github.com/and161185/social-client/internal/search"
	"github.com/and161185/social-client/internal/session"
	"github.com/and161185/social-client/internal/stories"
)

// App is one logged-in (or logging-in) client.
type App struct {
	Config  *config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Clock   clock.Clock

	Repo   repository.SessionRepository
	Store  *session.Store
	Cache  *querycache.Cache
	API    *api.Client
	Socket *realtime.Client
	Media  *media.Resolver

	Auth          *auth.Service
	Feed          *feed.Service
	Chat          *chat.Service
	Stories       *stories.Service
	Search        *search.Service
	Notifications *notifications.Service
	Profile       *profile.Service

	onTyping func(convID, userID string, typing bool)
	closers  []func()
}

// Option adjusts construction.
type Option func(*App)

// WithClock replaces the wall clock, e.g. with a mock in tests.
func WithClock(clk clock.Clock) Option { return func(a *App) { a.Clock = clk } }

// WithRepository replaces the configured session repository.
func WithRepository(r repository.SessionRepository) Option {
	return func(a *App) { a.Repo = r }
}

// WithTypingObserver receives peer typing flag changes.
func WithTypingObserver(fn func(convID, userID string, typing bool)) Option {
	return func(a *App) { a.onTyping = fn }
}

// New builds the client from cfg. Call Close when done.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Log: logging.OrNop(log), Metrics: metrics.New(), Clock: clock.New()}
	for _, o := range opts {
		o(a)
	}
	if a.Repo == nil {
		repo, closeRepo, err := openRepository(ctx, cfg.Session, a.Log)
		if err != nil {
			return nil, err
		}
		a.Repo = repo
		if closeRepo != nil {
			a.closers = append(a.closers, closeRepo)
		}
	}
	if n, err := a.Repo.Purge(ctx, a.Clock.Now()); err != nil {
		a.Log.Warn("purge expired sessions", zap.Error(err))
	} else if n > 0 {
		a.Log.Info("purged expired sessions", zap.Int("count", n))
	}

	a.Store = session.NewStore(a.Repo, cfg.Session.Profile, a.Clock, a.Log.Named("session"))
	a.Cache = querycache.New(querycache.Options{
		OnRollback: func(k querycache.Key) {
			a.Metrics.Rollback(k.Label())
			a.Log.Debug("optimistic update rolled back", zap.String("key", k.String()))
		},
	})
	a.API = api.New(api.Options{
		BaseURL:        cfg.API.BaseURL,
		Timeout:        cfg.API.Timeout,
		MaxRetries:     cfg.API.MaxRetries,
		Limiter:        limiter.NewWithClock(cfg.API.RatePerSecond, cfg.API.Burst, time.Second, a.Clock),
		Logger:         a.Log.Named("api"),
		Metrics:        a.Metrics,
		OnUnauthorized: a.Store.Invalidate,
	}, a.Store)
	a.Socket = realtime.New(cfg.API.SocketURL, a.Store, realtime.Options{
		Logger:  a.Log.Named("socket"),
		Metrics: a.Metrics,
	})
	a.Media = media.NewResolver(cfg.Media.BaseURLs, nil, a.Log.Named("media"))

	a.Auth = auth.New(a.API, a.Store, cfg.Session.Retention, a.Clock, a.Log.Named("auth"))
	a.Feed = feed.New(a.API, a.Cache, a.Media, cfg.Feed.PageLimit, a.Log.Named("feed"))
	a.Chat = chat.New(a.API, a.Socket, a.Cache, chat.Options{
		SlowThreshold: cfg.Chat.SlowThreshold,
		TypingTTL:     cfg.Chat.TypingTTL,
		ReadDebounce:  cfg.Chat.ReadDebounce,
		PageLimit:     cfg.Chat.PageLimit,
		Clock:         a.Clock,
		Logger:        a.Log.Named("chat"),
		Self:          a.self,
		OnTyping:      a.onTyping,
	})
	a.Stories = stories.New(a.API, a.Socket, a.Cache, a.Clock, a.Log.Named("stories"))
	a.Search = search.New(a.API, a.Cache, a.Clock, cfg.Search.Debounce, a.Log.Named("search"))
	a.Notifications = notifications.New(a.API, a.Socket, a.Cache, cfg.Notifications.PageLimit, a.Log.Named("notifications"))
	a.Profile = profile.New(a.API, a.Store, a.Cache, a.Clock, a.Log.Named("profile"))

	unsub := a.Store.Subscribe(func(st session.State) {
		if !st.LoggedIn {
			a.Chat.Reset()
			a.Cache.Remove(querycache.Key{})
		}
	})
	a.closers = append(a.closers, unsub, a.Chat.Close, a.Stories.Close, a.Search.Close, a.Notifications.Close)
	return a, nil
}

func (a *App) self() model.User {
	s, _ := a.Store.Current()
	return s.User
}

// openRepository picks PostgreSQL when a database URL is configured and the
// session file otherwise.
func openRepository(ctx context.Context, cfg config.Session, log *zap.Logger) (repository.SessionRepository, func(), error) {
	if cfg.DatabaseURL == "" {
		return file.NewSessionRepo(cfg.Dir, cfg.Passphrase), nil, nil
	}
	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		return nil, nil, fmt.Errorf("migrate session database: %w", err)
	}
	db, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open session database: %w", err)
	}
	log.Info("sessions stored in postgres")
	return postgres.NewSessionRepo(db), db.Close, nil
}

// Start hydrates the persisted session and returns the initial route.
func (a *App) Start(ctx context.Context) session.Route {
	return session.Gate(ctx, a.Store)
}

// RequireSession hydrates the session and fails when the user must log in.
func (a *App) RequireSession(ctx context.Context) (model.Session, error) {
	if a.Start(ctx) != session.RouteFeed {
		return model.Session{}, fmt.Errorf("not logged in: run `sc login`: %w", errs.ErrNoSession)
	}
	s, _ := a.Store.Current()
	return s, nil
}

// RunSocket keeps the socket connected until ctx ends.
func (a *App) RunSocket(ctx context.Context) error {
	return a.Socket.Run(ctx)
}

// Close releases services and the session database.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
