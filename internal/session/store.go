// Package session owns the process-wide login state and the start-up gate
// that decides between the auth flow and the feed.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/repository"
)

// State is a snapshot handed to subscribers.
type State struct {
	Session  model.Session
	LoggedIn bool
}

// Store is the single source of truth for the session. All mutations go
// through its actions; readers get copies.
type Store struct {
	repo    repository.SessionRepository
	profile string
	clock   clock.Clock
	log     *zap.Logger

	mu   sync.RWMutex
	cur  *model.Session
	subs map[int]func(State)
	next int
}

// NewStore returns an empty store persisting through repo under profile.
func NewStore(repo repository.SessionRepository, profile string, clk clock.Clock, log *zap.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		repo:    repo,
		profile: profile,
		clock:   clk,
		log:     logging.OrNop(log),
		subs:    make(map[int]func(State)),
	}
}

// Hydrate loads the persisted session into memory. A missing session yields
// errs.ErrNoSession; an expired one is deleted and yields errs.ErrSessionExpired.
func (s *Store) Hydrate(ctx context.Context) error {
	sess, err := s.repo.Load(ctx, s.profile)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrNoSession
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess.Expired(s.clock.Now()) {
		if err := s.repo.Delete(ctx, s.profile); err != nil {
			s.log.Warn("delete expired session", zap.Error(err))
		}
		return errs.ErrSessionExpired
	}
	s.set(&sess)
	return nil
}

// Login stores a fresh session.
func (s *Store) Login(ctx context.Context, sess model.Session) error {
	if sess.Token == "" {
		return fmt.Errorf("validation: empty token: %w", errs.ErrValidation)
	}
	if err := s.repo.Save(ctx, s.profile, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.set(&sess)
	s.log.Info("logged in", zap.String("user_id", sess.User.ID))
	return nil
}

// Logout clears memory and persisted state.
func (s *Store) Logout(ctx context.Context) error {
	s.set(nil)
	if err := s.repo.Delete(ctx, s.profile); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UpdateProfile replaces the cached profile and persists it.
func (s *Store) UpdateProfile(ctx context.Context, p model.Profile) error {
	s.mu.RLock()
	if s.cur == nil {
		s.mu.RUnlock()
		return errs.ErrNoSession
	}
	next := *s.cur
	s.mu.RUnlock()

	next.Profile = p
	if p.Avatar != "" {
		next.User.Avatar = p.Avatar
	}
	if p.DisplayName != "" {
		next.User.DisplayName = p.DisplayName
	}
	if err := s.repo.Save(ctx, s.profile, next); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	s.set(&next)
	return nil
}

// Invalidate drops the session after the backend rejected it.
func (s *Store) Invalidate() {
	s.mu.RLock()
	had := s.cur != nil
	s.mu.RUnlock()
	if !had {
		return
	}
	s.set(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.repo.Delete(ctx, s.profile); err != nil {
		s.log.Warn("delete rejected session", zap.Error(err))
	}
	s.log.Warn("session invalidated by backend")
}

// Current returns the session if one is loaded and not expired.
func (s *Store) Current() (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil || s.cur.Expired(s.clock.Now()) {
		return model.Session{}, false
	}
	return *s.cur, true
}

// Token returns the bearer token, or "" when logged out.
func (s *Store) Token() string {
	sess, ok := s.Current()
	if !ok {
		return ""
	}
	return sess.Token
}

// UserID returns the logged-in user's id, or "".
func (s *Store) UserID() string {
	sess, ok := s.Current()
	if !ok {
		return ""
	}
	return sess.User.ID
}

// Subscribe registers fn for state changes. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) set(sess *model.Session) {
	s.mu.Lock()
	s.cur = sess
	st := State{}
	if sess != nil {
		st = State{Session: *sess, LoggedIn: true}
	}
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}
