// Package auth turns an identity-provider credential into a persisted session.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/session"
)

// Backend is the part of the API client used for login.
type Backend interface {
	GoogleLogin(ctx context.Context, credential string) (api.LoginResult, error)
}

// Service logs users in and out.
type Service struct {
	backend   Backend
	store     *session.Store
	retention time.Duration
	clock     clock.Clock
	log       *zap.Logger
}

// New constructs the auth service. retention caps how long a session is kept.
func New(backend Backend, store *session.Store, retention time.Duration, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{backend: backend, store: store, retention: retention, clock: clk, log: logging.OrNop(log)}
}

// LoginWithGoogle sends the credential, then persists token, user and profile.
func (s *Service) LoginWithGoogle(ctx context.Context, credential string) (model.Session, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return model.Session{}, fmt.Errorf("validation: empty credential: %w", errs.ErrValidation)
	}
	res, err := s.backend.GoogleLogin(ctx, credential)
	if err != nil {
		return model.Session{}, fmt.Errorf("login: %w", err)
	}
	if res.Token == "" {
		return model.Session{}, fmt.Errorf("login: backend returned no token: %w", errs.ErrValidation)
	}
	sess := model.Session{
		Token:     res.Token,
		User:      res.User,
		Profile:   res.Profile,
		ExpiresAt: Expiry(res.Token, s.clock.Now(), s.retention),
	}
	if err := s.store.Login(ctx, sess); err != nil {
		return model.Session{}, err
	}
	return sess, nil
}

// Logout clears the session. No server call is made.
func (s *Service) Logout(ctx context.Context) error {
	return s.store.Logout(ctx)
}

// Expiry reads the exp claim without verifying the signature and caps it at
// now+retention. Tokens without exp get now+retention.
func Expiry(token string, now time.Time, retention time.Duration) time.Time {
	limit := now.Add(retention)
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return limit
	}
	if exp := claims.ExpiresAt.Time; exp.Before(limit) {
		return exp.In(now.Location())
	}
	return limit
}
