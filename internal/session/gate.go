package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/errs"
)

// Route is where the client goes after start-up.
type Route int

const (
	// RouteAuth shows the authentication flow.
	RouteAuth Route = iota
	// RouteFeed shows the main feed.
	RouteFeed
)

func (r Route) String() string {
	if r == RouteFeed {
		return "feed"
	}
	return "auth"
}

// Gate hydrates the store from persisted state without a network round trip.
// The session is trusted until an authenticated call is rejected.
func Gate(ctx context.Context, s *Store) Route {
	err := s.Hydrate(ctx)
	switch {
	case err == nil:
		return RouteFeed
	case errors.Is(err, errs.ErrNoSession), errors.Is(err, errs.ErrSessionExpired):
		return RouteAuth
	default:
		s.log.Warn("session unreadable, login required", zap.Error(err))
		return RouteAuth
	}
}
