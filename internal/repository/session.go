// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/social-client/internal/model"
)

// SessionRepository persists the login session, keyed by profile name.
type SessionRepository interface {
	// Save stores or replaces the session of profile.
	Save(ctx context.Context, profile string, s model.Session) error
	// Load returns the session of profile or errs.ErrNotFound.
	Load(ctx context.Context, profile string) (model.Session, error)
	// Delete removes the session of profile. Missing sessions are not an error.
	Delete(ctx context.Context, profile string) error
	// Purge removes sessions that expired before now and reports how many.
	Purge(ctx context.Context, now time.Time) (int, error)
}
