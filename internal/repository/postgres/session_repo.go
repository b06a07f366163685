package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/model"
)

// ErrNotMigrated indicates the sessions table is missing.
var ErrNotMigrated = errors.New("sessions table missing (run migrations)")

// SessionRepo implements repository.SessionRepository using PostgreSQL.
type SessionRepo struct{ db *DB }

// NewSessionRepo constructs a session repository.
func NewSessionRepo(db *DB) *SessionRepo { return &SessionRepo{db: db} }

// Save upserts the session of profile.
func (r *SessionRepo) Save(ctx context.Context, profile string, s model.Session) error {
	const q = `
INSERT INTO sessions (profile, token, user_json, profile_json, expires_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (profile) DO UPDATE
SET token = EXCLUDED.token, user_json = EXCLUDED.user_json,
    profile_json = EXCLUDED.profile_json, expires_at = EXCLUDED.expires_at, updated_at = now()`
	userJSON, err := json.Marshal(s.User)
	if err != nil {
		return err
	}
	profileJSON, err := json.Marshal(s.Profile)
	if err != nil {
		return err
	}
	_, err = r.db.Pool.Exec(ctx, q, profile, s.Token, userJSON, profileJSON, s.ExpiresAt)
	return mapErr(err)
}

// Load selects the session of profile.
func (r *SessionRepo) Load(ctx context.Context, profile string) (model.Session, error) {
	const q = `
SELECT token, user_json, profile_json, expires_at
FROM sessions WHERE profile=$1`
	var (
		s                     model.Session
		userJSON, profileJSON []byte
	)
	err := r.db.Pool.QueryRow(ctx, q, profile).Scan(&s.Token, &userJSON, &profileJSON, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Session{}, errs.ErrNotFound
	}
	if err != nil {
		return model.Session{}, mapErr(err)
	}
	if err := json.Unmarshal(userJSON, &s.User); err != nil {
		return model.Session{}, fmt.Errorf("decode user: %w", err)
	}
	if err := json.Unmarshal(profileJSON, &s.Profile); err != nil {
		return model.Session{}, fmt.Errorf("decode profile: %w", err)
	}
	return s, nil
}

// Delete removes the session of profile.
func (r *SessionRepo) Delete(ctx context.Context, profile string) error {
	const q = `DELETE FROM sessions WHERE profile=$1`
	_, err := r.db.Pool.Exec(ctx, q, profile)
	return mapErr(err)
}

// Purge deletes sessions that expired before now.
func (r *SessionRepo) Purge(ctx context.Context, now time.Time) (int, error) {
	const q = `DELETE FROM sessions WHERE expires_at <= $1`
	tag, err := r.db.Pool.Exec(ctx, q, now)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func mapErr(err error) error {
	if isUndefinedTable(err) {
		return ErrNotMigrated
	}
	return err
}
