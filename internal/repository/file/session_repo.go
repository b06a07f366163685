// Package file stores sessions as JSON files in the client config directory,
// optionally sealed with a passphrase.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/and161185/social-client/internal/crypto/clientcrypto"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/model"
)

const defaultProfile = "default"

// ErrWrongPassphrase indicates a sealed session that cannot be opened.
var ErrWrongPassphrase = errors.New("session file: wrong passphrase or corrupted")

type sessionFile struct {
	Version int            `json:"version"`
	Session *model.Session `json:"session,omitempty"`
	Sealed  []byte         `json:"sealed,omitempty"`
}

// SessionRepo implements repository.SessionRepository on the local filesystem.
type SessionRepo struct {
	dir        string
	passphrase []byte
}

// NewSessionRepo returns a repo rooted at dir. A non-empty passphrase seals the payload.
func NewSessionRepo(dir, passphrase string) *SessionRepo {
	r := &SessionRepo{dir: dir}
	if passphrase != "" {
		r.passphrase = []byte(passphrase)
	}
	return r
}

// Path returns the file used for profile.
func (r *SessionRepo) Path(profile string) string {
	if profile == "" || profile == defaultProfile {
		return filepath.Join(r.dir, "session.json")
	}
	return filepath.Join(r.dir, "session-"+profile+".json")
}

// Save writes the session with 0600 permissions via a temp file and rename.
func (r *SessionRepo) Save(_ context.Context, profile string, s model.Session) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("session dir: %w", err)
	}
	sf := sessionFile{Version: 1}
	if r.passphrase != nil {
		pt, err := json.Marshal(s)
		if err != nil {
			return err
		}
		sf.Sealed, err = clientcrypto.SealWithPassphrase(r.passphrase, pt, []byte(profile))
		if err != nil {
			return fmt.Errorf("seal session: %w", err)
		}
	} else {
		sf.Session = &s
	}
	b, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path(profile)
	tmp, err := os.CreateTemp(r.dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads the session of profile.
func (r *SessionRepo) Load(_ context.Context, profile string) (model.Session, error) {
	b, err := os.ReadFile(r.Path(profile))
	if errors.Is(err, fs.ErrNotExist) {
		return model.Session{}, errs.ErrNotFound
	}
	if err != nil {
		return model.Session{}, err
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		return model.Session{}, fmt.Errorf("parse session file: %w", err)
	}
	switch {
	case sf.Session != nil:
		return *sf.Session, nil
	case len(sf.Sealed) > 0:
		if r.passphrase == nil {
			return model.Session{}, fmt.Errorf("session file is sealed: %w", ErrWrongPassphrase)
		}
		pt, err := clientcrypto.OpenWithPassphrase(r.passphrase, sf.Sealed, []byte(profile))
		if err != nil {
			return model.Session{}, ErrWrongPassphrase
		}
		var s model.Session
		if err := json.Unmarshal(pt, &s); err != nil {
			return model.Session{}, fmt.Errorf("parse sealed session: %w", err)
		}
		return s, nil
	default:
		return model.Session{}, errs.ErrNotFound
	}
}

// Delete removes the session file of profile.
func (r *SessionRepo) Delete(_ context.Context, profile string) error {
	err := os.Remove(r.Path(profile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Purge removes expired session files. Files it cannot open are left alone.
func (r *SessionRepo) Purge(ctx context.Context, now time.Time) (int, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		profile, ok := profileOf(e.Name())
		if !ok {
			continue
		}
		s, err := r.Load(ctx, profile)
		if err != nil || !s.Expired(now) {
			continue
		}
		if err := r.Delete(ctx, profile); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func profileOf(name string) (string, bool) {
	if name == "session.json" {
		return defaultProfile, true
	}
	if strings.HasPrefix(name, "session-") && strings.HasSuffix(name, ".json") {
		return strings.TrimSuffix(strings.TrimPrefix(name, "session-"), ".json"), true
	}
	return "", false
}
