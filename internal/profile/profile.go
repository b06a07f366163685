// Package profile reads and edits user profiles, including cropped avatar
// and cover uploads.
package profile

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/url"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/and161185/social-client/internal/api"
	"github.com/and161185/social-client/internal/cropper"
	"github.com/and161185/social-client/internal/errs"
	"github.com/and161185/social-client/internal/logging"
	"github.com/and161185/social-client/internal/model"
	"github.com/and161185/social-client/internal/querycache"
)

// Key is the cache key of the profile with hashID.
func Key(hashID string) querycache.Key { return querycache.Key{"profile", hashID} }

// Backend is the part of the API client profiles use.
type Backend interface {
	Profile(ctx context.Context, hashID string) (api.ProfileResult, error)
	UpdateProfile(ctx context.Context, hashID string, u api.ProfileUpdate) (model.Profile, error)
}

// SessionStore is the part of the session store profiles use.
type SessionStore interface {
	Current() (model.Session, bool)
	UpdateProfile(ctx context.Context, p model.Profile) error
}

// Uploaded tells MergeProfile which media were just uploaded.
type Uploaded struct {
	Avatar bool
	Cover  bool
}

// MergeProfile folds the server answer to an update into the previous
// profile. Empty fields in fresh keep prev's value. A just uploaded image
// always takes fresh's URL; when the server reuses the old URL it gets a
// version parameter so the new image replaces any cached copy.
func MergeProfile(prev, fresh model.Profile, up Uploaded, version int64) model.Profile {
	out := fresh
	if out.UserID == "" {
		out.UserID = prev.UserID
	}
	if out.HashID == "" {
		out.HashID = prev.HashID
	}
	if out.DisplayName == "" {
		out.DisplayName = prev.DisplayName
	}
	if out.Bio == "" {
		out.Bio = prev.Bio
	}
	if fresh.FollowersCount == 0 && fresh.FollowingCount == 0 && fresh.PostsCount == 0 {
		out.FollowersCount, out.FollowingCount, out.PostsCount = prev.FollowersCount, prev.FollowingCount, prev.PostsCount
	}
	out.Avatar = mergeMedia(prev.Avatar, fresh.Avatar, up.Avatar, version)
	out.Cover = mergeMedia(prev.Cover, fresh.Cover, up.Cover, version)
	return out
}

func mergeMedia(prev, fresh string, uploaded bool, version int64) string {
	if fresh == "" {
		return prev
	}
	if uploaded && stripVersion(fresh) == stripVersion(prev) {
		return withVersion(fresh, version)
	}
	return fresh
}

func stripVersion(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Del("v")
	u.RawQuery = q.Encode()
	return u.String()
}

func withVersion(raw string, version int64) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("v", strconv.FormatInt(version, 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// Service is safe for concurrent use.
type Service struct {
	backend Backend
	store   SessionStore
	cache   *querycache.Cache
	clock   clock.Clock
	log     *zap.Logger
}

// New constructs the service. store and clk may be nil.
func New(backend Backend, store SessionStore, cache *querycache.Cache, clk clock.Clock, log *zap.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{backend: backend, store: store, cache: cache, clock: clk, log: logging.OrNop(log)}
}

// Get returns the profile with hashID.
func (s *Service) Get(ctx context.Context, hashID string) (api.ProfileResult, error) {
	if hashID == "" {
		return api.ProfileResult{}, fmt.Errorf("validation: empty profile id: %w", errs.ErrValidation)
	}
	res, err := querycache.Fetch(ctx, s.cache, Key(hashID), func(ctx context.Context) (api.ProfileResult, error) {
		return s.backend.Profile(ctx, hashID)
	})
	if err != nil {
		return api.ProfileResult{}, fmt.Errorf("load profile %s: %w", hashID, err)
	}
	return res, nil
}

// own reports whether hashID is the logged-in user's profile.
func (s *Service) own(hashID string) (model.Session, bool) {
	if s.store == nil {
		return model.Session{}, false
	}
	sess, ok := s.store.Current()
	if !ok {
		return model.Session{}, false
	}
	return sess, sess.User.HashID == hashID || sess.Profile.HashID == hashID
}

// Update uploads the edit, merges the answer and refreshes the session copy
// of the viewer's own profile.
func (s *Service) Update(ctx context.Context, hashID string, u api.ProfileUpdate) (model.Profile, error) {
	u.DisplayName = strings.TrimSpace(u.DisplayName)
	if u.DisplayName == "" && u.Bio == "" && len(u.Avatar) == 0 && len(u.Cover) == 0 {
		return model.Profile{}, fmt.Errorf("validation: nothing to update: %w", errs.ErrValidation)
	}
	var prev model.Profile
	if cached, ok := querycache.Get[api.ProfileResult](s.cache, Key(hashID)); ok {
		prev = cached.Profile
	} else if sess, mine := s.own(hashID); mine {
		prev = sess.Profile
	}

	fresh, err := s.backend.UpdateProfile(ctx, hashID, u)
	if err != nil {
		return model.Profile{}, fmt.Errorf("update profile %s: %w", hashID, err)
	}
	merged := MergeProfile(prev, fresh, Uploaded{Avatar: len(u.Avatar) > 0, Cover: len(u.Cover) > 0}, s.clock.Now().Unix())

	querycache.Update(s.cache, Key(hashID), func(cur api.ProfileResult, _ bool) api.ProfileResult {
		cur.Profile = merged
		if merged.Avatar != "" {
			cur.User.Avatar = merged.Avatar
		}
		if merged.DisplayName != "" {
			cur.User.DisplayName = merged.DisplayName
		}
		return cur
	})
	// author avatars in lists may now be outdated
	s.cache.Invalidate(querycache.Key{"posts"})

	if _, mine := s.own(hashID); mine {
		if err := s.store.UpdateProfile(ctx, merged); err != nil {
			s.log.Warn("update session profile", zap.Error(err))
		}
	}
	return merged, nil
}

// CropImage renders the crop of src for kind as JPEG bytes ready for Update.
func CropImage(src image.Image, container cropper.Size, t cropper.Transform, crop cropper.Rect, kind cropper.Kind) ([]byte, error) {
	var buf bytes.Buffer
	if err := cropper.Export(&buf, src, container, t, crop, kind); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DefaultImage crops src for kind with the default centred crop in a
// container of the image's own size.
func DefaultImage(src image.Image, kind cropper.Kind) ([]byte, error) {
	natural := cropper.NaturalSize(src)
	return CropImage(src, natural, cropper.Identity(), cropper.DefaultCrop(natural, natural, kind), kind)
}
