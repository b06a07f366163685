package api

import (
	"context"
	"net/http"

	"github.com/and161185/social-client/internal/model"
)

// ProfileResult is a profile with its owning user.
type ProfileResult struct {
	User    model.User    `json:"user"`
	Profile model.Profile `json:"profile"`
}

// ProfileUpdate is a multipart profile edit. Empty fields are left unchanged.
type ProfileUpdate struct {
	DisplayName string
	Bio         string
	Avatar      []byte // JPEG
	Cover       []byte // JPEG
}

// FollowResult is the follow toggle answer.
type FollowResult struct {
	Following      bool `json:"isFollowing"`
	FollowersCount int  `json:"followersCount"`
}

// Profile fetches a profile by hash id.
func (c *Client) Profile(ctx context.Context, hashID string) (ProfileResult, error) {
	var res ProfileResult
	err := c.Do(ctx, http.MethodGet, "/api/users/profile/"+pathID(hashID), nil, nil, &res)
	return res, err
}

// UpdateProfile uploads profile edits and returns the stored profile.
func (c *Client) UpdateProfile(ctx context.Context, hashID string, u ProfileUpdate) (model.Profile, error) {
	form := NewForm().
		Field("displayName", u.DisplayName).
		Field("bio", u.Bio).
		File(File{Field: "avatar", Name: "avatar.jpg", ContentType: "image/jpeg", Data: u.Avatar}).
		File(File{Field: "coverImage", Name: "cover.jpg", ContentType: "image/jpeg", Data: u.Cover})
	var res model.Profile
	err := c.Upload(ctx, http.MethodPut, "/api/users/profile/"+pathID(hashID), form, &res)
	return res, err
}

// Follow toggles following userID. It is a direct call.
func (c *Client) Follow(ctx context.Context, userID string) (FollowResult, error) {
	var res FollowResult
	err := c.Direct(ctx, http.MethodPost, "/api/users/"+pathID(userID)+"/follow", nil, &res)
	return res, err
}
