package api

import (
	"context"
	"net/http"

	"github.com/and161185/social-client/internal/model"
)

// LoginResult is the answer of a credential login.
type LoginResult struct {
	Token   string        `json:"token"`
	User    model.User    `json:"user"`
	Profile model.Profile `json:"profile"`
}

// GoogleLogin exchanges an identity-provider credential for a session token.
func (c *Client) GoogleLogin(ctx context.Context, credential string) (LoginResult, error) {
	var res LoginResult
	err := c.Do(ctx, http.MethodPost, "/api/auth/google/login", nil,
		map[string]string{"credential": credential}, &res)
	return res, err
}
