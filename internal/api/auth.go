package api

import (
	"context"
	"net/http"

	"vesta/internal/store"
)

// RegisterRequest creates an account
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	City     string `json:"city,omitempty"`
}

// AuthResult is returned by Register and Login
type AuthResult struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

// Register creates an account and returns its first token
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	var res AuthResult
	if err := c.send(ctx, http.MethodPost, "/auth/register", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login exchanges credentials for a token. A 401 here means wrong
// credentials and never fires the unauthorized hook.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	var res AuthResult
	err := c.do(ctx, request{
		method:               http.MethodPost,
		path:                 "/auth/login",
		body:                 map[string]string{"email": email, "password": password},
		skipUnauthorizedHook: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Me returns the logged-in account
func (c *Client) Me(ctx context.Context) (*store.User, error) {
	var u store.User
	if err := c.get(ctx, "/users/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateProfile changes the non-nil profile fields
func (c *Client) UpdateProfile(ctx context.Context, p store.ProfileUpdate) (*store.User, error) {
	var u store.User
	if err := c.send(ctx, http.MethodPut, "/users/me", p, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChangePassword replaces the password
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.send(ctx, http.MethodPut, "/users/me/password",
		map[string]string{"currentPassword": current, "newPassword": next}, nil)
}

// User returns another user's public profile
func (c *Client) User(ctx context.Context, id string) (*store.PublicUser, error) {
	var u store.PublicUser
	if err := c.get(ctx, "/users/"+id, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
