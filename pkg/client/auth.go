package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/inkbase/inkbase/pkg/models"
)

// RegisterRequest is the body of POST /api/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token and the account it belongs to.
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates an account and stores the returned token on the
// client for subsequent requests.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/register", req, nil)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}

	var result AuthResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	c.SetAuthToken(result.Token)
	return &result, nil
}

// Login authenticates with email and password and stores the returned
// token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	req := LoginRequest{Email: email, Password: password}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/auth/login", req, nil)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}

	var result AuthResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	c.SetAuthToken(result.Token)
	return &result, nil
}

// Me returns the account behind the client's bearer token.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/auth/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var result models.User
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
