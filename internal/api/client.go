// Package api implements the REST client for the PTT platform's admin
// API. It performs no auth bookkeeping of its own: the caller supplies
// the *http.Client, and bearer injection for authenticated calls happens
// in that client's transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/darkjan1234/rpoiptt12/pkg/types"
)

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error: %s (status %d)", e.Message, e.Status)
}

// Client is a thin REST client over an injected *http.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the given base URL. The URL must not have a
// trailing slash; request paths are joined as baseURL + "/api/...".
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Login exchanges credentials for a token pair and the user record.
func (c *Client) Login(ctx context.Context, username, password string) (*types.LoginResponse, error) {
	body, err := json.Marshal(types.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login request: %w", err)
	}

	var resp types.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", "", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh mints a new access token. The refresh token is sent as the
// bearer credential on this one call.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	var resp types.RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", refreshToken, nil, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("refresh returned empty token")
	}
	return resp.AccessToken, nil
}

// Me returns the user record for the current bearer token.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var resp types.MeResponse
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", "", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Logout notifies the server that the given token's session ended.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", accessToken, nil, nil)
}

// ListUsers returns the user listing consumed by the dashboard.
func (c *Client) ListUsers(ctx context.Context) ([]types.User, error) {
	var resp types.UsersResponse
	if err := c.do(ctx, http.MethodGet, "/api/users", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ListChannels returns the channel listing consumed by the dashboard.
func (c *Client) ListChannels(ctx context.Context) ([]types.Channel, error) {
	var resp types.ChannelsResponse
	if err := c.do(ctx, http.MethodGet, "/api/channels", "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// do performs one request. bearer overrides the transport's token when
// non-empty (used by refresh and logout, which authenticate explicitly).
func (c *Client) do(ctx context.Context, method, path, bearer string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Status: resp.StatusCode, Message: errorMessage(respBody, resp.Status)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// errorMessage extracts the server's {"error": "..."} message, falling
// back to the HTTP status line.
func errorMessage(body []byte, status string) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return status
}
