package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	surfaceHeader = "X-Client-Surface"
	surfaceScript = "script"

	defaultTimeout = 10 * time.Second
)

// User mirrors the service's user info payload.
type User struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	Roles           []string `json:"roles,omitempty"`
	IsAuthenticated bool     `json:"isAuthenticated"`
}

type authResponse struct {
	Tokens
	User User `json:"user"`
}

// Client talks to the authentication service as a script client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Store      *TokenStore
}

// New creates a Client. Redirects are not followed so that a forced logout is
// observed instead of silently landing on the login page.
func New(baseURL string, store *TokenStore) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: defaultTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Store: store,
	}
}

func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.signIn(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) Register(ctx context.Context, email, username, password string) (*User, error) {
	return c.signIn(ctx, "/auth/register", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
}

func (c *Client) signIn(ctx context.Context, path string, payload any) (*User, error) {
	var res authResponse
	if err := c.do(ctx, http.MethodPost, path, payload, "", &res); err != nil {
		return nil, err
	}
	if err := c.Store.Save(res.Tokens); err != nil {
		return nil, err
	}
	return &res.User, nil
}

// Refresh exchanges the stored refresh token for a new pair. A rejected token
// clears the store.
func (c *Client) Refresh(ctx context.Context) error {
	tokens, ok := c.Store.Load()
	if !ok || tokens.RefreshToken == "" {
		return ErrNotSignedIn
	}

	var next Tokens
	err := c.do(ctx, http.MethodPost, "/auth/refresh", map[string]string{
		"refreshToken": tokens.RefreshToken,
	}, "", &next)
	if err != nil {
		if IsUnauthorized(err) {
			c.Store.Clear()
		}
		return err
	}
	return c.Store.Save(next)
}

// Logout revokes the stored refresh token. Local tokens are cleared even when
// the call fails.
func (c *Client) Logout(ctx context.Context) error {
	tokens, ok := c.Store.Load()
	c.Store.Clear()
	if !ok {
		return nil
	}

	return c.do(ctx, http.MethodPost, "/auth/logout", map[string]string{
		"refreshToken": tokens.RefreshToken,
	}, tokens.AccessToken, nil)
}

// User returns the signed-in user. On a 401 the tokens are refreshed once and
// the call retried.
func (c *Client) User(ctx context.Context) (*User, error) {
	var u User
	err := c.authorized(ctx, http.MethodGet, "/auth/user", nil, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) authorized(ctx context.Context, method, path string, payload, target any) error {
	tokens, ok := c.Store.Load()
	if !ok {
		return ErrNotSignedIn
	}

	err := c.do(ctx, method, path, payload, tokens.AccessToken, target)
	if !IsUnauthorized(err) {
		return err
	}

	if err := c.Refresh(ctx); err != nil {
		return err
	}
	tokens, ok = c.Store.Load()
	if !ok {
		return ErrNotSignedIn
	}
	return c.do(ctx, method, path, payload, tokens.AccessToken, target)
}

func (c *Client) do(ctx context.Context, method, path string, payload any, accessToken string, target any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(surfaceHeader, surfaceScript)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode == http.StatusFound || resp.StatusCode == http.StatusSeeOther {
		c.Store.Clear()
		return ErrSessionTerminated
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, raw)
	}

	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// AccessToken returns the stored access token, if any.
func (c *Client) AccessToken() (string, error) {
	tokens, ok := c.Store.Load()
	if !ok {
		return "", ErrNotSignedIn
	}
	if tokens.AccessToken == "" {
		return "", errors.New("stored entry has no access token")
	}
	return tokens.AccessToken, nil
}
