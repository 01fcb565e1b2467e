// Package client is a Go client for the mapster API. Requests go through a
// RefreshTransport, so an expired access token is renewed transparently.
package client

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

// ErrNotLoggedIn is returned by calls that need a cached session when there is none.
var ErrNotLoggedIn = errors.New("client: not logged in")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

type User struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
}

type Document struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Export struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Client talks to the API on behalf of one cached session.
type Client struct {
	baseURL   string
	cache     TokenCache
	transport *RefreshTransport
	http      *http.Client
}

type Option func(*Client)

// WithBaseTransport sets the transport used underneath the refresh logic.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport.Base = rt }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) { c.transport.RefreshTimeout = d }
}

// WithOnSessionExpired registers the callback run when the session cannot be renewed.
func WithOnSessionExpired(fn func(error)) Option {
	return func(c *Client) { c.transport.OnSessionExpired = fn }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(baseURL string, cache TokenCache, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	rt := &RefreshTransport{Cache: cache, BaseURL: baseURL, RefreshTimeout: DefaultRefreshTimeout}
	c := &Client{
		baseURL:   baseURL,
		cache:     cache,
		transport: rt,
		http:      &http.Client{Transport: rt, Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Cache exposes the token cache backing the client.
func (c *Client) Cache() TokenCache { return c.cache }

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp, decodeError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
	}
	return &APIError{Status: resp.StatusCode, Message: body.Error}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and caches the returned session.
func (c *Client) Signup(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/users", email, password)
}

// Login caches a new session for the given credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*User, error) {
	return c.authenticate(ctx, "/users/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (*User, error) {
	var u User
	resp, err := c.do(ctx, http.MethodPost, path, credentials{Email: email, Password: password}, &u)
	if err != nil {
		return nil, err
	}
	s := Session{
		UserID:       u.ID,
		AccessToken:  resp.Header.Get(HeaderAccessToken),
		RefreshToken: resp.Header.Get(HeaderRefreshToken),
	}
	if err := c.cache.SetSession(ctx, s); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout revokes the refresh session on the server and clears the cache.
// The cache is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	sess, err := c.cache.Session(ctx)
	if err != nil {
		return err
	}
	if sess.RefreshToken == "" {
		return c.cache.RemoveSession(ctx)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/users/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderRefreshToken, sess.RefreshToken)
	req.Header.Set(HeaderUserID, sess.UserID)
	resp, serverErr := c.transport.base().RoundTrip(req)
	if serverErr == nil {
		if resp.StatusCode >= 300 {
			serverErr = decodeError(resp)
		}
		resp.Body.Close()
	}
	if err := c.cache.RemoveSession(ctx); err != nil {
		return err
	}
	if serverErr != nil {
		var apiErr *APIError
		// the session is already gone server side
		if errors.As(serverErr, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return nil
		}
		return serverErr
	}
	return nil
}

// Whoami returns the cached user.
func (c *Client) Whoami(ctx context.Context) (*User, error) {
	sess, err := c.cache.Session(ctx)
	if err != nil {
		return nil, err
	}
	if sess.UserID == "" {
		return nil, ErrNotLoggedIn
	}
	var u User
	if _, err := c.do(ctx, http.MethodGet, "/users/"+sess.UserID, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var out []User
	_, err := c.do(ctx, http.MethodGet, "/users", nil, &out)
	return out, err
}

// DeleteAccount removes the logged-in user and clears the cache.
func (c *Client) DeleteAccount(ctx context.Context) error {
	sess, err := c.cache.Session(ctx)
	if err != nil {
		return err
	}
	if sess.UserID == "" {
		return ErrNotLoggedIn
	}
	if _, err := c.do(ctx, http.MethodDelete, "/users/"+sess.UserID, nil, nil); err != nil {
		return err
	}
	return c.cache.RemoveSession(ctx)
}

func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	var out []Document
	_, err := c.do(ctx, http.MethodGet, "/docs", nil, &out)
	return out, err
}

func (c *Client) CreateDocument(ctx context.Context, title string) (*Document, error) {
	var d Document
	if _, err := c.do(ctx, http.MethodPost, "/docs", map[string]string{"title": title}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) RenameDocument(ctx context.Context, id, title string) (*Document, error) {
	var d Document
	if _, err := c.do(ctx, http.MethodPatch, "/docs/"+id, map[string]string{"title": title}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/docs/"+id, nil, nil)
	return err
}

func (c *Client) ExportDocument(ctx context.Context, id string) (*Export, error) {
	var e Export
	if _, err := c.do(ctx, http.MethodPost, "/docs/"+id+"/export", nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
