// Package client talks to a chatup server: the HTTP API, the push socket and
// the per-user session state a chat front end renders from.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chatup/internal/domain"
)

// APIError is a non-2xx reply. It unwraps to the matching domain sentinel so
// callers can use errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return domain.ErrValidation
	case http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case http.StatusForbidden:
		return domain.ErrForbidden
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) setToken(t string) {
	c.mu.Lock()
	c.token = t
	c.mu.Unlock()
}

type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio"`
}

type authReply struct {
	UserData *domain.User `json:"userData"`
	Token    string       `json:"token"`
}

// Signup creates an account and keeps the returned token.
func (c *Client) Signup(ctx context.Context, req SignupRequest) (*domain.User, error) {
	var out authReply
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", req, &out); err != nil {
		return nil, err
	}
	c.setToken(out.Token)
	return out.UserData, nil
}

// Login authenticates and keeps the returned token.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var out authReply
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	c.setToken(out.Token)
	return out.UserData, nil
}

func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/check", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// UpdateProfile changes name and bio; profilePic is an optional data URI.
func (c *Client) UpdateProfile(ctx context.Context, fullName, bio, profilePic string) (*domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	body := map[string]string{"fullName": fullName, "bio": bio, "profilePic": profilePic}
	if err := c.do(ctx, http.MethodPut, "/api/auth/update-profile", body, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
}

// Contacts returns every other user and the unseen counts keyed by sender.
func (c *Client) Contacts(ctx context.Context) ([]*domain.User, map[string]int, error) {
	var out struct {
		Users  []*domain.User `json:"users"`
		Unseen map[string]int `json:"unseenMessages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages/users", nil, &out); err != nil {
		return nil, nil, err
	}
	if out.Unseen == nil {
		out.Unseen = map[string]int{}
	}
	return out.Users, out.Unseen, nil
}

// Conversation fetches the history with peerID. The server marks the peer's
// messages to us seen as a side effect.
func (c *Client) Conversation(ctx context.Context, peerID string) ([]*domain.Message, error) {
	var out struct {
		Messages []*domain.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(peerID), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Send(ctx context.Context, peerID, text, image string) (*domain.Message, error) {
	var out struct {
		NewMessage *domain.Message `json:"newMessage"`
	}
	body := map[string]string{"text": text, "image": image}
	if err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(peerID), body, &out); err != nil {
		return nil, err
	}
	return out.NewMessage, nil
}

func (c *Client) MarkSeen(ctx context.Context, messageID string) error {
	return c.do(ctx, http.MethodPut, "/api/messages/mark/"+url.PathEscape(messageID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		if env.Message == "" {
			env.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
