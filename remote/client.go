// Package remote mirrors committed local task mutations to the remote task
// API on a best-effort basis.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"github.com/pathwise/tasksync/task"
)

// Client is the remote task API: one call per local mutation kind.
type Client interface {
	Create(ctx context.Context, userID string, t task.Task) error
	Update(ctx context.Context, userID, id string, p task.Patch) error
	Delete(ctx context.Context, userID, id string) error
	ClearAll(ctx context.Context, userID string) error
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// TokenSource produces the bearer token sent for userID.
type TokenSource interface {
	Token(userID string) (string, error)
}

// StaticToken sends the same bearer token for every user.
type StaticToken string

// Token returns the static token.
func (t StaticToken) Token(string) (string, error) { return string(t), nil }

// JWTSigner issues short-lived HS256 tokens whose subject is the user id.
type JWTSigner struct {
	Secret []byte
	Issuer string
	TTL    time.Duration // default 5 minutes
}

// Token signs a token for userID.
func (s JWTSigner) Token(userID string) (string, error) {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    s.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// HTTPClient talks to the remote task API over HTTP.
type HTTPClient struct {
	BaseURL    string
	Tokens     TokenSource
	HTTPClient *http.Client
}

// NewHTTPClient returns an HTTPClient for baseURL.
func NewHTTPClient(baseURL string, tokens TokenSource) *HTTPClient {
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Tokens:     tokens,
		HTTPClient: &http.Client{},
	}
}

// Create sends POST /tasks.
func (c *HTTPClient) Create(ctx context.Context, userID string, t task.Task) error {
	return c.do(ctx, userID, http.MethodPost, "/tasks", t)
}

// Update sends PATCH /tasks/{id} with the partial fields.
func (c *HTTPClient) Update(ctx context.Context, userID, id string, p task.Patch) error {
	return c.do(ctx, userID, http.MethodPatch, "/tasks/"+url.PathEscape(id), p)
}

// Delete sends DELETE /tasks/{id}.
func (c *HTTPClient) Delete(ctx context.Context, userID, id string) error {
	return c.do(ctx, userID, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil)
}

// ClearAll sends DELETE /tasks.
func (c *HTTPClient) ClearAll(ctx context.Context, userID string) error {
	return c.do(ctx, userID, http.MethodDelete, "/tasks", nil)
}

func (c *HTTPClient) do(ctx context.Context, userID, method, path string, body any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", ulid.Make().String())
	if c.Tokens != nil {
		token, err := c.Tokens.Token(userID)
		if err != nil {
			return err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
