// Package apiclient is the single shared HTTP client used by every store.
// It attaches the access token, unwraps the backend's JSON envelope and is
// the only place where an expired session is detected.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/storage"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderGuestID   = "X-Guest-ID"
)

// Refresher exchanges the stored refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client
	Tokens     storage.TokenReader
	// GuestID identifies an anonymous browser session to the backend.
	GuestID string
	Now     func() time.Time
}

// Request describes one API call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Public requests never carry credentials and are never intercepted.
	Public bool
}

type refreshFlight struct {
	done chan struct{}
	err  error
}

// Client talks to the REST backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  storage.TokenReader
	guestID string
	now     func() time.Time

	mu        sync.Mutex
	refresher Refresher
	onExpired func()
	flight    *refreshFlight
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    httpClient,
		tokens:  cfg.Tokens,
		guestID: cfg.GuestID,
		now:     now,
	}, nil
}

// SetRefresher installs the token refresher. The auth session store is
// constructed after the client, so this is wired in a second step.
func (c *Client) SetRefresher(r Refresher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresher = r
}

// OnSessionExpired installs the hook run when re-authentication is required.
func (c *Client) OnSessionExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpired = fn
}

// Get is shorthand for a GET request.
func (c *Client) Get(ctx context.Context, path string, out Payload) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post is shorthand for a POST request.
func (c *Client) Post(ctx context.Context, path string, body any, out Payload) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put is shorthand for a PUT request.
func (c *Client) Put(ctx context.Context, path string, body any, out Payload) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete is shorthand for a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, body any, out Payload) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path, Body: body}, out)
}

// Do sends r and decodes the envelope's data into out (which may be nil).
//
// For credentialed requests a 401 triggers at most one refresh-and-retry.
// An access token already past its exp claim is refreshed before sending,
// which uses up that single attempt.
func (c *Client) Do(ctx context.Context, r Request, out Payload) (*Response, error) {
	body, contentType, err := encodeBody(r.Body)
	if err != nil {
		return nil, err
	}

	token := ""
	if !r.Public && c.tokens != nil {
		token = c.tokens.AccessToken(ctx)
	}
	credentialed := token != ""

	refreshed := false
	if credentialed && auth.Expired(token, c.now()) {
		if err := c.refresh(ctx); err != nil {
			return nil, c.expire(r, err)
		}
		refreshed = true
		token = c.tokens.AccessToken(ctx)
	}

	resp, err := c.send(ctx, r, body, contentType, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && credentialed {
		drain(resp)
		if refreshed {
			return nil, c.expire(r, errors.New("unauthorized after refresh"))
		}
		if err := c.refresh(ctx); err != nil {
			return nil, c.expire(r, err)
		}
		resp, err = c.send(ctx, r, body, contentType, c.tokens.AccessToken(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return nil, c.expire(r, errors.New("unauthorized after refresh"))
		}
	}
	defer resp.Body.Close()

	res, err := decodeResponse(resp, out)
	if err != nil {
		log.Printf("[API] %s %s -> %v", r.Method, r.Path, err)
		return nil, err
	}
	return res, nil
}

func (c *Client) send(ctx context.Context, r Request, body []byte, contentType, token string) (*http.Response, error) {
	target := c.baseURL + r.Path
	if len(r.Query) > 0 {
		target += "?" + r.Query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(HeaderRequestID, uuid.New().String())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.guestID != "" && !r.Public {
		req.Header.Set(HeaderGuestID, c.guestID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &APIError{Message: "request cancelled", Err: ctxErr}
		}
		return nil, &APIError{Message: "network error", Err: fmt.Errorf("%w: %v", ErrTransport, err)}
	}
	return resp, nil
}

// refresh runs the installed Refresher. Concurrent callers share one
// in-flight refresh and all observe its outcome.
func (c *Client) refresh(ctx context.Context) error {
	c.mu.Lock()
	if f := c.flight; f != nil {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	refresher := c.refresher
	if refresher == nil {
		c.mu.Unlock()
		return errors.New("no refresher installed")
	}
	f := &refreshFlight{done: make(chan struct{})}
	c.flight = f
	c.mu.Unlock()

	f.err = refresher.Refresh(ctx)

	c.mu.Lock()
	c.flight = nil
	c.mu.Unlock()
	close(f.done)

	if f.err != nil {
		log.Printf("[API] Token refresh failed: %v", f.err)
	}
	return f.err
}

func (c *Client) expire(r Request, cause error) error {
	log.Printf("[API] %s %s: session expired (%v)", r.Method, r.Path, cause)

	c.mu.Lock()
	hook := c.onExpired
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return &APIError{
		Status:  http.StatusUnauthorized,
		Message: SessionExpiredMessage,
		Err:     fmt.Errorf("%w: %v", ErrSessionExpired, cause),
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()
}

// PathEscape escapes a single path segment.
func PathEscape(segment string) string {
	return url.PathEscape(segment)
}
