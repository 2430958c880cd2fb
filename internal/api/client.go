// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

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

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds ordinary JSON requests.
	DefaultTimeout = 120 * time.Second

	// MaxResponseSize caps how much of a response body is read.
	MaxResponseSize = 10 * 1024 * 1024

	// Header names understood by the backend.
	HeaderCustomKey = "X-Custom-Api-Key"
	HeaderChatID    = "X-Chat-Id"
	HeaderRequestID = "X-Request-Id"

	userAgent = "arkiv-tui"
)

// TokenSource supplies the bearer token for one request.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// KeySource supplies the active BYOK key; "" means the server default.
type KeySource interface {
	ActiveKey(ctx context.Context) (string, error)
}

// KeySourceFunc adapts a function to KeySource.
type KeySourceFunc func(ctx context.Context) (string, error)

// ActiveKey implements KeySource.
func (f KeySourceFunc) ActiveKey(ctx context.Context) (string, error) { return f(ctx) }

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// AccessToken implements TokenSource.
func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) { return f(ctx) }

// Client calls the document-chat backend.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	uploadTimeout time.Duration
	tokens        TokenSource
	keys          KeySource
	limiter       *rate.Limiter
	log           zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the timeout of ordinary requests.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUploadTimeout bounds upload requests, which may take minutes.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.uploadTimeout = d }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithKeySource sets where the BYOK key comes from.
func WithKeySource(ks KeySource) Option {
	return func(c *Client) { c.keys = ks }
}

// WithRateLimit paces outgoing requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a backend client for baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// requestSpec describes one call.
type requestSpec struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
	customKey   bool
	chatID      string
	fallback    string
	timeout     time.Duration
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return bytes.NewReader(data), nil
}

// do sends the request and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, spec requestSpec, out any) error {
	if spec.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, c.baseURL+spec.path, spec.body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if err := c.setHeaders(ctx, req, spec); err != nil {
		return err
	}

	requestID := req.Header.Get(HeaderRequestID)
	start := time.Now()
	resp, err := c.client(spec).Do(req)
	if err != nil {
		c.log.Warn().Str("method", spec.method).Str("path", spec.path).
			Str("request_id", requestID).Err(err).Msg("api request failed")
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().Str("method", spec.method).Str("path", spec.path).
		Int("status", resp.StatusCode).Dur("duration", time.Since(start)).
		Str("request_id", requestID).Msg("api request")

	body, err := readResponse(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body, spec.fallback)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// client returns the HTTP client for spec. Requests with their own timeout
// bypass the client-wide one and rely on the context deadline.
func (c *Client) client(spec requestSpec) *http.Client {
	if spec.timeout <= 0 {
		return c.httpClient
	}
	hc := *c.httpClient
	hc.Timeout = 0
	return &hc
}

func (c *Client) setHeaders(ctx context.Context, req *http.Request, spec requestSpec) error {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if spec.contentType != "" {
		req.Header.Set("Content-Type", spec.contentType)
	}

	if spec.auth {
		if c.tokens == nil {
			return ErrUnauthenticated
		}
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(token) == "" {
			return ErrUnauthenticated
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if spec.customKey && c.keys != nil {
		key, err := c.keys.ActiveKey(ctx)
		if err != nil {
			return fmt.Errorf("read active API key: %w", err)
		}
		if key != "" {
			req.Header.Set(HeaderCustomKey, key)
		}
	}

	if spec.chatID != "" {
		req.Header.Set(HeaderChatID, spec.chatID)
	}
	return nil
}

// readResponse reads at most MaxResponseSize bytes of the body.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, ErrResponseTooLarge
	}
	return body, nil
}
