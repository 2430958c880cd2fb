// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/logging"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

const (
	// DefaultTimeout bounds identity requests.
	DefaultTimeout = 30 * time.Second

	maxResponseSize = 1 << 20
	authPath        = "/auth/v1"
)

var (
	ErrNotConfigured = errors.New("identity provider not configured")
	ErrNoSession     = errors.New("redirect carries no session")
)

// Client talks to the identity provider.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a client for the provider at projectURL using the
// project's public anon key.
func NewClient(projectURL, anonKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(projectURL, "/") + authPath,
		anonKey:    anonKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// PASSWORD FLOWS
// =============================================================================

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.post(ctx, "/token?grant_type=password", "", body, &s); err != nil {
		c.log.Info().Str("email", logging.RedactEmail(email)).Err(err).Msg("sign in failed")
		return nil, err
	}
	return &s, nil
}

// SignUp registers a new account. Unless the project auto-confirms, the
// result carries no session and the user must enter the emailed code.
func (c *Client) SignUp(ctx context.Context, p SignUpParams) (SignUpResult, error) {
	body := map[string]any{
		"email":    p.Email,
		"password": p.Password,
	}
	if p.DisplayName != "" {
		body["data"] = map[string]string{"display_name": p.DisplayName, "full_name": p.DisplayName}
	}

	var raw json.RawMessage
	if err := c.post(ctx, withRedirect("/signup", p.RedirectTo), "", body, &raw); err != nil {
		return SignUpResult{}, err
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err == nil && s.AccessToken != "" {
		return SignUpResult{Session: &s, User: s.User}, nil
	}
	var u model.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return SignUpResult{}, fmt.Errorf("failed to parse sign-up response: %w", err)
	}
	return SignUpResult{User: u}, nil
}

// Recover emails a password recovery code to email.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	return c.post(ctx, withRedirect("/recover", redirectTo), "", map[string]string{"email": email}, nil)
}

// =============================================================================
// ONE-TIME CODES
// =============================================================================

// SendOTP emails a magic link and one-time code, creating the account when
// it does not exist yet.
func (c *Client) SendOTP(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{"email": email, "create_user": true}
	return c.post(ctx, withRedirect("/otp", redirectTo), "", body, nil)
}

// VerifyOTP exchanges an emailed code for a session.
func (c *Client) VerifyOTP(ctx context.Context, email, token string, typ OTPType) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "token": token, "type": string(typ)}
	if err := c.post(ctx, "/verify", "", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Resend re-sends the code of a pending signup or email change.
func (c *Client) Resend(ctx context.Context, email string, typ OTPType) error {
	return c.post(ctx, "/resend", "", map[string]string{"email": email, "type": string(typ)}, nil)
}

// =============================================================================
// SESSION & USER
// =============================================================================

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	var s Session
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.post(ctx, "/token?grant_type=refresh_token", "", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetUser returns the user that owns accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	var u model.User
	if err := c.send(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser changes attributes of the signed-in user.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, upd UserUpdate) (*model.User, error) {
	var u model.User
	if err := c.send(ctx, http.MethodPut, "/user", accessToken, upd, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Logout revokes the session's refresh tokens.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	return c.send(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

// =============================================================================
// OAUTH
// =============================================================================

// AuthorizeURL returns the URL that starts an OAuth sign-in with provider.
func (c *Client) AuthorizeURL(provider, redirectTo string) string {
	q := url.Values{}
	q.Set("provider", provider)
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return c.baseURL + "/authorize?" + q.Encode()
}

// SessionFromRedirect parses the session the provider appends to the
// redirect URL fragment after OAuth or magic-link sign-in. The user is left
// empty; callers fetch it with GetUser.
func SessionFromRedirect(redirectURL string) (*Session, error) {
	u, err := url.Parse(strings.TrimSpace(redirectURL))
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL: %w", err)
	}
	params, err := url.ParseQuery(u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect fragment: %w", err)
	}
	if desc := params.Get("error_description"); desc != "" {
		return nil, &Error{Code: params.Get("error"), Message: desc}
	}
	s := &Session{
		AccessToken:  params.Get("access_token"),
		RefreshToken: params.Get("refresh_token"),
		TokenType:    params.Get("token_type"),
	}
	if s.AccessToken == "" {
		return nil, ErrNoSession
	}
	s.ExpiresIn, _ = strconv.Atoi(params.Get("expires_in"))
	s.ExpiresAt, _ = strconv.ParseInt(params.Get("expires_at"), 10, 64)
	return s, nil
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

func withRedirect(path, redirectTo string) string {
	if redirectTo == "" {
		return path
	}
	return path + "?redirect_to=" + url.QueryEscape(redirectTo)
}

func (c *Client) post(ctx context.Context, path, accessToken string, body, out any) error {
	return c.send(ctx, http.MethodPost, path, accessToken, body, out)
}

func (c *Client) send(ctx context.Context, method, path, accessToken string, body, out any) error {
	if c.anonKey == "" || c.baseURL == authPath {
		return ErrNotConfigured
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token := accessToken
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.log.Debug().Str("method", method).Str("path", strings.SplitN(path, "?", 2)[0]).
		Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("identity request")

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// decodeError understands both error shapes the provider emits:
// {"code":400,"error_code":"...","msg":"..."} and
// {"error":"...","error_description":"..."}.
func decodeError(status int, data []byte) error {
	var payload struct {
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(data, &payload)

	e := &Error{Status: status, Code: payload.ErrorCode}
	if e.Code == "" {
		e.Code = payload.Error
	}
	for _, m := range []string{payload.Msg, payload.ErrorDescription, payload.Message, payload.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	return e
}
