// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package identity

import (
	"fmt"
	"time"

	"github.com/jeranaias/arkiv-tui/internal/model"
)

// OTPType names the purpose of a one-time code.
type OTPType string

const (
	OTPSignup      OTPType = "signup"
	OTPRecovery    OTPType = "recovery"
	OTPEmail       OTPType = "email"
	OTPMagicLink   OTPType = "magiclink"
	OTPEmailChange OTPType = "email_change"
)

// Session is an authenticated session issued by the provider.
type Session struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int        `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         model.User `json:"user"`
}

// Expiry returns when the access token stops being valid. It prefers the
// token's own exp claim and falls back to expires_at.
func (s *Session) Expiry() time.Time {
	if exp, err := TokenExpiry(s.AccessToken); err == nil {
		return exp
	}
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	return time.Time{}
}

// ExpiresWithin reports whether the access token expires within d.
// Sessions with no known expiry never report expiring.
func (s *Session) ExpiresWithin(d time.Duration, now time.Time) bool {
	exp := s.Expiry()
	if exp.IsZero() {
		return false
	}
	return now.Add(d).After(exp)
}

// SignUpParams are the inputs of SignUp.
type SignUpParams struct {
	Email       string
	Password    string
	DisplayName string
	RedirectTo  string
}

// SignUpResult is either a session (auto-confirmed accounts) or a user
// awaiting email confirmation.
type SignUpResult struct {
	Session *Session
	User    model.User
}

// NeedsConfirmation reports whether the account must confirm its email.
func (r SignUpResult) NeedsConfirmation() bool {
	return r.Session == nil
}

// UserUpdate changes one or more user attributes. Empty fields are left out.
type UserUpdate struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Error is a failure reported by the identity provider.
type Error struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("identity provider error (HTTP %d)", e.Status)
}
