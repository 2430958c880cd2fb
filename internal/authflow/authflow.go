// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package authflow drives the sign-in screen.
//
// A Machine holds which form is showing, the pending email addresses and the
// error or status line, and turns form submissions into session provider
// calls. Two variants exist: the password flow (login, signup with an
// emailed code, password reset with an emailed code) and the passwordless
// flow (magic link or emailed code, plus OAuth). The variant is fixed at
// build time; see DefaultVariant.
package authflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/jeranaias/arkiv-tui/internal/identity"
)

// =============================================================================
// MODES
// =============================================================================

// Mode is the form currently shown.
type Mode string

const (
	ModeLogin     Mode = "login"
	ModeSignup    Mode = "signup"
	ModeForgot    Mode = "forgot"
	ModeVerify    Mode = "verify"
	ModeReset     Mode = "reset"
	ModeResetDone Mode = "resetDone"

	// Passwordless variant.
	ModeEmail Mode = "email"
	ModeCode  Mode = "code"
)

// Title returns the heading of the form.
func (m Mode) Title() string {
	switch m {
	case ModeLogin:
		return "Welcome back"
	case ModeSignup:
		return "Create account"
	case ModeForgot:
		return "Forgot password"
	case ModeVerify:
		return "Verify your email"
	case ModeReset:
		return "Reset Password"
	case ModeResetDone:
		return "Password Reset"
	case ModeEmail:
		return "Sign in to Arkiv"
	case ModeCode:
		return "Check your email"
	default:
		return string(m)
	}
}

// Variant selects the state machine.
type Variant int

const (
	VariantPassword Variant = iota
	VariantPasswordless
)

func (v Variant) String() string {
	if v == VariantPasswordless {
		return "passwordless"
	}
	return "password"
}

// =============================================================================
// ERRORS AND MESSAGES
// =============================================================================

// ValidationError is a form problem detected before any request is made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

const (
	MsgCodeLength       = "Please enter a 6-digit code"
	MsgPasswordMismatch = "Passwords do not match"
	MsgPasswordShort    = "Password must be at least 6 characters"
	MsgEmailRequired    = "Please enter your email"
	MsgPasswordRequired = "Please enter your password"
	MsgCodeResent       = "New code sent to your email!"
	MsgResetComplete    = "Your password has been reset successfully!"
	MsgMagicLinkSent    = "Check your email for a sign-in link or a 6-digit code"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// CodeLength is the number of digits in an emailed code.
const CodeLength = 6

var (
	ErrBusy              = errors.New("a request is already in progress")
	ErrInvalidTransition = errors.New("that form is not reachable from here")
	ErrNothingToResend   = errors.New("there is no code to resend")
)

// =============================================================================
// COLLABORATOR
// =============================================================================

// Auth is the session provider as seen by the sign-in screen.
type Auth interface {
	SignIn(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password, name string) (needsConfirmation bool, err error)
	ResetPassword(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string, typ identity.OTPType) error
	ResendOTP(ctx context.Context, email string, typ identity.OTPType) error
	UpdatePassword(ctx context.Context, password string) error
	SignOut(ctx context.Context) error
	SetPasswordResetInProgress(v bool)
	SendMagicLink(ctx context.Context, email string) error
	OAuthURL(provider string) string
}

// Form carries the fields of a submission. Unused fields are ignored.
type Form struct {
	Email    string
	Password string
	Confirm  string
	Name     string
	Code     string
}

// =============================================================================
// MACHINE
// =============================================================================

// Machine is the sign-in screen state. It is safe for concurrent use: the
// TUI submits from a command goroutine while rendering from its loop.
type Machine struct {
	auth    Auth
	variant Variant

	mu           sync.Mutex
	mode         Mode
	pendingEmail string
	resetEmail   string
	errText      string
	message      string
	busy         bool
}

// New creates a machine in the variant's initial mode.
func New(auth Auth, variant Variant) *Machine {
	m := &Machine{auth: auth, variant: variant}
	m.mode = m.initial()
	return m
}

func (m *Machine) initial() Mode {
	if m.variant == VariantPasswordless {
		return ModeEmail
	}
	return ModeLogin
}

// State is a copy of the machine for rendering.
type State struct {
	Variant      Variant
	Mode         Mode
	PendingEmail string
	ResetEmail   string
	Error        string
	Message      string
	Busy         bool
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Variant:      m.variant,
		Mode:         m.mode,
		PendingEmail: m.pendingEmail,
		ResetEmail:   m.resetEmail,
		Error:        m.errText,
		Message:      m.message,
		Busy:         m.busy,
	}
}

// Mode returns the form currently shown.
func (m *Machine) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// SwitchTo handles an explicit user switch between forms.
func (m *Machine) SwitchTo(target Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return ErrBusy
	}
	if !m.userReachable(target) {
		return ErrInvalidTransition
	}
	m.transitionLocked(target)
	return nil
}

func (m *Machine) userReachable(target Mode) bool {
	if m.variant == VariantPasswordless {
		return target == ModeEmail
	}
	switch target {
	case ModeLogin:
		return true
	case ModeSignup, ModeForgot:
		return m.mode != ModeResetDone
	default:
		return false
	}
}

// Acknowledge leaves the terminal reset-done form for the login form.
func (m *Machine) Acknowledge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mode == ModeResetDone {
		m.resetEmail = ""
		m.transitionLocked(ModeLogin)
	}
}

// transitionLocked changes form and clears error and status text.
func (m *Machine) transitionLocked(target Mode) {
	m.mode = target
	m.errText = ""
	m.message = ""
}

// OAuthURL returns the browser URL for provider sign-in. Only the
// passwordless screen offers it.
func (m *Machine) OAuthURL(provider string) (string, error) {
	if m.variant != VariantPasswordless {
		return "", ErrInvalidTransition
	}
	return m.auth.OAuthURL(provider), nil
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates f for the current form and performs its request. The
// returned error, when set, is also shown as the form's error line.
func (m *Machine) Submit(ctx context.Context, f Form) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	mode := m.mode
	pending, resetEmail := m.pendingEmail, m.resetEmail
	m.busy = true
	m.errText = ""
	m.message = ""
	m.mu.Unlock()

	next, err := m.submit(ctx, mode, pending, resetEmail, f)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if err != nil {
		m.errText = err.Error()
		return err
	}
	if next.mode != "" {
		m.transitionLocked(next.mode)
	}
	if next.pendingEmail != "" {
		m.pendingEmail = next.pendingEmail
	}
	if next.resetEmail != "" {
		m.resetEmail = next.resetEmail
	}
	m.message = next.message
	return nil
}

// outcome is what a successful submission changes.
type outcome struct {
	mode         Mode
	pendingEmail string
	resetEmail   string
	message      string
}

func (m *Machine) submit(ctx context.Context, mode Mode, pending, resetEmail string, f Form) (outcome, error) {
	email := strings.TrimSpace(f.Email)

	switch mode {
	case ModeLogin:
		if err := requireCredentials(email, f.Password); err != nil {
			return outcome{}, err
		}
		return outcome{}, m.auth.SignIn(ctx, email, f.Password)

	case ModeSignup:
		if email == "" {
			return outcome{}, &ValidationError{MsgEmailRequired}
		}
		if err := ValidatePasswords(f.Password, f.Confirm); err != nil {
			return outcome{}, err
		}
		needs, err := m.auth.SignUp(ctx, email, f.Password, f.Name)
		if err != nil {
			return outcome{}, err
		}
		if !needs {
			return outcome{}, nil
		}
		return outcome{mode: ModeVerify, pendingEmail: email}, nil

	case ModeForgot:
		if email == "" {
			return outcome{}, &ValidationError{MsgEmailRequired}
		}
		if err := m.auth.ResetPassword(ctx, email); err != nil {
			return outcome{}, err
		}
		return outcome{mode: ModeReset, resetEmail: email}, nil

	case ModeVerify:
		code, err := ValidateCode(f.Code)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, m.auth.VerifyOTP(ctx, pending, code, identity.OTPSignup)

	case ModeReset:
		code, err := ValidateCode(f.Code)
		if err != nil {
			return outcome{}, err
		}
		if err := ValidatePasswords(f.Password, f.Confirm); err != nil {
			return outcome{}, err
		}
		if err := m.resetPassword(ctx, resetEmail, code, f.Password); err != nil {
			return outcome{}, err
		}
		return outcome{mode: ModeResetDone, message: MsgResetComplete}, nil

	case ModeResetDone:
		return outcome{mode: ModeLogin}, nil

	case ModeEmail:
		if email == "" {
			return outcome{}, &ValidationError{MsgEmailRequired}
		}
		if err := m.auth.SendMagicLink(ctx, email); err != nil {
			return outcome{}, err
		}
		return outcome{mode: ModeCode, pendingEmail: email, message: MsgMagicLinkSent}, nil

	case ModeCode:
		code, err := ValidateCode(f.Code)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, m.auth.VerifyOTP(ctx, pending, code, identity.OTPEmail)
	}
	return outcome{}, ErrInvalidTransition
}

// resetPassword verifies the recovery code, which signs the user in, sets
// the new password and signs out again. The in-progress flag keeps the rest
// of the client on the sign-in screen meanwhile.
func (m *Machine) resetPassword(ctx context.Context, email, code, password string) error {
	m.auth.SetPasswordResetInProgress(true)
	defer m.auth.SetPasswordResetInProgress(false)

	if err := m.auth.VerifyOTP(ctx, email, code, identity.OTPRecovery); err != nil {
		return err
	}
	if err := m.auth.UpdatePassword(ctx, password); err != nil {
		return err
	}
	return m.auth.SignOut(ctx)
}

// Resend sends a fresh code for the current form.
func (m *Machine) Resend(ctx context.Context) error {
	m.mu.Lock()
	if m.busy {
		m.mu.Unlock()
		return ErrBusy
	}
	mode, pending, resetEmail := m.mode, m.pendingEmail, m.resetEmail
	m.busy = true
	m.errText = ""
	m.message = ""
	m.mu.Unlock()

	var err error
	switch mode {
	case ModeVerify:
		err = m.auth.ResendOTP(ctx, pending, identity.OTPSignup)
	case ModeReset:
		err = m.auth.ResetPassword(ctx, resetEmail)
	case ModeCode:
		err = m.auth.SendMagicLink(ctx, pending)
	default:
		err = ErrNothingToResend
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	if err != nil {
		m.errText = err.Error()
		return err
	}
	m.message = MsgCodeResent
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// SanitizeCode keeps the digits of s, at most CodeLength of them.
func SanitizeCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
			if b.Len() == CodeLength {
				break
			}
		}
	}
	return b.String()
}

// ValidateCode returns the sanitized code or a ValidationError.
func ValidateCode(s string) (string, error) {
	code := SanitizeCode(s)
	if len(code) != CodeLength {
		return "", &ValidationError{MsgCodeLength}
	}
	return code, nil
}

// ValidatePasswords checks a new password and its confirmation.
func ValidatePasswords(password, confirm string) error {
	if password != confirm {
		return &ValidationError{MsgPasswordMismatch}
	}
	if len([]rune(password)) < MinPasswordLength {
		return &ValidationError{MsgPasswordShort}
	}
	return nil
}

func requireCredentials(email, password string) error {
	if email == "" {
		return &ValidationError{MsgEmailRequired}
	}
	if password == "" {
		return &ValidationError{MsgPasswordRequired}
	}
	return nil
}
