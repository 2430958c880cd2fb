// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error types, exit codes and error display for arkiv commands.
//
// Handlers always return errors and never print them; Execute displays the
// error once (as JSON in --json mode) and maps it to an exit code.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/identity"
	"github.com/jeranaias/arkiv-tui/internal/keys"
	"github.com/jeranaias/arkiv-tui/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	// ExitUsageError: bad arguments or invalid input.
	ExitUsageError = 2
	// ExitConfigError: unreadable or invalid configuration.
	ExitConfigError = 3
	// ExitAuthError: not signed in, or credentials rejected.
	ExitAuthError = 4
	// ExitNetworkError: backend or identity provider unreachable.
	ExitNetworkError = 5
	// ExitCancelled: the user declined a confirmation prompt.
	ExitCancelled = 6
	// ExitNotFoundError: unknown chat or key.
	ExitNotFoundError = 7
	// ExitTimeoutError: a request timed out.
	ExitTimeoutError = 8
)

// ErrNotSignedIn is returned by commands that need a session.
var ErrNotSignedIn = errors.New("not signed in; run 'arkiv login' first")

// ErrCancelled is returned when a confirmation prompt is declined.
var ErrCancelled = errors.New("cancelled")

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a failed command action with its cause.
type CommandError struct {
	Command string
	Action  string
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// UsageError is a malformed command line. Hint is printed under the message.
type UsageError struct {
	Message string
	Hint    string
}

func (e *UsageError) Error() string {
	return e.Message
}

// NotFoundError is an unknown chat, key or config field.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConfigError wraps configuration load and validation failures.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrMissingArgument reports a missing positional argument.
func ErrMissingArgument(name, usage string) error {
	return &UsageError{
		Message: fmt.Sprintf("missing required argument: %s", name),
		Hint:    "Usage: " + usage,
	}
}

// NewCommandError creates a CommandError.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode maps err to a process exit code.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var (
		usageErr    *UsageError
		validErr    *authflow.ValidationError
		notFoundErr *NotFoundError
		configErr   *ConfigError
		apiErr      *api.APIError
		idErr       *identity.Error
		netErr      net.Error
		urlErr      *url.Error
	)

	switch {
	case errors.As(err, &usageErr), errors.As(err, &validErr):
		return ExitUsageError
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	case errors.As(err, &configErr):
		return ExitConfigError
	case errors.As(err, &notFoundErr),
		errors.Is(err, history.ErrChatNotFound),
		errors.Is(err, keys.ErrKeyNotFound):
		return ExitNotFoundError
	case errors.Is(err, ErrNotSignedIn),
		errors.Is(err, session.ErrNoSession),
		errors.Is(err, session.ErrSessionExpired),
		errors.Is(err, api.ErrUnauthenticated):
		return ExitAuthError
	case errors.As(err, &apiErr) && apiErr.IsUnauthorized():
		return ExitAuthError
	case errors.As(err, &idErr) && (idErr.Status == 400 || idErr.Status == 401 || idErr.Status == 403 || idErr.Status == 422):
		return ExitAuthError
	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	case errors.As(err, &netErr) && netErr.Timeout():
		return ExitTimeoutError
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return ExitNetworkError
	}
	return ExitGeneralError
}

// =============================================================================
// DISPLAY
// =============================================================================

// DisplayError prints err in the human format.
func DisplayError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), api.Detail(err, api.MsgRequestFailed))

	var usageErr *UsageError
	if errors.As(err, &usageErr) && usageErr.Hint != "" {
		fmt.Fprintln(w, DimStyle.Render(usageErr.Hint))
	}
	if errors.Is(err, session.ErrSessionExpired) {
		fmt.Fprintln(w, DimStyle.Render("Run 'arkiv login' to sign in again."))
	}
}
