// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no bearer token is available.
	ErrUnauthenticated = errors.New("not signed in")

	// ErrResponseTooLarge is returned when a body exceeds MaxResponseSize.
	ErrResponseTooLarge = errors.New("response too large")
)

// Generic messages used when the backend gives no usable detail.
const (
	MsgRequestFailed = "Request failed"
	MsgUploadFailed  = "Upload failed"
	MsgAskFailed     = "Failed to get an answer"
	MsgStatsFailed   = "Failed to load usage stats"
	MsgInvalidKey    = "Invalid API Key"
	MsgClearFailed   = "Failed to clear data"
	MsgDeleteFailed  = "Failed to delete account"
	MsgConfigFailed  = "Failed to load configuration"
	MsgCancelled     = "Request cancelled"
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Status int
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Detail
}

// IsUnauthorized reports whether the backend rejected the credentials.
func (e *APIError) IsUnauthorized() bool {
	return e.Status == 401 || e.Status == 403
}

// newAPIError builds an APIError from a response body. The backend reports
// failures as {"detail": "..."}; other shapes fall back to the given text.
func newAPIError(status int, body []byte, fallback string) *APIError {
	return &APIError{Status: status, Detail: extractDetail(body, fallback)}
}

func extractDetail(body []byte, fallback string) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback
	}
	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil && strings.TrimSpace(s) != "" {
			return s
		}
		// Validation failures carry a list of {"msg": ...} objects.
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil && len(items) > 0 && items[0].Msg != "" {
			return items[0].Msg
		}
	}
	if payload.Error != "" {
		return payload.Error
	}
	if payload.Message != "" {
		return payload.Message
	}
	return fallback
}

// Detail returns the text a user should see for err: the backend detail for
// an APIError, a cancellation notice, or the error text itself.
func Detail(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Detail != "" {
			return apiErr.Detail
		}
		return fallback
	}
	if errors.Is(err, context.Canceled) {
		return MsgCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out"
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
