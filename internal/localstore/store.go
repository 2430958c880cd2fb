// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package localstore provides the client's persisted key/value storage.
//
// It plays the role browser localStorage played for the web client: small
// string values under well-known keys, some of them namespaced per user.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrClosed   = errors.New("local store is closed")
	ErrEmptyKey = errors.New("key must not be empty")
)

// =============================================================================
// KEY NAMES
// =============================================================================

const (
	// SavedKeysKey holds the list of user-supplied model API keys.
	SavedKeysKey = "saved_gemini_keys"

	// ActiveKeyKey holds the currently selected API key ("" = default).
	ActiveKeyKey = "custom_api_key_google"

	// SessionKey holds the persisted identity session.
	SessionKey = "auth_session"

	historyPrefix = "chatHistory_"
	readyPrefix   = "indexReady_"
)

// HistoryKey names the chat history list of a user.
func HistoryKey(userID string) string {
	return historyPrefix + userID
}

// ReadyKey names the knowledge-base readiness flag of a user.
func ReadyKey(userID string) string {
	return readyPrefix + userID
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a string key/value store. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists stored keys that start with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// GetJSON decodes the JSON value stored at key into out. It reports false
// when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v at key as JSON.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// GetBool reads a "true"/"false" flag. Missing keys read as false.
func GetBool(ctx context.Context, s Store, key string) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	return raw == "true", nil
}

// SetBool stores a flag as "true" or removes it.
func SetBool(ctx context.Context, s Store, key string, v bool) error {
	if !v {
		return s.Delete(ctx, key)
	}
	return s.Set(ctx, key, "true")
}
