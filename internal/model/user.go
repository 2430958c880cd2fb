// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// User is the signed-in identity. Only the session provider mutates it.
type User struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	NewEmail string         `json:"new_email,omitempty"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// DisplayName returns display_name, then full_name, then the local part of
// the email address.
func (u User) DisplayName() string {
	for _, key := range []string{"display_name", "full_name"} {
		if v, ok := u.Metadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return u.Email
}

// Initial returns the uppercase first letter of the display name.
func (u User) Initial() string {
	name := []rune(u.DisplayName())
	if len(name) == 0 {
		return "?"
	}
	return strings.ToUpper(string(name[0]))
}

// =============================================================================
// API KEY
// =============================================================================

// APIKey is a user-supplied model API key.
type APIKey struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// Masked hides all but the last four characters of the key.
func (k APIKey) Masked() string {
	return MaskKey(k.Key)
}

// Fingerprint identifies the key in logs without revealing it.
func (k APIKey) Fingerprint() string {
	return KeyFingerprint(k.Key)
}

// MaskKey hides all but the last four characters of key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("•", len(key))
	}
	return "••••••••" + key[len(key)-4:]
}

// KeyFingerprint returns a short SHA-256 prefix of key.
func KeyFingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
