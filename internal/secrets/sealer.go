// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secrets seals small values (API keys) before they reach the local
// store.
//
// Values are encrypted with XChaCha20-Poly1305 under a key derived by HKDF
// from a random master secret kept in a 0600 file next to the database.
// Sealed values carry the ENC: prefix; unprefixed values pass through Open
// unchanged so stores written before sealing was enabled stay readable.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/arkiv-tui/internal/util"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// SealedPrefix marks a sealed value (format: ENC:base64(nonce|ciphertext|tag)).
const SealedPrefix = "ENC:"

// MasterSize is the length of the master secret in bytes.
const MasterSize = 32

const hkdfInfo = "arkiv local store v1"

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	ErrDecryptionFailed  = errors.New("decryption failed: authentication tag mismatch")
	ErrInvalidMaster     = errors.New("master secret must be 32 bytes")
)

// Sealer encrypts and decrypts values. It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New derives a Sealer from a 32-byte master secret.
func New(master []byte) (*Sealer, error) {
	if len(master) != MasterSize {
		return nil, ErrInvalidMaster
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer zero(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadOrCreate reads the master secret at path, creating it with fresh
// random bytes when missing.
func LoadOrCreate(path string) (*Sealer, error) {
	master, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		master = make([]byte, MasterSize)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("generate master secret: %w", err)
		}
		if err := util.AtomicWriteFile(path, master, 0600); err != nil {
			return nil, fmt.Errorf("write master secret: %w", err)
		}
	default:
		return nil, fmt.Errorf("read master secret: %w", err)
	}
	defer zero(master)
	return New(master)
}

// Seal encrypts plaintext and returns the ENC: encoded form.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, plaintext, nil)
	return SealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the ENC: prefix are returned as-is.
func (s *Sealer) Open(value string) ([]byte, error) {
	if !IsSealed(value) {
		return []byte(value), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	ns := s.aead.NonceSize()
	if len(data) < ns+s.aead.Overhead() {
		return nil, ErrInvalidCiphertext
	}
	plaintext, err := s.aead.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// IsSealed reports whether value carries the ENC: prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
