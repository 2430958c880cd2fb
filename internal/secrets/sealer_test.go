// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package secrets

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSealRoundTrip(t *testing.T) {
	s, err := New(bytes.Repeat([]byte{7}, MasterSize))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sealed, err := s.Seal([]byte(`[{"key":"AIza-secret"}]`))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "AIza") {
		t.Fatalf("sealed value leaks plaintext: %q", sealed)
	}

	plain, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(plain) != `[{"key":"AIza-secret"}]` {
		t.Errorf("round trip mismatch: %q", plain)
	}
}

func TestSealUsesFreshNonce(t *testing.T) {
	s, _ := New(bytes.Repeat([]byte{1}, MasterSize))
	a, _ := s.Seal([]byte("same"))
	b, _ := s.Seal([]byte("same"))
	if a == b {
		t.Error("two seals of the same plaintext produced identical output")
	}
}

func TestOpenPassesThroughPlainValues(t *testing.T) {
	s, _ := New(bytes.Repeat([]byte{1}, MasterSize))
	plain, err := s.Open("legacy-value")
	if err != nil || string(plain) != "legacy-value" {
		t.Errorf("Open(plain) = %q, %v", plain, err)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	s, _ := New(bytes.Repeat([]byte{1}, MasterSize))
	other, _ := New(bytes.Repeat([]byte{2}, MasterSize))

	sealed, _ := s.Seal([]byte("secret"))
	if _, err := other.Open(sealed); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key: got %v, want ErrDecryptionFailed", err)
	}
	if _, err := s.Open(SealedPrefix + "!!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("bad base64: got %v", err)
	}
	if _, err := s.Open(SealedPrefix + "AAAA"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("short payload: got %v", err)
	}
}

func TestLoadOrCreatePersistsMaster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("master not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("master perms = %v, want 0600", info.Mode().Perm())
	}

	sealed, _ := first.Seal([]byte("value"))
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	plain, err := second.Open(sealed)
	if err != nil || string(plain) != "value" {
		t.Errorf("reloaded sealer cannot open: %q, %v", plain, err)
	}
}

func TestNewRejectsShortMaster(t *testing.T) {
	if _, err := New([]byte("short")); !errors.Is(err, ErrInvalidMaster) {
		t.Errorf("got %v, want ErrInvalidMaster", err)
	}
}
