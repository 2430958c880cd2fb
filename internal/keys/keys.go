// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package keys manages the user's own model API keys (bring your own key).
//
// Up to MaxKeys keys are kept in the local store. A key is verified with the
// backend before it is stored. One stored key, or none for the backend's
// default, is selected at a time; the selection travels with every backend
// request as the X-Custom-Api-Key header.
package keys

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/events"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
	"github.com/jeranaias/arkiv-tui/internal/secrets"
)

// MaxKeys is the number of keys a user can store.
const MaxKeys = 3

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrEmptyKey      = errors.New("API key must not be empty")
	ErrLimitReached  = fmt.Errorf("Limit Reached (%d/%d)", MaxKeys, MaxKeys)
	ErrKeyNotFound   = errors.New("API key not found")
	ErrInvalidKey    = errors.New(api.MsgInvalidKey)
	ErrUnknownSelect = errors.New("selected key is not stored")
)

// =============================================================================
// TYPES
// =============================================================================

// Verifier checks a key with the backend.
type Verifier interface {
	VerifyKey(ctx context.Context, key string) error
}

// Change is published whenever the stored keys or the selection change.
type Change struct {
	Keys   []model.APIKey
	Active string
}

// ActiveIndex returns the position of the selected key in Keys, or -1 when
// the default key is in use.
func (c Change) ActiveIndex() int {
	for i, k := range c.Keys {
		if k.Key == c.Active {
			return i
		}
	}
	return -1
}

// Manager owns the stored keys.
type Manager struct {
	store    localstore.Store
	verifier Verifier
	sealer   *secrets.Sealer
	bus      *events.Bus[Change]
	log      zerolog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithSealer encrypts keys at rest.
func WithSealer(s *secrets.Sealer) Option {
	return func(m *Manager) { m.sealer = s }
}

// WithBus publishes changes on a shared bus.
func WithBus(b *events.Bus[Change]) Option {
	return func(m *Manager) { m.bus = b }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "keys").Logger() }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager.
func NewManager(store localstore.Store, verifier Verifier, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		verifier: verifier,
		log:      zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = events.NewBus[Change]()
	}
	return m
}

// Subscribe registers fn for key changes.
func (m *Manager) Subscribe(fn func(Change)) (unsubscribe func()) {
	return m.bus.Subscribe(fn)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// List returns the stored keys in insertion order.
func (m *Manager) List(ctx context.Context) ([]model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, err := m.load(ctx)
	return ring.keys, err
}

// Add verifies key with the backend and stores it. The limit is checked
// before any request is made.
func (m *Manager) Add(ctx context.Context, key string) (model.APIKey, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return model.APIKey{}, ErrEmptyKey
	}

	m.mu.Lock()
	ring, err := m.load(ctx)
	m.mu.Unlock()
	if err != nil {
		return model.APIKey{}, err
	}
	if ring.count() >= MaxKeys {
		return model.APIKey{}, ErrLimitReached
	}

	if err := m.verify(ctx, key); err != nil {
		return model.APIKey{}, err
	}

	var change *Change
	defer m.publish(&change)
	m.mu.Lock()
	defer m.mu.Unlock()
	// Re-read: another Add may have finished while verifying.
	ring, err = m.load(ctx)
	if err != nil {
		return model.APIKey{}, err
	}
	if ring.count() >= MaxKeys {
		return model.APIKey{}, ErrLimitReached
	}
	added := model.APIKey{
		ID:        uuid.NewString(),
		Key:       key,
		CreatedAt: m.now().UTC(),
	}
	ring.keys = append(ring.keys, added)
	if err := m.save(ctx, ring); err != nil {
		return model.APIKey{}, err
	}
	m.log.Info().Str("key", added.Fingerprint()).Msg("api key added")
	change = m.changeLocked(ctx, ring.keys)
	return added, nil
}

// Delete removes the key with id. Deleting the selected key switches back
// to the default key.
func (m *Manager) Delete(ctx context.Context, id string) error {
	var change *Change
	defer m.publish(&change)
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, err := m.load(ctx)
	if err != nil {
		return err
	}
	idx := indexOf(ring.keys, id)
	if idx < 0 {
		return ErrKeyNotFound
	}
	removed := ring.keys[idx]
	ring.keys = append(ring.keys[:idx:idx], ring.keys[idx+1:]...)
	if err := m.save(ctx, ring); err != nil {
		return err
	}

	active, err := m.activeLocked(ctx)
	if err != nil {
		return err
	}
	if active == removed.Key {
		if err := m.store.Delete(ctx, localstore.ActiveKeyKey); err != nil {
			return fmt.Errorf("reset key selection: %w", err)
		}
	}
	m.log.Info().Str("key", removed.Fingerprint()).Msg("api key removed")
	change = m.changeLocked(ctx, ring.keys)
	return nil
}

// Test re-verifies a stored key. It never changes the selection.
func (m *Manager) Test(ctx context.Context, id string) error {
	k, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return m.verify(ctx, k.Key)
}

// Get returns the stored key with id.
func (m *Manager) Get(ctx context.Context, id string) (model.APIKey, error) {
	list, err := m.List(ctx)
	if err != nil {
		return model.APIKey{}, err
	}
	if i := indexOf(list, id); i >= 0 {
		return list[i], nil
	}
	return model.APIKey{}, ErrKeyNotFound
}

// Select makes key the active key. The empty string selects the backend's
// default key; any other value must be a stored key.
func (m *Manager) Select(ctx context.Context, key string) error {
	var change *Change
	defer m.publish(&change)
	m.mu.Lock()
	defer m.mu.Unlock()

	ring, err := m.load(ctx)
	if err != nil {
		return err
	}
	list := ring.keys
	if key == "" {
		if err := m.store.Delete(ctx, localstore.ActiveKeyKey); err != nil {
			return fmt.Errorf("select default key: %w", err)
		}
	} else {
		found := false
		for _, k := range list {
			if k.Key == key {
				found = true
				break
			}
		}
		if !found {
			return ErrUnknownSelect
		}
		value, err := m.seal(key)
		if err != nil {
			return err
		}
		if err := m.store.Set(ctx, localstore.ActiveKeyKey, value); err != nil {
			return fmt.Errorf("select key: %w", err)
		}
	}
	change = m.changeLocked(ctx, list)
	return nil
}

// SelectRef selects by a user-facing reference: "default" (or "0"), a
// 1-based position, or a key id.
func (m *Manager) SelectRef(ctx context.Context, ref string) error {
	k, ok, err := m.Resolve(ctx, ref)
	if err != nil {
		return err
	}
	if !ok {
		return m.Select(ctx, "")
	}
	return m.Select(ctx, k.Key)
}

// Resolve maps a user-facing reference to a stored key. It reports false for
// the default key.
func (m *Manager) Resolve(ctx context.Context, ref string) (model.APIKey, bool, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || ref == "0" || strings.EqualFold(ref, "default") {
		return model.APIKey{}, false, nil
	}
	list, err := m.List(ctx)
	if err != nil {
		return model.APIKey{}, false, err
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(list) {
			return model.APIKey{}, false, ErrKeyNotFound
		}
		return list[n-1], true, nil
	}
	if i := indexOf(list, ref); i >= 0 {
		return list[i], true, nil
	}
	return model.APIKey{}, false, ErrKeyNotFound
}

// ActiveKey returns the selected key, or "" for the default. It implements
// api.KeySource.
func (m *Manager) ActiveKey(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeLocked(ctx)
}

// State returns the stored keys together with the selection.
func (m *Manager) State(ctx context.Context) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ring, err := m.load(ctx)
	if err != nil {
		return Change{}, err
	}
	active, err := m.activeLocked(ctx)
	if err != nil {
		return Change{}, err
	}
	return Change{Keys: ring.keys, Active: active}, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (m *Manager) verify(ctx context.Context, key string) error {
	if err := m.verifier.VerifyKey(ctx, key); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		m.log.Warn().Err(err).Str("key", model.KeyFingerprint(key)).Msg("api key rejected")
		return ErrInvalidKey
	}
	return nil
}

func (m *Manager) activeLocked(ctx context.Context) (string, error) {
	raw, ok, err := m.store.Get(ctx, localstore.ActiveKeyKey)
	if err != nil || !ok {
		return "", err
	}
	key, err := m.open(raw)
	if err != nil {
		m.log.Warn().Err(err).Msg("unreadable key selection, using default")
		return "", nil
	}
	return key, nil
}

func (m *Manager) changeLocked(ctx context.Context, list []model.APIKey) *Change {
	active, _ := m.activeLocked(ctx)
	return &Change{Keys: append([]model.APIKey(nil), list...), Active: active}
}

// publish delivers *change, if set, once the caller has released the lock
// so subscribers may call back into the Manager.
func (m *Manager) publish(change **Change) {
	if *change != nil {
		m.bus.Publish(**change)
	}
}

// keyring is the stored list split into keys this Manager can open and
// entries sealed with a secret it does not have. Locked entries are written
// back unchanged and count toward MaxKeys.
type keyring struct {
	keys   []model.APIKey
	locked []model.APIKey
}

func (r keyring) count() int { return len(r.keys) + len(r.locked) }

func (m *Manager) load(ctx context.Context) (keyring, error) {
	var stored []model.APIKey
	if _, err := localstore.GetJSON(ctx, m.store, localstore.SavedKeysKey, &stored); err != nil {
		return keyring{}, err
	}
	ring := keyring{keys: make([]model.APIKey, 0, len(stored))}
	for _, k := range stored {
		plain, err := m.open(k.Key)
		if err != nil {
			m.log.Warn().Err(err).Str("id", k.ID).Msg("unreadable api key kept as is")
			ring.locked = append(ring.locked, k)
			continue
		}
		k.Key = plain
		ring.keys = append(ring.keys, k)
	}
	return ring, nil
}

func (m *Manager) save(ctx context.Context, ring keyring) error {
	stored := make([]model.APIKey, 0, ring.count())
	for _, k := range ring.keys {
		sealed, err := m.seal(k.Key)
		if err != nil {
			return err
		}
		k.Key = sealed
		stored = append(stored, k)
	}
	stored = append(stored, ring.locked...)
	if err := localstore.SetJSON(ctx, m.store, localstore.SavedKeysKey, stored); err != nil {
		return fmt.Errorf("save api keys: %w", err)
	}
	return nil
}

func (m *Manager) seal(key string) (string, error) {
	if m.sealer == nil {
		return key, nil
	}
	return m.sealer.Seal([]byte(key))
}

func (m *Manager) open(value string) (string, error) {
	if m.sealer == nil {
		if secrets.IsSealed(value) {
			return "", secrets.ErrDecryptionFailed
		}
		return value, nil
	}
	plain, err := m.sealer.Open(value)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func indexOf(list []model.APIKey, id string) int {
	for i, k := range list {
		if k.ID == id {
			return i
		}
	}
	return -1
}
