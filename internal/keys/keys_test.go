// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package keys

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/events"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/secrets"
)

type fakeVerifier struct {
	mu      sync.Mutex
	calls   []string
	invalid map[string]bool
}

func (f *fakeVerifier) VerifyKey(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if f.invalid[key] {
		return &api.APIError{Status: 400, Detail: "Invalid Key: API key not valid"}
	}
	return nil
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newManager(t *testing.T, opts ...Option) (*Manager, *fakeVerifier, localstore.Store) {
	t.Helper()
	store := localstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	v := &fakeVerifier{invalid: map[string]bool{}}
	return NewManager(store, v, opts...), v, store
}

func TestAddVerifiesAndPersists(t *testing.T) {
	ctx := context.Background()
	m, v, store := newManager(t)

	k, err := m.Add(ctx, "  AIzaSy-key-one  ")
	require.NoError(t, err)
	assert.Equal(t, "AIzaSy-key-one", k.Key)
	assert.NotEmpty(t, k.ID)
	assert.False(t, k.CreatedAt.IsZero())
	assert.Equal(t, []string{"AIzaSy-key-one"}, v.calls)

	raw, ok, err := store.Get(ctx, localstore.SavedKeysKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "AIzaSy-key-one")
	assert.Contains(t, raw, `"createdAt"`)
}

func TestAddRejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	m, v, _ := newManager(t)
	v.invalid["bad"] = true

	_, err := m.Add(ctx, "bad")
	require.ErrorIs(t, err, ErrInvalidKey)
	assert.Equal(t, "Invalid API Key", err.Error())

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddEmptyKey(t *testing.T) {
	m, v, _ := newManager(t)
	_, err := m.Add(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyKey)
	assert.Zero(t, v.callCount())
}

func TestAddLimitSkipsNetwork(t *testing.T) {
	ctx := context.Background()
	m, v, _ := newManager(t)
	for _, k := range []string{"k1", "k2", "k3"} {
		_, err := m.Add(ctx, k)
		require.NoError(t, err)
	}
	require.Equal(t, 3, v.callCount())

	_, err := m.Add(ctx, "k4")
	require.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, 3, v.callCount(), "limit must be checked before verifying")

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, MaxKeys)
}

func TestSelectAndActiveKey(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)
	k1, err := m.Add(ctx, "k1")
	require.NoError(t, err)
	_, err = m.Add(ctx, "k2")
	require.NoError(t, err)

	active, err := m.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, active, "default key until one is selected")

	require.NoError(t, m.Select(ctx, k1.Key))
	active, err = m.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "k1", active)

	require.ErrorIs(t, m.Select(ctx, "never-stored"), ErrUnknownSelect)

	require.NoError(t, m.SelectRef(ctx, "2"))
	active, _ = m.ActiveKey(ctx)
	assert.Equal(t, "k2", active)

	require.NoError(t, m.SelectRef(ctx, "default"))
	active, _ = m.ActiveKey(ctx)
	assert.Empty(t, active)

	require.ErrorIs(t, m.SelectRef(ctx, "9"), ErrKeyNotFound)
}

func TestDeleteActiveKeyResetsSelection(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t)
	k1, _ := m.Add(ctx, "k1")
	k2, _ := m.Add(ctx, "k2")
	require.NoError(t, m.Select(ctx, k2.Key))

	require.NoError(t, m.Delete(ctx, k1.ID))
	active, _ := m.ActiveKey(ctx)
	assert.Equal(t, "k2", active, "deleting another key keeps the selection")

	require.NoError(t, m.Delete(ctx, k2.ID))
	active, _ = m.ActiveKey(ctx)
	assert.Empty(t, active)

	require.ErrorIs(t, m.Delete(ctx, k2.ID), ErrKeyNotFound)
}

func TestTestDoesNotChangeSelection(t *testing.T) {
	ctx := context.Background()
	m, v, _ := newManager(t)
	k1, _ := m.Add(ctx, "k1")

	require.NoError(t, m.Test(ctx, k1.ID))
	active, _ := m.ActiveKey(ctx)
	assert.Empty(t, active)

	v.invalid["k1"] = true
	require.ErrorIs(t, m.Test(ctx, k1.ID), ErrInvalidKey)
	require.ErrorIs(t, m.Test(ctx, "missing"), ErrKeyNotFound)
}

func TestChangesArePublished(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus[Change]()
	m, _, _ := newManager(t, WithBus(bus))

	var got []Change
	unsubscribe := bus.Subscribe(func(c Change) {
		// Subscribers may read back without deadlocking.
		_, err := m.List(ctx)
		assert.NoError(t, err)
		got = append(got, c)
	})
	defer unsubscribe()

	k1, err := m.Add(ctx, "k1")
	require.NoError(t, err)
	require.NoError(t, m.Select(ctx, "k1"))
	require.NoError(t, m.Delete(ctx, k1.ID))

	require.Len(t, got, 3)
	assert.Len(t, got[0].Keys, 1)
	assert.Equal(t, -1, got[0].ActiveIndex())
	assert.Equal(t, 0, got[1].ActiveIndex())
	assert.Empty(t, got[2].Keys)
	assert.Empty(t, got[2].Active)
}

func TestKeysSealedAtRest(t *testing.T) {
	ctx := context.Background()
	sealer, err := secrets.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	m, _, store := newManager(t, WithSealer(sealer))

	_, err = m.Add(ctx, "super-secret-key")
	require.NoError(t, err)
	require.NoError(t, m.Select(ctx, "super-secret-key"))

	raw, _, err := store.Get(ctx, localstore.SavedKeysKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "super-secret-key")
	assert.True(t, strings.Contains(raw, "ENC:"))

	sel, _, err := store.Get(ctx, localstore.ActiveKeyKey)
	require.NoError(t, err)
	assert.True(t, secrets.IsSealed(sel))

	active, err := m.ActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "super-secret-key", active)

	// A manager without the sealer cannot read the sealed values.
	plain := NewManager(store, &fakeVerifier{})
	list, err := plain.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnreadableKeysSurviveWrites(t *testing.T) {
	ctx := context.Background()
	sealer, err := secrets.New(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	sealed, v, store := newManager(t, WithSealer(sealer))
	for _, k := range []string{"k1", "k2", "k3"} {
		_, err := sealed.Add(ctx, k)
		require.NoError(t, err)
	}

	// Encryption switched off, or the master file lost.
	plain := NewManager(store, v)
	calls := v.callCount()
	_, err = plain.Add(ctx, "k4")
	require.ErrorIs(t, err, ErrLimitReached)
	assert.Equal(t, calls, v.callCount(), "limit is checked before verifying")

	list, err := sealed.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// Deleting a readable key leaves the sealed ones in place.
	_, err = plain.Add(ctx, "x")
	require.ErrorIs(t, err, ErrLimitReached)
	require.NoError(t, sealed.Delete(ctx, list[0].ID))
	k4, err := plain.Add(ctx, "k4")
	require.NoError(t, err)
	require.NoError(t, plain.Delete(ctx, k4.ID))

	list, err = sealed.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "k2", list[0].Key)
	assert.Equal(t, "k3", list[1].Key)
}

func TestVerifyCancellationIsNotInvalidKey(t *testing.T) {
	store := localstore.NewMemory()
	defer store.Close()
	m := NewManager(store, verifierFunc(func(ctx context.Context, key string) error {
		return context.Canceled
	}))
	_, err := m.Add(context.Background(), "k1")
	require.True(t, errors.Is(err, context.Canceled))
}

type verifierFunc func(ctx context.Context, key string) error

func (f verifierFunc) VerifyKey(ctx context.Context, key string) error { return f(ctx, key) }
