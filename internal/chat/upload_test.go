// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

// =============================================================================
// STAGING
// =============================================================================

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	pdf := writeFile(t, dir, "report.PDF", "%PDF-1.4\n%fake\n")
	notes := writeFile(t, dir, "notes.md", "# Notes\n")
	exe := writeFile(t, dir, "tool.exe", "MZ")
	plain := writeFile(t, dir, "README", "just some plain text\n")
	binary := writeFile(t, dir, "blob", string([]byte{0x00, 0x01, 0x02, 0xff, 0xfe, 0x00}))
	jfif := writeFile(t, dir, "photo.jfif", jpegBytes)
	fakeJPEG := writeFile(t, dir, "notes.jfif", "not really a picture\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.pdf"), 0o700))

	tests := []struct {
		path string
		want bool
	}{
		{pdf, true},
		{notes, true},
		{exe, false},
		{plain, true},
		{binary, false},
		{jfif, true},
		{fakeJPEG, false},
		{filepath.Join(dir, "folder.pdf"), false},
		{filepath.Join(dir, "missing.txt"), false},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			f, ok := Inspect(tt.path)
			assert.Equal(t, tt.want, ok)
			if ok {
				assert.Equal(t, filepath.Base(tt.path), f.Name)
				assert.Positive(t, f.Size)
			}
		})
	}
}

// Start of a baseline JPEG with a JFIF APP0 segment.
const jpegBytes = "\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00\xff\xdb"

func TestInspectSniffsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t)
	photo := writeFile(t, dir, "photo.jfif", jpegBytes)

	f, ok := Inspect(photo)
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", f.MIME)

	added := h.store.StageFiles(photo)
	require.Len(t, added, 1)
	assert.Equal(t, "photo.jfif", h.store.Snapshot().Staged[0].Name)
}

func TestStageSamePathRefreshesEntry(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t)
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.txt", "beta")
	require.Len(t, h.store.StageFiles(a, b), 2)

	// The file grows after it was first staged.
	writeFile(t, dir, "a.txt", "alpha, now complete")
	added := h.store.StageFiles(a)
	require.Len(t, added, 1)

	staged := h.store.Snapshot().Staged
	require.Len(t, staged, 2)
	assert.Equal(t, "a.txt", staged[0].Name)
	assert.Equal(t, int64(len("alpha, now complete")), staged[0].Size)
	assert.Equal(t, "b.txt", staged[1].Name)
}

func TestStageUnstageClear(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t)
	a := writeFile(t, dir, "a.txt", "alpha")
	b := writeFile(t, dir, "b.csv", "x,y\n1,2\n")
	bad := writeFile(t, dir, "c.zip", "PK")

	added := h.store.StageFiles(a, bad, b)
	require.Len(t, added, 2)
	snap := h.store.Snapshot()
	require.Len(t, snap.Staged, 2)
	assert.Equal(t, "a.txt", snap.Staged[0].Name)
	assert.Equal(t, "b.csv", snap.Staged[1].Name)

	require.NoError(t, h.store.Unstage(0))
	assert.Equal(t, "b.csv", h.store.Snapshot().Staged[0].Name)
	require.ErrorIs(t, h.store.Unstage(5), ErrNoSuchFile)

	require.NoError(t, h.store.ClearStaged())
	assert.Empty(t, h.store.Snapshot().Staged)
	assert.Nil(t, h.store.StageFiles(bad))
}

// =============================================================================
// UPLOAD
// =============================================================================

func TestUploadNothingStaged(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.Upload(context.Background())
	require.ErrorIs(t, err, ErrNothingStaged)
}

func TestUploadSuccess(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tracker := NewStatsTracker(nil)
	h := newHarness(t, WithStats(tracker))
	h.store.StageFiles(writeFile(t, dir, "a.txt", "alpha"), writeFile(t, dir, "b.md", "# beta"))

	res, err := h.store.Upload(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ChunksCreated)

	snap := h.store.Snapshot()
	assert.Empty(t, snap.Staged)
	assert.Equal(t, []string{"a.txt", "b.md"}, snap.Processed)
	assert.True(t, snap.Ready)
	assert.Equal(t, 3*TokensPerChunk, snap.Tokens)
	assert.False(t, snap.Uploading)
	assert.Equal(t, "alpha", h.backend.uploaded["a.txt"])

	ready, err := localstore.GetBool(ctx, h.kv, localstore.ReadyKey("user-1"))
	require.NoError(t, err)
	assert.True(t, ready)

	saved, err := h.index.Get(ctx, snap.ChatID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultTitle, saved.Title)
	assert.Equal(t, []string{"a.txt", "b.md"}, saved.Files)

	assert.Equal(t, api.StatsDelta{FilesDelta: 2, TokensDelta: 1500}, tracker.Pending())

	// Readiness survives a reload.
	again, err := NewStore(ctx, h.backend, h.index, h.kv)
	require.NoError(t, err)
	defer again.Close()
	assert.True(t, again.Snapshot().Ready)
}

func TestUploadZeroChunksChargesOne(t *testing.T) {
	h := newHarness(t)
	h.backend.upload = &api.UploadResult{FilesProcessed: []string{"a.txt"}}
	h.store.StageFiles(writeFile(t, t.TempDir(), "a.txt", "alpha"))

	_, err := h.store.Upload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TokensPerChunk, h.store.Snapshot().Tokens)
}

func TestUploadFailureKeepsStaged(t *testing.T) {
	h := newHarness(t)
	h.backend.uploadEr = &api.APIError{Status: 413, Detail: "File too large"}
	h.store.StageFiles(writeFile(t, t.TempDir(), "a.txt", "alpha"))

	_, err := h.store.Upload(context.Background())
	require.Error(t, err)
	assert.Equal(t, "File too large", err.Error())

	snap := h.store.Snapshot()
	assert.Len(t, snap.Staged, 1)
	assert.Empty(t, snap.Processed)
	assert.False(t, snap.Ready)
	assert.False(t, snap.Uploading)
}

// =============================================================================
// RESET
// =============================================================================

func TestResetChatScope(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.ErrorIs(t, h.store.ResetKnowledgeBase(ctx, ScopeChat), ErrNoActiveChat)

	h.store.StageFiles(writeFile(t, t.TempDir(), "a.txt", "alpha"))
	_, err := h.store.Upload(ctx)
	require.NoError(t, err)
	id := h.store.Snapshot().ChatID

	require.NoError(t, h.store.ResetKnowledgeBase(ctx, ScopeChat))
	snap := h.store.Snapshot()
	assert.Empty(t, snap.Processed)
	assert.True(t, snap.Ready, "chat scope keeps readiness")
	assert.Equal(t, []model.ChatID{id}, h.backend.clearCalls())

	saved, err := h.index.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, saved.Files)
}

func TestResetChatScopeFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, err := h.store.Send(ctx, "hello")
	require.NoError(t, err)
	id := h.store.Snapshot().ChatID
	h.backend.clearErr[id] = &api.APIError{Status: 500, Detail: "Failed to clear data"}

	require.Error(t, h.store.ResetKnowledgeBase(ctx, ScopeChat))
}

func TestResetGlobal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.index.Save(ctx, model.Chat{ID: 10, Title: "a"}))
	require.NoError(t, h.index.Save(ctx, model.Chat{ID: 20, Title: "b"}))
	require.NoError(t, localstore.SetBool(ctx, h.kv, localstore.ReadyKey("user-1"), true))
	require.NoError(t, h.store.Reload(ctx))
	require.NoError(t, h.store.LoadChatID(ctx, 20))
	h.backend.clearErr[10] = errors.New("one call fails")

	require.NoError(t, h.store.ResetKnowledgeBase(ctx, ScopeGlobal))

	assert.Equal(t, []model.ChatID{0, 10, 20}, h.backend.clearCalls())
	snap := h.store.Snapshot()
	assert.Empty(t, snap.History)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Ready)
	assert.True(t, snap.ChatID.IsZero())

	chats, err := h.index.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)
	ready, err := localstore.GetBool(ctx, h.kv, localstore.ReadyKey("user-1"))
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestResetGlobalIncludesUnsavedActiveChat(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.backend.askErr = errors.New("offline")
	_, err := h.store.Send(ctx, "never saved")
	require.NoError(t, err)
	id := h.store.Snapshot().ChatID

	require.NoError(t, h.store.ResetKnowledgeBase(ctx, ScopeGlobal))
	assert.Equal(t, []model.ChatID{0, id}, h.backend.clearCalls())
}

func TestResetGlobalCancelled(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.index.Save(context.Background(), model.Chat{ID: 10, Title: "a"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, h.store.ResetKnowledgeBase(ctx, ScopeGlobal), context.Canceled)
	chats, err := h.index.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, chats, 1, "history kept when the reset was abandoned")
}
