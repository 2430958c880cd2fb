// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dropzone

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/chat"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
)

type recordingStager struct {
	mu    sync.Mutex
	paths []string
}

func (r *recordingStager) StageFiles(paths ...string) []chat.StagedFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []chat.StagedFile
	for _, p := range paths {
		r.paths = append(r.paths, filepath.Base(p))
		if f, ok := chat.Inspect(p); ok {
			out = append(out, f)
		}
	}
	return out
}

func (r *recordingStager) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestNewCreatesFolder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop")
	w, err := New(dir, &recordingStager{})
	require.NoError(t, err)
	defer w.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, dir, w.Dir())
}

func TestStagesNewFiles(t *testing.T) {
	dir := t.TempDir()
	stager := &recordingStager{}

	var mu sync.Mutex
	var notified []string
	w, err := New(dir, stager, WithDebounce(30*time.Millisecond), WithNotify(func(files []chat.StagedFile) {
		mu.Lock()
		defer mu.Unlock()
		for _, f := range files {
			notified = append(notified, f.Name)
		}
	}))
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf.part"), []byte("x"), 0o600))

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(notified) == 1
	})
	assert.Equal(t, []string{"notes.md"}, notified)
	assert.Equal(t, []string{"notes.md"}, stager.names())
}

func TestRemovedBeforeSettlingIsForgotten(t *testing.T) {
	dir := t.TempDir()
	stager := &recordingStager{}
	w, err := New(dir, stager, WithDebounce(300*time.Millisecond))
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	path := filepath.Join(dir, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("y"), 0o600))

	eventually(t, func() bool { return len(stager.names()) > 0 })
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"kept.txt"}, stager.names())
}

func TestStageExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.csv"), []byte("a,b\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.exe"), []byte("MZ"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	stager := &recordingStager{}
	w, err := New(dir, stager)
	require.NoError(t, err)
	defer w.Close()

	added := w.StageExisting()
	require.Len(t, added, 2)
	assert.Equal(t, "a.csv", added[0].Name)
	assert.Equal(t, "b.txt", added[1].Name)

	// Unchanged files are not staged twice.
	assert.Empty(t, w.StageExisting())
	assert.Equal(t, []string{"a.csv", "b.txt", "c.exe"}, stager.names())
}

// noBackend satisfies chat.Backend for tests that never reach the network.
type noBackend struct{ chat.Backend }

func TestChangedFileReplacesStagedEntry(t *testing.T) {
	ctx := context.Background()
	kv := localstore.NewMemory()
	defer kv.Close()
	store, err := chat.NewStore(ctx, noBackend{}, history.New(kv, "user-1"), kv)
	require.NoError(t, err)
	defer store.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("first half"), 0o600))

	w, err := New(dir, store)
	require.NoError(t, err)
	defer w.Close()
	require.Len(t, w.StageExisting(), 1)

	// A download that finishes after the file was first staged.
	require.NoError(t, os.WriteFile(path, []byte("first half, second half"), 0o600))
	require.Len(t, w.StageExisting(), 1)

	staged := store.Snapshot().Staged
	require.Len(t, staged, 1)
	assert.Equal(t, "report.txt", staged[0].Name)
	assert.Equal(t, int64(len("first half, second half")), staged[0].Size)
}

func TestIgnored(t *testing.T) {
	for name, want := range map[string]bool{
		"report.pdf":          false,
		".DS_Store":           true,
		"draft.docx~":         true,
		"download.crdownload": true,
		"Report.PDF.PART":     true,
		"slides.pptx":         false,
		".~lock.sheet.xlsx#":  true,
	} {
		assert.Equal(t, want, ignored(name), name)
	}
}
