// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dropzone watches a folder and stages the files that land in it.
//
// Copying or saving a document into the drop folder is the terminal's
// version of dragging it onto the upload area. Writes are debounced so a
// file is staged once it has stopped changing; files that disappear before
// then are forgotten.
package dropzone

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/chat"
)

// DefaultDebounce is how long a file must be quiet before it is staged.
const DefaultDebounce = 500 * time.Millisecond

// Stager receives settled files. *chat.Store implements it.
type Stager interface {
	StageFiles(paths ...string) []chat.StagedFile
}

// =============================================================================
// WATCHER
// =============================================================================

// Watcher stages files created or written in one directory.
type Watcher struct {
	dir      string
	stager   Stager
	debounce time.Duration
	log      zerolog.Logger
	onStage  func([]chat.StagedFile)

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // path -> last change
	seen    map[string]stamp     // path -> state when last staged

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// stamp identifies one version of a file.
type stamp struct {
	size    int64
	modTime int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) { w.log = l }
}

// WithNotify registers a callback for every batch that was staged.
func WithNotify(fn func([]chat.StagedFile)) Option {
	return func(w *Watcher) { w.onStage = fn }
}

// New creates the drop folder if needed and prepares a watcher on it.
// Nothing is staged until Start.
func New(dir string, stager Stager, opts ...Option) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		dir:      dir,
		stager:   stager,
		debounce: DefaultDebounce,
		log:      zerolog.Nop(),
		watcher:  fw,
		pending:  make(map[string]time.Time),
		seen:     make(map[string]stamp),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start begins processing events until ctx is done or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(2)
	go w.processEvents(ctx)
	go w.processPending(ctx)
	w.log.Info().Str("dir", w.dir).Msg("watching drop folder")
}

// StageExisting stages the files already in the folder, in name order.
func (w *Watcher) StageExisting() []chat.StagedFile {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.log.Warn().Err(err).Str("dir", w.dir).Msg("read drop folder")
		return nil
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && !ignored(e.Name()) {
			paths = append(paths, filepath.Join(w.dir, e.Name()))
		}
	}
	return w.stage(paths)
}

// Close stops the watcher and waits for its goroutines.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

// =============================================================================
// EVENT LOOP
// =============================================================================

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ignored(filepath.Base(event.Name)) {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				w.mu.Lock()
				w.pending[event.Name] = time.Now()
				w.mu.Unlock()
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.mu.Lock()
				delete(w.pending, event.Name)
				delete(w.seen, event.Name)
				w.mu.Unlock()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("drop folder watch error")
		}
	}
}

func (w *Watcher) processPending(ctx context.Context) {
	defer w.wg.Done()
	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var settled []string
			w.mu.Lock()
			for path, changed := range w.pending {
				if now.Sub(changed) >= w.debounce {
					settled = append(settled, path)
					delete(w.pending, path)
				}
			}
			w.mu.Unlock()
			if len(settled) > 0 {
				slices.Sort(settled)
				w.stage(settled)
			}
		}
	}
}

// stage hands paths that changed since they were last staged to the stager.
func (w *Watcher) stage(paths []string) []chat.StagedFile {
	var fresh []string
	w.mu.Lock()
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		st := stamp{size: info.Size(), modTime: info.ModTime().UnixNano()}
		if prev, ok := w.seen[p]; ok && prev == st {
			continue
		}
		w.seen[p] = st
		fresh = append(fresh, p)
	}
	w.mu.Unlock()
	if len(fresh) == 0 {
		return nil
	}

	added := w.stager.StageFiles(fresh...)
	w.log.Debug().Int("changed", len(fresh)).Int("staged", len(added)).Msg("drop folder")
	if len(added) > 0 && w.onStage != nil {
		w.onStage(added)
	}
	return added
}

// ignored reports names that are hidden or still being written by a browser
// or editor.
func ignored(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".part", ".crdownload", ".tmp", ".swp":
		return true
	}
	return false
}
