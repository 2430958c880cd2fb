// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

// TokensPerChunk is the usage charged for each indexed chunk.
const TokensPerChunk = 500

// clearConcurrency bounds the parallel clear-data calls of a global reset.
const clearConcurrency = 8

// Scope selects what ResetKnowledgeBase clears.
type Scope int

const (
	// ScopeChat clears the documents of the active chat.
	ScopeChat Scope = iota
	// ScopeGlobal clears every document, the history and the readiness flag.
	ScopeGlobal
)

func (s Scope) String() string {
	if s == ScopeGlobal {
		return "global"
	}
	return "chat"
}

// =============================================================================
// STAGING
// =============================================================================

// StageFiles adds the supported files among paths to the upload list, in
// order, and returns the ones that were added. Unsupported or unreadable
// paths are skipped. A path that is already staged has its entry refreshed
// in place rather than listed twice.
func (s *Store) StageFiles(paths ...string) []StagedFile {
	var added []StagedFile
	for _, p := range paths {
		if f, ok := Inspect(p); ok {
			added = append(added, f)
		}
	}
	if len(added) == 0 {
		return nil
	}
	s.mu.Lock()
	staged := slices.Clone(s.staged)
	for _, f := range added {
		if i := slices.IndexFunc(staged, func(e StagedFile) bool { return e.Path == f.Path }); i >= 0 {
			staged[i] = f
			continue
		}
		staged = append(staged, f)
	}
	s.staged = staged
	s.mu.Unlock()
	s.notify()
	return added
}

// Unstage removes the staged file at index i.
func (s *Store) Unstage(i int) error {
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return ErrBusy
	}
	if i < 0 || i >= len(s.staged) {
		s.mu.Unlock()
		return ErrNoSuchFile
	}
	s.staged = slices.Delete(slices.Clone(s.staged), i, i+1)
	s.mu.Unlock()
	s.notify()
	return nil
}

// ClearStaged empties the upload list.
func (s *Store) ClearStaged() error {
	s.mu.Lock()
	if s.uploading {
		s.mu.Unlock()
		return ErrBusy
	}
	s.staged = nil
	s.mu.Unlock()
	s.notify()
	return nil
}

// =============================================================================
// UPLOAD
// =============================================================================

// Upload sends every staged file to the backend as one batch for the active
// chat. On failure the staged list is kept so the upload can be retried.
func (s *Store) Upload(ctx context.Context) (*api.UploadResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	if s.uploading {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if len(s.staged) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingStaged
	}
	if s.chatID.IsZero() {
		s.chatID = model.NewChatIDAt(s.now())
	}
	chatID := s.chatID
	batch := slices.Clone(s.staged)
	s.uploading = true
	s.mu.Unlock()
	s.notify()

	files := make([]api.UploadFile, len(batch))
	names := make([]string, len(batch))
	for i, f := range batch {
		uf := api.FileFromPath(f.Path)
		uf.Name = f.Name
		files[i] = uf
		names[i] = f.Name
	}

	reqCtx, cancel := s.requestContext(ctx)
	res, err := s.backend.Upload(reqCtx, chatID, files)
	cancel()

	if err != nil {
		s.mu.Lock()
		s.uploading = false
		s.mu.Unlock()
		s.notify()
		s.log.Warn().Err(err).Int("files", len(batch)).Msg("upload failed")
		return nil, err
	}

	chunks := res.ChunksCreated
	if chunks <= 0 {
		chunks = 1
	}
	tokens := chunks * TokensPerChunk
	// The backend has indexed the batch; record it even if the caller gave up.
	persistCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	s.uploading = false
	s.staged = slices.Clone(s.staged[len(batch):])
	s.ready = true
	if err := localstore.SetBool(persistCtx, s.kv, localstore.ReadyKey(s.index.UserID()), true); err != nil {
		s.log.Error().Err(err).Msg("persist readiness")
	}
	if s.chatID == chatID {
		s.processed = append(s.processed, names...)
		s.tokens += tokens
		if err := s.saveLocked(persistCtx); err != nil {
			s.log.Error().Err(err).Stringer("chat", chatID).Msg("persist chat after upload")
		}
	} else {
		s.recordLateUploadLocked(persistCtx, chatID, names, tokens)
	}
	s.mu.Unlock()
	s.notify()

	s.log.Info().Int("files", len(res.FilesProcessed)).Int("chunks", res.ChunksCreated).Msg("upload complete")
	if s.stats != nil {
		s.stats.Record(api.StatsDelta{FilesDelta: len(batch), TokensDelta: tokens})
	}
	return res, nil
}

func (s *Store) recordLateUploadLocked(ctx context.Context, chatID model.ChatID, names []string, tokens int) {
	err := s.index.Update(ctx, chatID, func(c *model.Chat) {
		c.Files = append(c.Files, names...)
		c.Tokens += tokens
	})
	if errors.Is(err, history.ErrChatNotFound) {
		err = s.index.Save(ctx, model.Chat{
			ID:     chatID,
			Title:  model.DefaultTitle,
			Files:  names,
			Time:   s.now().Format(model.TimeLayout),
			Tokens: tokens,
		})
	}
	if err != nil {
		s.log.Error().Err(err).Stringer("chat", chatID).Msg("persist upload for inactive chat")
		return
	}
	s.refreshHistoryLocked(ctx)
}

// =============================================================================
// RESET
// =============================================================================

// ResetKnowledgeBase drops indexed documents.
//
// ScopeChat clears the active chat's documents and its processed files.
// ScopeGlobal clears every known chat plus everything unscoped, concurrently,
// then always clears the history, messages, processed files and readiness
// flag once the calls have settled; individual failures are only logged.
func (s *Store) ResetKnowledgeBase(ctx context.Context, scope Scope) error {
	if scope == ScopeChat {
		return s.resetChat(ctx)
	}
	return s.resetGlobal(ctx)
}

func (s *Store) resetChat(ctx context.Context) error {
	s.mu.Lock()
	chatID := s.chatID
	s.mu.Unlock()
	if chatID.IsZero() {
		return ErrNoActiveChat
	}

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	if err := s.backend.ClearData(reqCtx, chatID); err != nil {
		return err
	}

	s.mu.Lock()
	if s.chatID == chatID {
		s.processed = nil
	}
	err := s.index.Update(ctx, chatID, func(c *model.Chat) { c.Files = nil })
	if err != nil && !errors.Is(err, history.ErrChatNotFound) {
		s.log.Warn().Err(err).Stringer("chat", chatID).Msg("clear files in history")
	}
	s.refreshHistoryLocked(ctx)
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) resetGlobal(ctx context.Context) error {
	ids, err := s.index.IDs(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if !s.chatID.IsZero() && !slices.Contains(ids, s.chatID) {
		ids = append(ids, s.chatID)
	}
	s.mu.Unlock()

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(clearConcurrency)
	// The zero id is the unscoped call.
	for _, id := range append(ids, 0) {
		g.Go(func() error {
			if err := s.backend.ClearData(reqCtx, id); err != nil {
				s.log.Warn().Err(err).Stringer("chat", id).Msg("clear documents")
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := reqCtx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.index.Clear(ctx); err != nil {
		s.log.Error().Err(err).Msg("clear history")
	}
	if err := localstore.SetBool(ctx, s.kv, localstore.ReadyKey(s.index.UserID()), false); err != nil {
		s.log.Error().Err(err).Msg("clear readiness")
	}
	s.resetActiveLocked()
	s.ready = false
	s.history = nil
	s.mu.Unlock()
	s.notify()
	s.log.Info().Int("chats", len(ids)).Msg("knowledge base erased")
	return nil
}
