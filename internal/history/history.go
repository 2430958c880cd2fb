// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrChatNotFound is returned when no history entry has the requested id.
// Use errors.Is(err, ErrChatNotFound) to check for it.
var ErrChatNotFound = errors.New("chat not found")

// =============================================================================
// INDEX
// =============================================================================

// Index is the chat history of one user, most recent first. It is safe for
// concurrent use; every mutation is a read-modify-write of the persisted
// list under one lock.
type Index struct {
	store  localstore.Store
	userID string
	key    string
	log    zerolog.Logger

	mu sync.Mutex
}

// Option configures an Index.
type Option func(*Index)

func WithLogger(l zerolog.Logger) Option {
	return func(ix *Index) { ix.log = l.With().Str("component", "history").Logger() }
}

// New opens the history of userID in store.
func New(store localstore.Store, userID string, opts ...Option) *Index {
	ix := &Index{
		store:  store,
		userID: userID,
		key:    localstore.HistoryKey(userID),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// UserID returns the owner of the history.
func (ix *Index) UserID() string {
	return ix.userID
}

// List returns every chat, most recent first.
func (ix *Index) List(ctx context.Context) ([]model.Chat, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.load(ctx)
}

// Get returns the chat with id.
func (ix *Index) Get(ctx context.Context, id model.ChatID) (model.Chat, error) {
	chats, err := ix.List(ctx)
	if err != nil {
		return model.Chat{}, err
	}
	if i := Find(chats, id); i >= 0 {
		return chats[i], nil
	}
	return model.Chat{}, ErrChatNotFound
}

// Save stores chat. An entry with the same id is replaced in place; a new
// id goes to the front.
func (ix *Index) Save(ctx context.Context, chat model.Chat) error {
	if chat.ID.IsZero() {
		return errors.New("chat has no id")
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	chats, err := ix.load(ctx)
	if err != nil {
		return err
	}
	return ix.write(ctx, Upsert(chats, chat.Clone()))
}

// Update applies fn to the stored chat with id and saves the result.
func (ix *Index) Update(ctx context.Context, id model.ChatID, fn func(*model.Chat)) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	chats, err := ix.load(ctx)
	if err != nil {
		return err
	}
	i := Find(chats, id)
	if i < 0 {
		return ErrChatNotFound
	}
	fn(&chats[i])
	chats[i].ID = id
	return ix.write(ctx, chats)
}

// Delete removes the chat with id.
func (ix *Index) Delete(ctx context.Context, id model.ChatID) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	chats, err := ix.load(ctx)
	if err != nil {
		return err
	}
	i := Find(chats, id)
	if i < 0 {
		return ErrChatNotFound
	}
	return ix.write(ctx, append(chats[:i], chats[i+1:]...))
}

// Clear removes the whole history.
func (ix *Index) Clear(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.store.Delete(ctx, ix.key); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// IDs returns the ids of every stored chat.
func (ix *Index) IDs(ctx context.Context) ([]model.ChatID, error) {
	chats, err := ix.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]model.ChatID, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids, nil
}

// Search returns chats whose title, file names or message bodies contain
// query (case-insensitive). An empty query matches everything.
func (ix *Index) Search(ctx context.Context, query string) ([]model.Chat, error) {
	chats, err := ix.List(ctx)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return chats, nil
	}
	var out []model.Chat
	for _, c := range chats {
		if matches(c, query) {
			out = append(out, c)
		}
	}
	return out, nil
}

func matches(c model.Chat, query string) bool {
	if strings.Contains(strings.ToLower(c.Title), query) {
		return true
	}
	for _, f := range c.Files {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), query) {
			return true
		}
	}
	return false
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

// Find returns the position of id in chats, or -1.
func Find(chats []model.Chat, id model.ChatID) int {
	for i, c := range chats {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Upsert returns chats with chat replaced in place when its id is present,
// otherwise with chat prepended. The input slice is not modified.
func Upsert(chats []model.Chat, chat model.Chat) []model.Chat {
	if i := Find(chats, chat.ID); i >= 0 {
		out := append([]model.Chat(nil), chats...)
		out[i] = chat
		return out
	}
	out := make([]model.Chat, 0, len(chats)+1)
	out = append(out, chat)
	return append(out, chats...)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func (ix *Index) load(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	if _, err := localstore.GetJSON(ctx, ix.store, ix.key, &chats); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			// A corrupt list reads as empty; the next save replaces it.
			ix.log.Warn().Err(err).Msg("unreadable chat history")
			return nil, nil
		}
		return nil, err
	}
	return chats, nil
}

func (ix *Index) write(ctx context.Context, chats []model.Chat) error {
	if chats == nil {
		chats = []model.Chat{}
	}
	if err := localstore.SetJSON(ctx, ix.store, ix.key, chats); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	return nil
}
