// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/events"
	"github.com/jeranaias/arkiv-tui/internal/history"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrBusy          = errors.New("a request is already in progress")
	ErrNothingStaged = errors.New("no files selected for upload")
	ErrNoActiveChat  = errors.New("no active chat")
	ErrNoSuchFile    = errors.New("no staged file at that position")
	ErrStoreClosed   = errors.New("chat store is closed")
)

// =============================================================================
// BACKEND
// =============================================================================

// Asker answers questions against the indexed documents.
type Asker interface {
	Ask(ctx context.Context, chatID model.ChatID, question string) (*api.Answer, error)
}

// Uploader indexes a batch of documents for a chat.
type Uploader interface {
	Upload(ctx context.Context, chatID model.ChatID, files []api.UploadFile) (*api.UploadResult, error)
}

// DataClearer drops indexed documents. A zero id clears everything.
type DataClearer interface {
	ClearData(ctx context.Context, chatID model.ChatID) error
}

// Backend is everything the Store needs from the API gateway.
type Backend interface {
	Asker
	Uploader
	DataClearer
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a copy of the store state. Slices are owned by the snapshot.
type Snapshot struct {
	UserID    string
	ChatID    model.ChatID
	Messages  []model.Message
	Loading   bool
	Tokens    int
	Processed []string
	Staged    []StagedFile
	Uploading bool
	Ready     bool
	History   []model.Chat
}

// CanSend reports whether a question may be submitted now.
func (s Snapshot) CanSend() bool {
	return s.Ready && !s.Loading
}

// Placeholder is the hint shown in an empty chat input.
func (s Snapshot) Placeholder() string {
	switch {
	case !s.Ready:
		return "Upload documents first..."
	case s.Loading:
		return "Waiting for an answer..."
	default:
		return "Ask a question..."
	}
}

// =============================================================================
// STORE
// =============================================================================

// Store is the conversation and document state of one user.
type Store struct {
	backend Backend
	index   *history.Index
	kv      localstore.Store
	stats   *StatsTracker
	bus     *events.Bus[Snapshot]
	log     zerolog.Logger
	now     func() time.Time

	base       context.Context
	cancelBase context.CancelFunc

	mu        sync.Mutex
	closed    bool
	chatID    model.ChatID
	messages  []model.Message
	loading   bool
	tokens    int
	processed []string
	staged    []StagedFile
	uploading bool
	ready     bool
	history   []model.Chat
	cancelAsk context.CancelFunc
}

// Option configures a Store.
type Option func(*Store)

// WithStats records usage deltas with t.
func WithStats(t *StatsTracker) Option {
	return func(s *Store) { s.stats = t }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l.With().Str("component", "chat").Logger() }
}

// WithClock overrides time.Now, used for chat ids and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore loads the readiness flag and history of the index's user.
func NewStore(ctx context.Context, backend Backend, index *history.Index, kv localstore.Store, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		index:   index,
		kv:      kv,
		bus:     events.NewBus[Snapshot](),
		log:     zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base, s.cancelBase = context.WithCancel(context.Background())

	if err := s.Reload(ctx); err != nil {
		s.cancelBase()
		return nil, err
	}
	return s, nil
}

// Reload re-reads the readiness flag and history from disk.
func (s *Store) Reload(ctx context.Context) error {
	ready, err := localstore.GetBool(ctx, s.kv, localstore.ReadyKey(s.index.UserID()))
	if err != nil {
		return fmt.Errorf("load readiness: %w", err)
	}
	chats, err := s.index.List(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	s.mu.Lock()
	s.ready = ready
	s.history = chats
	s.mu.Unlock()
	s.notify()
	return nil
}

// Subscribe registers fn for state changes. fn runs on the goroutine that
// made the change and must not block.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Index returns the user's history index.
func (s *Store) Index() *history.Index {
	return s.index
}

// Close cancels every in-flight request. Later calls fail with
// ErrStoreClosed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelBase()
}

// =============================================================================
// ASK
// =============================================================================

// Send asks question in the active chat and returns the assistant turn that
// was appended: the answer, or an error turn carrying the failure detail.
// The returned error is only set when nothing was sent.
func (s *Store) Send(ctx context.Context, question string) (model.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return model.Message{}, ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Message{}, ErrStoreClosed
	}
	if s.loading {
		s.mu.Unlock()
		return model.Message{}, ErrBusy
	}
	if s.chatID.IsZero() {
		s.chatID = model.NewChatIDAt(s.now())
	}
	chatID := s.chatID
	s.messages = append(s.messages, model.NewUserMessage(question))
	s.loading = true
	reqCtx, cancel := s.requestContext(ctx)
	s.cancelAsk = cancel
	s.mu.Unlock()
	s.notify()

	ans, err := s.backend.Ask(reqCtx, chatID, question)
	cancel()

	var (
		reply  model.Message
		tokens int
	)
	if err != nil {
		s.log.Warn().Err(err).Stringer("chat", chatID).Msg("ask failed")
		reply = model.NewErrorMessage(api.Detail(err, api.MsgAskFailed))
	} else {
		reply = model.NewAssistantMessage(ans.Content())
		tokens = model.EstimateTokens(question) + model.EstimateTokens(reply.Content)
	}
	persistCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	s.loading = false
	s.cancelAsk = nil
	if s.chatID == chatID {
		s.messages = append(s.messages, reply)
		s.tokens += tokens
		if err == nil {
			if perr := s.saveLocked(persistCtx); perr != nil {
				s.log.Error().Err(perr).Stringer("chat", chatID).Msg("persist chat")
			}
		}
	} else if err == nil {
		s.appendLateLocked(persistCtx, chatID, reply, tokens)
	}
	s.mu.Unlock()
	s.notify()

	if tokens > 0 && s.stats != nil {
		s.stats.Record(api.StatsDelta{TokensDelta: tokens})
	}
	return reply, nil
}

// Cancel aborts the in-flight question, if any. The question gets an error
// turn.
func (s *Store) Cancel() {
	s.mu.Lock()
	cancel := s.cancelAsk
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// appendLateLocked writes a reply for a chat that is no longer active into
// that chat's history entry.
func (s *Store) appendLateLocked(ctx context.Context, chatID model.ChatID, reply model.Message, tokens int) {
	err := s.index.Update(ctx, chatID, func(c *model.Chat) {
		c.Messages = append(c.Messages, reply)
		c.Tokens += tokens
		c.Title = model.DeriveTitle(c.Messages)
	})
	switch {
	case errors.Is(err, history.ErrChatNotFound):
		s.log.Debug().Stringer("chat", chatID).Msg("dropping reply for deleted chat")
	case err != nil:
		s.log.Error().Err(err).Stringer("chat", chatID).Msg("persist late reply")
	default:
		s.refreshHistoryLocked(ctx)
	}
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// StartNewChat saves the current conversation and clears the active state.
// Nothing is cleared when saving fails.
func (s *Store) StartNewChat(ctx context.Context) error {
	s.mu.Lock()
	if len(s.messages) > 0 {
		if err := s.saveLocked(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.resetActiveLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// LoadChat makes chat the active conversation. The current conversation is
// saved first when it belongs to a different chat.
func (s *Store) LoadChat(ctx context.Context, chat model.Chat) error {
	s.mu.Lock()
	if len(s.messages) > 0 && s.chatID != chat.ID {
		if err := s.saveLocked(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	c := chat.Clone()
	s.chatID = c.ID
	s.messages = c.Messages
	s.processed = c.Files
	s.tokens = c.Tokens
	s.mu.Unlock()
	s.notify()
	return nil
}

// LoadChatID loads the history entry with id.
func (s *Store) LoadChatID(ctx context.Context, id model.ChatID) error {
	c, err := s.index.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.LoadChat(ctx, c)
}

// DeleteChat removes a chat from history and drops its indexed documents.
// The backend cleanup is best effort.
func (s *Store) DeleteChat(ctx context.Context, id model.ChatID) error {
	s.mu.Lock()
	if err := s.index.Delete(ctx, id); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.chatID == id {
		s.resetActiveLocked()
	}
	s.refreshHistoryLocked(ctx)
	s.mu.Unlock()
	s.notify()

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	if err := s.backend.ClearData(reqCtx, id); err != nil {
		s.log.Warn().Err(err).Stringer("chat", id).Msg("clear documents of deleted chat")
	}
	return nil
}

func (s *Store) resetActiveLocked() {
	s.chatID = 0
	s.messages = nil
	s.processed = nil
	s.tokens = 0
}

// =============================================================================
// INTERNALS
// =============================================================================

// currentChatLocked builds the history entry of the active conversation.
func (s *Store) currentChatLocked() model.Chat {
	if s.chatID.IsZero() {
		s.chatID = model.NewChatIDAt(s.now())
	}
	return model.Chat{
		ID:       s.chatID,
		Title:    model.DeriveTitle(s.messages),
		Messages: append([]model.Message(nil), s.messages...),
		Files:    append([]string(nil), s.processed...),
		Time:     s.now().Format(model.TimeLayout),
		Tokens:   s.tokens,
	}
}

func (s *Store) saveLocked(ctx context.Context) error {
	if err := s.index.Save(ctx, s.currentChatLocked()); err != nil {
		return fmt.Errorf("save chat: %w", err)
	}
	s.refreshHistoryLocked(ctx)
	return nil
}

func (s *Store) refreshHistoryLocked(ctx context.Context) {
	chats, err := s.index.List(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reload history")
		return
	}
	s.history = chats
}

// requestContext derives a request context that is also cancelled by Close.
func (s *Store) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.base, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		UserID:    s.index.UserID(),
		ChatID:    s.chatID,
		Messages:  append([]model.Message(nil), s.messages...),
		Loading:   s.loading,
		Tokens:    s.tokens,
		Processed: append([]string(nil), s.processed...),
		Staged:    append([]StagedFile(nil), s.staged...),
		Uploading: s.uploading,
		Ready:     s.ready,
		History:   append([]model.Chat(nil), s.history...),
	}
}

func (s *Store) notify() {
	if s.bus.Len() == 0 {
		return
	}
	s.bus.Publish(s.Snapshot())
}
