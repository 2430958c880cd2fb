// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/events"
)

// StatsService reads and updates the account usage counters.
type StatsService interface {
	Stats(ctx context.Context) (*api.Stats, error)
	PatchStats(ctx context.Context, delta api.StatsDelta) (*api.Stats, error)
}

// UsageStats are the server-side usage counters. Version increases with
// every applied server response.
type UsageStats struct {
	FilesProcessed int
	TokensUsed     int
	Version        uint64
}

// flushTimeout bounds the final PATCH sent when the tracker stops.
const flushTimeout = 5 * time.Second

// =============================================================================
// STATS TRACKER
// =============================================================================

// StatsTracker serializes all stats traffic through one goroutine. Deltas
// recorded while a request is in flight are merged and sent together with
// the next request, so responses are applied strictly in order.
type StatsTracker struct {
	svc StatsService
	bus *events.Bus[UsageStats]
	log zerolog.Logger

	mu      sync.Mutex
	pending api.StatsDelta
	refresh bool
	current UsageStats
	started bool

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StatsOption configures a StatsTracker.
type StatsOption func(*StatsTracker)

func WithStatsLogger(l zerolog.Logger) StatsOption {
	return func(t *StatsTracker) { t.log = l.With().Str("component", "stats").Logger() }
}

// NewStatsTracker creates a tracker. Nothing is sent until Start.
func NewStatsTracker(svc StatsService, opts ...StatsOption) *StatsTracker {
	t := &StatsTracker{
		svc:  svc,
		bus:  events.NewBus[UsageStats](),
		log:  zerolog.Nop(),
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start launches the owning goroutine and requests the current counters.
func (t *StatsTracker) Start(ctx context.Context) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.refresh = true
	t.mu.Unlock()

	go t.run(ctx)
	t.signal()
}

// Record queues a usage delta.
func (t *StatsTracker) Record(d api.StatsDelta) {
	if d.IsZero() {
		return
	}
	t.mu.Lock()
	t.pending = t.pending.Add(d)
	t.mu.Unlock()
	t.signal()
}

// Refresh asks for the current counters.
func (t *StatsTracker) Refresh() {
	t.mu.Lock()
	t.refresh = true
	t.mu.Unlock()
	t.signal()
}

// Current returns the last applied counters.
func (t *StatsTracker) Current() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Pending returns the delta not yet sent.
func (t *StatsTracker) Pending() api.StatsDelta {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Subscribe registers fn for every applied update.
func (t *StatsTracker) Subscribe(fn func(UsageStats)) (unsubscribe func()) {
	return t.bus.Subscribe(fn)
}

// Close sends whatever is still pending and stops the goroutine.
func (t *StatsTracker) Close() {
	t.once.Do(func() { close(t.stop) })
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if started {
		<-t.done
	}
}

func (t *StatsTracker) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *StatsTracker) run(ctx context.Context) {
	defer close(t.done)
	for {
		select {
		case <-t.wake:
			t.sync(ctx)
		case <-ctx.Done():
			return
		case <-t.stop:
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			t.sync(fctx)
			cancel()
			return
		}
	}
}

func (t *StatsTracker) sync(ctx context.Context) {
	t.mu.Lock()
	delta := t.pending
	refresh := t.refresh
	t.pending = api.StatsDelta{}
	t.refresh = false
	t.mu.Unlock()

	var (
		res *api.Stats
		err error
	)
	switch {
	case !delta.IsZero():
		res, err = t.svc.PatchStats(ctx, delta)
	case refresh:
		res, err = t.svc.Stats(ctx)
	default:
		return
	}
	if err != nil {
		t.log.Warn().Err(err).
			Int("files_delta", delta.FilesDelta).
			Int("tokens_delta", delta.TokensDelta).
			Msg("stats update failed")
		return
	}

	t.mu.Lock()
	t.current = UsageStats{
		FilesProcessed: res.FilesProcessed,
		TokensUsed:     res.TokensUsed,
		Version:        t.current.Version + 1,
	}
	snap := t.current
	t.mu.Unlock()
	t.bus.Publish(snap)
}
