// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package events provides a small typed publish/subscribe bus.
//
// A Bus is passed explicitly to the components that share a notification
// (for example the BYOK settings tab and the header key selector) so there
// is no process-wide event channel.
package events

import (
	"sort"
	"sync"
)

// Bus delivers published values to every current subscriber, synchronously
// and in subscription order.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[uint64]func(T)
	next uint64
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uint64]func(T))}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every subscriber with v. Subscribers may unsubscribe from
// inside the callback.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	fns := make(map[uint64]func(T), len(b.subs))
	for id, fn := range b.subs {
		fns[id] = fn
	}
	b.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		fns[id](v)
	}
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
