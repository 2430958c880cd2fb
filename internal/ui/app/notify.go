// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// changeKind flags which part of the core changed.
type changeKind uint8

const (
	changeSession changeKind = 1 << iota
	changeChat
	changeKeys
	changeStats
)

// changedMsg tells the model to re-read the flagged state. Dropped files
// staged by the drop folder are reported by name.
type changedMsg struct {
	kinds   changeKind
	dropped []string
}

func (m changedMsg) has(k changeKind) bool { return m.kinds&k != 0 }

// notifier carries core callbacks, which fire on arbitrary goroutines, into
// the Bubble Tea loop. Flags coalesce, so a burst of snapshots becomes one
// redraw and a callback never blocks on a busy loop.
type notifier struct {
	mu      sync.Mutex
	pending changeKind
	dropped []string
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newNotifier() *notifier {
	return &notifier{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

// post flags kinds as changed.
func (n *notifier) post(kinds changeKind) {
	n.mu.Lock()
	n.pending |= kinds
	n.mu.Unlock()
	n.signal()
}

// postDropped records files the drop folder staged.
func (n *notifier) postDropped(names []string) {
	n.mu.Lock()
	n.pending |= changeChat
	n.dropped = append(n.dropped, names...)
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// take returns and clears everything pending.
func (n *notifier) take() changedMsg {
	n.mu.Lock()
	defer n.mu.Unlock()
	msg := changedMsg{kinds: n.pending, dropped: n.dropped}
	n.pending, n.dropped = 0, nil
	return msg
}

// wait is a command that delivers the next change. The model re-arms it
// after each delivery.
func (n *notifier) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-n.wake:
			return n.take()
		case <-n.done:
			return nil
		}
	}
}

// close releases a pending wait.
func (n *notifier) close() {
	n.once.Do(func() { close(n.done) })
}
