// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the signed-in user of the client.
//
// A Provider wraps the identity provider client, keeps the current session
// in memory and in the local store (so the CLI and the TUI share one login),
// refreshes access tokens before they expire and publishes auth-state
// changes on an events.Bus.
//
// # Key Types
//
//   - Provider: session owner, also the API gateway's token source
//   - Event: auth-state change delivered to subscribers
//   - Identity: the identity provider operations the Provider needs
//
// # Usage
//
//	p := session.NewProvider(idp, store, session.WithAccountService(apiClient))
//	if err := p.Init(ctx); err != nil {
//	    return err
//	}
//	unsubscribe := p.Subscribe(func(ev session.Event) {
//	    // re-render on sign-in / sign-out
//	})
//	defer unsubscribe()
//
// Every operation reports failure through its error return; callers show
// err.Error() to the user.
package session
