// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity is a REST client for the hosted identity provider
// (a GoTrue-compatible auth service).
//
// It covers the flows the client needs: password sign-in and sign-up,
// email one-time codes and magic links, password recovery, profile and
// credential updates, token refresh, sign-out, and OAuth redirects.
// Session state is not kept here; see package session.
package identity
