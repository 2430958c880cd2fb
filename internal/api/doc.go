// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api is the HTTP client for the document-chat backend.
//
// Every authenticated call asks its TokenSource for a fresh bearer token and
// its KeySource for the active BYOK key, so a token refresh or a key switch
// takes effect on the next request without rebuilding the client.
//
// # Endpoints
//
//   - GET    /config       identity provider bootstrap (no auth)
//   - GET    /health       liveness (no auth)
//   - POST   /upload       multipart batch of documents
//   - POST   /ask          question against the chat's knowledge base
//   - GET    /stats        usage counters
//   - PATCH  /stats        usage deltas
//   - POST   /verify-key   BYOK key check (no auth)
//   - DELETE /clear-data   drop indexed documents (optionally one chat)
//   - DELETE /account      delete the signed-in account
//
// Non-2xx responses become *APIError carrying the backend's "detail" text or
// a per-operation fallback message.
package api
