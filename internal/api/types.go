// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"io"
	"os"
	"path/filepath"
)

// AppConfig is the public bootstrap configuration served by /config.
type AppConfig struct {
	IdentityURL     string `json:"supabase_url"`
	IdentityAnonKey string `json:"supabase_anon_key"`
}

// Health is the /health payload.
type Health struct {
	Status string `json:"status"`
}

// UploadFile is one document in an upload batch.
type UploadFile struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileFromPath builds an UploadFile that reads path lazily.
func FileFromPath(path string) UploadFile {
	return UploadFile{
		Name: filepath.Base(path),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// UploadResult reports what the backend indexed.
type UploadResult struct {
	FilesProcessed []string `json:"files_processed"`
	ChunksCreated  int      `json:"chunks_created"`
}

// Answer is the /ask response. The backend names the field "answer";
// "text" is accepted too.
type Answer struct {
	Answer string `json:"answer"`
	Text   string `json:"text"`
}

// Content returns the answer text.
func (a Answer) Content() string {
	if a.Answer != "" {
		return a.Answer
	}
	return a.Text
}

// Stats are the server-tracked usage counters.
type Stats struct {
	FilesProcessed int `json:"files_processed"`
	TokensUsed     int `json:"tokens_used"`
}

// StatsDelta increments the usage counters.
type StatsDelta struct {
	FilesDelta  int `json:"files_delta"`
	TokensDelta int `json:"tokens_delta"`
}

// IsZero reports whether the delta changes nothing.
func (d StatsDelta) IsZero() bool {
	return d.FilesDelta == 0 && d.TokensDelta == 0
}

// Add returns the sum of two deltas.
func (d StatsDelta) Add(o StatsDelta) StatsDelta {
	return StatsDelta{FilesDelta: d.FilesDelta + o.FilesDelta, TokensDelta: d.TokensDelta + o.TokensDelta}
}

type askRequest struct {
	Question string `json:"question"`
	ChatID   int64  `json:"chat_id,omitempty"`
}

type verifyKeyRequest struct {
	APIKey string `json:"api_key"`
}
