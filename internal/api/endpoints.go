// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/jeranaias/arkiv-tui/internal/model"
)

// GetConfig fetches the identity provider bootstrap configuration.
func (c *Client) GetConfig(ctx context.Context) (*AppConfig, error) {
	var cfg AppConfig
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/config", fallback: MsgConfigFailed}, &cfg)
	if err != nil {
		return nil, wrap("get config", err)
	}
	return &cfg, nil
}

// Health reports backend liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/health", fallback: MsgRequestFailed}, &h); err != nil {
		return nil, wrap("health", err)
	}
	return &h, nil
}

// Upload sends all files as one multipart batch, scoped to chatID.
func (c *Client) Upload(ctx context.Context, chatID model.ChatID, files []UploadFile) (*UploadResult, error) {
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		if err := writePart(writer, f); err != nil {
			return nil, fmt.Errorf("prepare %s: %w", f.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	spec := requestSpec{
		method:      http.MethodPost,
		path:        "/upload",
		body:        body,
		contentType: writer.FormDataContentType(),
		auth:        true,
		customKey:   true,
		fallback:    MsgUploadFailed,
		timeout:     c.uploadTimeout,
	}
	if !chatID.IsZero() {
		spec.chatID = chatID.String()
	}

	var result UploadResult
	if err := c.do(ctx, spec, &result); err != nil {
		return nil, wrap("upload", err)
	}
	return &result, nil
}

func writePart(w *multipart.Writer, f UploadFile) error {
	if f.Open == nil {
		return errors.New("file has no content")
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	part, err := w.CreateFormFile("files", f.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

// Ask poses question against the knowledge base of chatID.
func (c *Client) Ask(ctx context.Context, chatID model.ChatID, question string) (*Answer, error) {
	req := askRequest{Question: question, ChatID: int64(chatID)}
	body, err := jsonBody(req)
	if err != nil {
		return nil, err
	}

	var ans Answer
	err = c.do(ctx, requestSpec{
		method:      http.MethodPost,
		path:        "/ask",
		body:        body,
		contentType: "application/json",
		auth:        true,
		customKey:   true,
		fallback:    MsgAskFailed,
	}, &ans)
	if err != nil {
		return nil, wrap("ask", err)
	}
	return &ans, nil
}

// Stats fetches the server-tracked usage counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := c.do(ctx, requestSpec{method: http.MethodGet, path: "/stats", auth: true, fallback: MsgStatsFailed}, &s)
	if err != nil {
		return nil, wrap("get stats", err)
	}
	return &s, nil
}

// PatchStats applies a delta to the usage counters and returns the totals.
func (c *Client) PatchStats(ctx context.Context, delta StatsDelta) (*Stats, error) {
	body, err := jsonBody(delta)
	if err != nil {
		return nil, err
	}
	var s Stats
	err = c.do(ctx, requestSpec{
		method:      http.MethodPatch,
		path:        "/stats",
		body:        body,
		contentType: "application/json",
		auth:        true,
		fallback:    MsgStatsFailed,
	}, &s)
	if err != nil {
		return nil, wrap("patch stats", err)
	}
	return &s, nil
}

// VerifyKey asks the backend whether key can reach the model provider.
func (c *Client) VerifyKey(ctx context.Context, key string) error {
	body, err := jsonBody(verifyKeyRequest{APIKey: key})
	if err != nil {
		return err
	}
	err = c.do(ctx, requestSpec{
		method:      http.MethodPost,
		path:        "/verify-key",
		body:        body,
		contentType: "application/json",
		fallback:    MsgInvalidKey,
	}, nil)
	return wrap("verify key", err)
}

// ClearData drops indexed documents. A zero chatID clears everything the
// backend holds for the user.
func (c *Client) ClearData(ctx context.Context, chatID model.ChatID) error {
	spec := requestSpec{
		method:    http.MethodDelete,
		path:      "/clear-data",
		auth:      true,
		customKey: true,
		fallback:  MsgClearFailed,
	}
	if !chatID.IsZero() {
		spec.chatID = chatID.String()
	}
	if err := c.do(ctx, spec, nil); err != nil {
		return wrap("clear data", err)
	}
	return nil
}

// DeleteAccount deletes the account that owns accessToken. The token is
// passed explicitly because the caller must capture it before signing out.
func (c *Client) DeleteAccount(ctx context.Context, accessToken string) error {
	tc := *c
	tc.tokens = TokenSourceFunc(func(context.Context) (string, error) { return accessToken, nil })
	err := tc.do(ctx, requestSpec{
		method:   http.MethodDelete,
		path:     "/account",
		auth:     true,
		fallback: MsgDeleteFailed,
	}, nil)
	if err != nil {
		return wrap("delete account", err)
	}
	return nil
}
