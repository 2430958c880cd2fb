// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/api"
	"github.com/jeranaias/arkiv-tui/internal/authflow"
	"github.com/jeranaias/arkiv-tui/internal/config"
	"github.com/jeranaias/arkiv-tui/internal/identity"
	"github.com/jeranaias/arkiv-tui/internal/localstore"
	"github.com/jeranaias/arkiv-tui/internal/model"
)

const testAnswer = "The renewal term is 12 months."

// =============================================================================
// FAKE BACKEND
// =============================================================================

type fakeBackend struct {
	mu             sync.Mutex
	questions      []string
	uploads        [][]string
	clearedChats   []string
	accountDeleted bool
	verified       []string
}

func (b *fakeBackend) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/health":
			w.Write([]byte(`{"status":"ok"}`))

		case r.Method == http.MethodPost && r.URL.Path == "/upload":
			if err := r.ParseMultipartForm(10 << 20); err != nil {
				t.Errorf("parse upload: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var names []string
			for _, fh := range r.MultipartForm.File["files"] {
				names = append(names, fh.Filename)
			}
			b.uploads = append(b.uploads, names)
			json.NewEncoder(w).Encode(api.UploadResult{FilesProcessed: names, ChunksCreated: 2})

		case r.Method == http.MethodPost && r.URL.Path == "/ask":
			var req struct {
				Question string `json:"question"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			b.questions = append(b.questions, req.Question)
			json.NewEncoder(w).Encode(map[string]string{"answer": testAnswer})

		case r.URL.Path == "/stats":
			w.Write([]byte(`{"files_processed":3,"tokens_used":1500}`))

		case r.Method == http.MethodPost && r.URL.Path == "/verify-key":
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			for _, v := range req {
				b.verified = append(b.verified, v)
				if strings.HasPrefix(v, "bad") {
					w.WriteHeader(http.StatusBadRequest)
					w.Write([]byte(`{"detail":"Invalid API Key"}`))
					return
				}
			}
			w.Write([]byte(`{"valid":true}`))

		case r.Method == http.MethodDelete && r.URL.Path == "/clear-data":
			b.clearedChats = append(b.clearedChats, r.Header.Get(api.HeaderChatID))
			w.Write([]byte(`{}`))

		case r.Method == http.MethodDelete && r.URL.Path == "/account":
			b.accountDeleted = true
			w.Write([]byte(`{}`))

		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"not found"}`))
		}
	})
}

// =============================================================================
// FAKE IDENTITY
// =============================================================================

type fakeIdentity struct {
	mu      sync.Mutex
	updates []identity.UserUpdate
}

func testSession(email string) *identity.Session {
	return &identity.Session{
		AccessToken:  "tok-" + email,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		User:         model.User{ID: "user-1", Email: email},
	}
}

func (f *fakeIdentity) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if password != "correct-horse" {
		return nil, &identity.Error{Status: http.StatusBadRequest, Code: "invalid_credentials", Message: "Invalid login credentials"}
	}
	return testSession(email), nil
}

func (f *fakeIdentity) SignUp(ctx context.Context, p identity.SignUpParams) (identity.SignUpResult, error) {
	return identity.SignUpResult{User: model.User{ID: "user-2", Email: p.Email}}, nil
}

func (f *fakeIdentity) SendOTP(ctx context.Context, email, redirectTo string) error { return nil }

func (f *fakeIdentity) VerifyOTP(ctx context.Context, email, token string, typ identity.OTPType) (*identity.Session, error) {
	if token != "123456" {
		return nil, &identity.Error{Status: http.StatusForbidden, Message: "Token has expired or is invalid"}
	}
	return testSession(email), nil
}

func (f *fakeIdentity) Resend(ctx context.Context, email string, typ identity.OTPType) error {
	return nil
}

func (f *fakeIdentity) Recover(ctx context.Context, email, redirectTo string) error { return nil }

func (f *fakeIdentity) RefreshSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	return nil, &identity.Error{Status: http.StatusBadRequest, Message: "Invalid Refresh Token"}
}

func (f *fakeIdentity) GetUser(ctx context.Context, accessToken string) (*model.User, error) {
	return &model.User{ID: "user-1", Email: "ada@example.com"}, nil
}

func (f *fakeIdentity) UpdateUser(ctx context.Context, accessToken string, upd identity.UserUpdate) (*model.User, error) {
	f.mu.Lock()
	f.updates = append(f.updates, upd)
	f.mu.Unlock()
	return nil, nil
}

func (f *fakeIdentity) Logout(ctx context.Context, accessToken string) error { return nil }

func (f *fakeIdentity) AuthorizeURL(provider, redirectTo string) string {
	return "https://id.example.com/authorize?provider=" + provider
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

// testEnv runs commands against a fake backend and identity provider. Each
// run builds a fresh Runtime over the same local store, like separate
// invocations of the binary.
type testEnv struct {
	t         *testing.T
	backend   *fakeBackend
	idp       *fakeIdentity
	kv        *localstore.MemoryStore
	cfg       *config.Config
	cfgPath   string
	clipboard string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := &fakeBackend{}
	srv := httptest.NewServer(backend.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.UI.Markdown = false

	return &testEnv{
		t:       t,
		backend: backend,
		idp:     &fakeIdentity{},
		kv:      localstore.NewMemory(),
		cfg:     cfg,
		cfgPath: filepath.Join(t.TempDir(), "config.toml"),
	}
}

// signIn persists a session as a previous "arkiv login" would have.
func (e *testEnv) signIn() {
	e.t.Helper()
	require.NoError(e.t, localstore.SetJSON(context.Background(), e.kv, localstore.SessionKey, testSession("ada@example.com")))
}

// run executes argv with input on stdin and returns the exit code and the
// captured streams.
func (e *testEnv) run(input string, argv ...string) (int, string, string) {
	e.t.Helper()
	var out, errb bytes.Buffer
	args := Parse(argv)
	r := NewRuntime(e.cfg, e.kv, args.Options,
		WithIdentity(e.idp),
		WithIO(strings.NewReader(input), &out, &errb),
		WithVariant(authflow.VariantPassword),
		WithClipboard(func(s string) error { e.clipboard = s; return nil }),
	)
	r.ConfigPath = e.cfgPath
	code := Execute(context.Background(), args, r)
	require.NoError(e.t, r.Close())
	return code, out.String(), errb.String()
}

// jsonData decodes the data member of a --json envelope.
func jsonData[T any](t *testing.T, stdout string) T {
	t.Helper()
	var resp struct {
		Success bool    `json:"success"`
		Data    T       `json:"data"`
		Error   *string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp), "stdout: %s", stdout)
	require.True(t, resp.Success, "error: %v", resp.Error)
	return resp.Data
}
