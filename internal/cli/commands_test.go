// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arkiv-tui/internal/config"
)

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// =============================================================================
// AUTH
// =============================================================================

func TestLogin_PasswordFromStdin(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := env.run("correct-horse\n", "login", "ada@example.com")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Signed in as ada@example.com")

	// The session survives into the next invocation.
	code, stdout, _ = env.run("", "--json", "whoami")
	require.Equal(t, ExitSuccess, code)
	info := jsonData[userInfo](t, stdout)
	assert.Equal(t, "ada@example.com", info.Email)
	assert.Equal(t, "user-1", info.ID)
}

func TestLogin_RejectedCredentials(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("wrong\n", "login", "ada@example.com")
	assert.Equal(t, ExitAuthError, code)
	assert.Contains(t, stderr, "Invalid login credentials")
}

func TestLogin_MissingPasswordIsUsageError(t *testing.T) {
	env := newTestEnv(t)
	code, _, _ := env.run("\n", "login", "ada@example.com")
	assert.Equal(t, ExitUsageError, code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	code, stdout, _ := env.run("", "logout")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Signed out")

	code, _, _ = env.run("", "whoami")
	assert.Equal(t, ExitAuthError, code)
}

func TestVerify_RejectsShortCode(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("", "verify", "ada@example.com", "12")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "6-digit code")
}

func TestVerify_SignsIn(t *testing.T) {
	env := newTestEnv(t)
	code, stdout, stderr := env.run("", "verify", "ada@example.com", "123 456")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Signed in as ada@example.com")
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestAsk_RequiresDocuments(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	code, _, stderr := env.run("", "ask", "What is the renewal term?")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "no documents uploaded yet")
	assert.Empty(t, env.backend.questions)
}

func TestAsk_UploadsThenAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	doc := writeDoc(t, "contract.txt", "The contract renews every 12 months.")

	code, stdout, stderr := env.run("", "--json", "ask", "--file", doc, "What", "is", "the", "renewal", "term?")
	require.Equal(t, ExitSuccess, code, stderr)

	data := jsonData[map[string]any](t, stdout)
	assert.Equal(t, testAnswer, data["answer"])
	assert.Equal(t, "What is the renewal term?", data["question"])
	assert.NotEmpty(t, data["chat_id"])

	require.Len(t, env.backend.uploads, 1)
	assert.Equal(t, []string{"contract.txt"}, env.backend.uploads[0])
	assert.Equal(t, []string{"What is the renewal term?"}, env.backend.questions)

	// The conversation is in history.
	code, stdout, _ = env.run("", "--json", "history")
	require.Equal(t, ExitSuccess, code)
	chats := jsonData[[]chatSummary](t, stdout)
	require.Len(t, chats, 1)
	assert.Equal(t, data["chat_id"], chats[0].ID)
	assert.Equal(t, []string{"contract.txt"}, chats[0].Files)
	assert.Equal(t, 2, chats[0].Messages)
}

func TestUpload_RejectsUnsupportedFiles(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	bin := writeDoc(t, "tool.exe", "MZ")

	code, _, stderr := env.run("", "upload", bin)
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "no supported files")
	assert.Empty(t, env.backend.uploads)
}

func TestUpload_Folder(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# beta"), 0600))

	code, stdout, stderr := env.run("", "upload", dir)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Processed 2 file(s)")
	require.Len(t, env.backend.uploads, 1)
	assert.ElementsMatch(t, []string{"a.txt", "b.md"}, env.backend.uploads[0])
}

func TestReset_NeedsYesWhenNotInteractive(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	code, stdout, _ := env.run("", "--json", "reset", "all")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stdout, "confirmation required")
	assert.Empty(t, env.backend.clearedChats)

	code, stdout, _ = env.run("", "reset", "all", "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Knowledge base cleared successfully!")
	assert.Equal(t, []string{""}, env.backend.clearedChats, "global reset is not scoped to a chat")
}

// =============================================================================
// HISTORY
// =============================================================================

func TestHistory_ShowExportDelete(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	doc := writeDoc(t, "notes.md", "# Notes\nRenewal is yearly.")

	code, stdout, stderr := env.run("", "--json", "ask", "--file", doc, "How often does it renew?")
	require.Equal(t, ExitSuccess, code, stderr)
	id := jsonData[map[string]any](t, stdout)["chat_id"].(string)

	code, stdout, _ = env.run("", "history", "show", id)
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "How often does it renew?")
	assert.Contains(t, stdout, testAnswer)

	out := filepath.Join(t.TempDir(), "chat.md")
	code, _, stderr = env.run("", "history", "export", id, "--output", out)
	require.Equal(t, ExitSuccess, code, stderr)
	md, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(md), "**You**:")
	assert.Contains(t, string(md), testAnswer)

	code, _, _ = env.run("", "history", "delete", id)
	assert.Equal(t, ExitUsageError, code, "piped input needs --yes")

	code, _, _ = env.run("", "history", "delete", id, "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, []string{id}, env.backend.clearedChats)

	code, _, _ = env.run("", "history", "show", id)
	assert.Equal(t, ExitNotFoundError, code)
}

func TestHistory_BadID(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	code, _, stderr := env.run("", "history", "show", "not-a-number")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "invalid chat id")
}

// =============================================================================
// KEYS
// =============================================================================

func TestKeys_AddSelectCopyDelete(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	code, stdout, stderr := env.run("", "keys", "add", "AIzaGood1234")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "1234 added")
	assert.Equal(t, []string{"AIzaGood1234"}, env.backend.verified)

	code, _, _ = env.run("", "keys", "add", "bad-key-0000")
	assert.NotEqual(t, ExitSuccess, code)

	code, stdout, _ = env.run("", "keys", "select", "1")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Using Gemini Key 1")

	code, stdout, _ = env.run("", "--json", "keys")
	require.Equal(t, ExitSuccess, code)
	list := jsonData[[]keyInfo](t, stdout)
	require.Len(t, list, 1)
	assert.True(t, list[0].Active)
	assert.NotContains(t, stdout, "AIzaGood1234", "keys are masked")

	code, _, _ = env.run("", "keys", "copy", "1")
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, "AIzaGood1234", env.clipboard)

	code, _, _ = env.run("", "keys", "delete", "1", "--yes")
	require.Equal(t, ExitSuccess, code)

	code, stdout, _ = env.run("", "keys", "select", "default")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "Using the default key")

	code, _, _ = env.run("", "keys", "test", "3")
	assert.Equal(t, ExitNotFoundError, code)
}

// =============================================================================
// ACCOUNT
// =============================================================================

func TestAccount_NameAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()

	code, stdout, stderr := env.run("", "account", "name", "Ada", "Lovelace")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Profile updated")
	require.Len(t, env.idp.updates, 1)
	assert.Equal(t, "Ada Lovelace", env.idp.updates[0].Data["display_name"])

	code, _, _ = env.run("", "account", "delete")
	assert.Equal(t, ExitUsageError, code)
	assert.False(t, env.backend.accountDeleted)

	code, _, _ = env.run("", "account", "delete", "--yes")
	require.Equal(t, ExitSuccess, code)
	assert.True(t, env.backend.accountDeleted)

	code, _, _ = env.run("", "whoami")
	assert.Equal(t, ExitAuthError, code)
}

func TestAccount_PasswordMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	code, _, stderr := env.run("secret-one\nsecret-two\n", "account", "password")
	assert.Equal(t, ExitUsageError, code)
	assert.Contains(t, stderr, "Passwords do not match")
	assert.Empty(t, env.idp.updates)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	code, stdout, _ := env.run("", "stats")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "1,500")
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_SetWritesFile(t *testing.T) {
	env := newTestEnv(t)

	code, stdout, stderr := env.run("", "config", "set", "api.timeout_secs", "30")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Set api.timeout_secs = 30")

	cfg, err := config.LoadFromPath(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.API.TimeoutSecs)
}

func TestConfig_Errors(t *testing.T) {
	env := newTestEnv(t)

	code, _, _ := env.run("", "config", "set", "api.nope", "1")
	assert.Equal(t, ExitNotFoundError, code)

	code, _, _ = env.run("", "config", "set", "logging.level", "loud")
	assert.Equal(t, ExitConfigError, code)
	_, err := os.Stat(env.cfgPath)
	assert.True(t, os.IsNotExist(err), "invalid values are not saved")
}

func TestConfig_ShowMasksAnonKey(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Identity.AnonKey = "eyJhbGciOiJIUzI1NiJ9.secret.signature"

	code, stdout, _ := env.run("", "config", "show")
	require.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout, "[api]")
	assert.NotContains(t, stdout, "secret.signature")
}

// =============================================================================
// DOCTOR
// =============================================================================

func TestDoctor_SignedOutIsHealthy(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Storage.DataDir = t.TempDir()

	code, stdout, stderr := env.run("", "--json", "doctor")
	require.Equal(t, ExitSuccess, code, stderr)
	data := jsonData[struct {
		Checks  []doctorCheck `json:"checks"`
		Summary doctorSummary `json:"summary"`
	}](t, stdout)
	assert.True(t, data.Summary.Healthy)
	assert.Equal(t, 1, data.Summary.Warned, "not signed in")

	names := make([]string, 0, len(data.Checks))
	for _, c := range data.Checks {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"config", "data_dir", "backend", "identity", "session"}, names)
}

// =============================================================================
// CHAT REPL
// =============================================================================

func TestChat_SlashCommands(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	doc := writeDoc(t, "handbook.txt", "Vacation is 25 days.")

	input := strings.Join([]string{
		"/help",
		"What is the vacation policy?",
		"/add " + doc,
		"/files",
		"/upload",
		"What is the vacation policy?",
		"/bogus",
		"/quit",
	}, "\n") + "\n"

	code, stdout, stderr := env.run(input, "chat")
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, stdout, "Commands:")
	assert.Contains(t, stdout, "handbook.txt")
	assert.Contains(t, stdout, testAnswer)
	assert.Contains(t, stderr, "Upload documents first")
	assert.Contains(t, stderr, "Unknown command /bogus")
	assert.Equal(t, []string{"What is the vacation policy?"}, env.backend.questions)
}

func TestChat_RejectsJSON(t *testing.T) {
	env := newTestEnv(t)
	env.signIn()
	code, _, _ := env.run("", "--json", "chat")
	assert.Equal(t, ExitUsageError, code)
}
