// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mariechat/internal/archive"
	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/config"
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/stream"
)

// =============================================================================
// HELPERS
// =============================================================================

// isolate points the config directory at a temp dir and clears the
// environment overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MARIE_CONFIG_DIR", dir)
	for _, k := range []string{"MARIE_SERVER_URL", "MARIE_TOKEN", "MARIE_MODEL", "MARIE_PROVIDER", "MARIE_LOG_LEVEL", "MARIE_ARCHIVE"} {
		t.Setenv(k, "")
	}
	config.ResetGlobalForTesting()
	t.Cleanup(config.ResetGlobalForTesting)
	return dir
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg, cfgFile = nil, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// fakeServer records requests and answers the REST routes.
type fakeServer struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
}

func newFakeServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	fs := &fakeServer{bodies: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(fs.serve))
	t.Cleanup(srv.Close)
	return fs, srv.URL
}

func (fs *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	fs.mu.Lock()
	key := r.Method + " " + r.URL.Path
	fs.requests = append(fs.requests, key)
	fs.bodies[key] = string(body)
	fs.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if strings.HasPrefix(r.URL.Path, "/api/") && r.Header.Get("Authorization") != "Bearer jwt" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	switch key {
	case "GET /api/conversations":
		_, _ = w.Write([]byte(`{"conversations":[
			{"id":"c1","title":"Recetas de cocina","message_count":4,"updated_at":"2025-03-01T10:00:00"},
			{"id":"c2","title":"","message_count":0}]}`))
	case "GET /api/conversations/c1":
		_, _ = w.Write([]byte(`{"id":"c1","title":"Recetas de cocina","model":"llama3.2","provider":"ollama"}`))
	case "GET /api/conversations/c1/messages":
		_, _ = w.Write([]byte(`{"messages":[
			{"id":"m1","conversation_id":"c1","role":"user","content":"¿Cómo hago una tortilla?","created_at":"2025-03-01T10:00:00"},
			{"id":"m2","conversation_id":"c1","role":"assistant","content":"Con huevos y patatas.","created_at":"2025-03-01T10:00:05"}]}`))
	case "GET /api/conversations/empty":
		_, _ = w.Write([]byte(`{"id":"empty","title":"Nada"}`))
	case "GET /api/conversations/empty/messages":
		_, _ = w.Write([]byte(`{"messages":[]}`))
	case "DELETE /api/conversations/c1", "DELETE /api/conversations/c2", "PATCH /api/conversations/c1":
		w.WriteHeader(http.StatusNoContent)
	case "GET /api/conversations/search":
		_, _ = w.Write([]byte(`{"results":[{"id":"c1","title":"Recetas de cocina"}]}`))
	case "GET /api/models":
		_, _ = w.Write([]byte(`{"models":{"ollama":[{"id":"llama3.2","name":"Llama 3.2","provider":"ollama","context_length":128000}]},"total":1}`))
	case "GET /health/live":
		_, _ = w.Write([]byte(`{"status":"alive"}`))
	case "GET /health/ready":
		_, _ = w.Write([]byte(`{"status":"ready","checks":{"database":"ok"}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	}
}

func (fs *fakeServer) seen(key string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for _, r := range fs.requests {
		if r == key {
			return true
		}
	}
	return false
}

func (fs *fakeServer) body(key string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.bodies[key]
}

// =============================================================================
// ROOT / VERSION / CONFIG
// =============================================================================

func TestVersionCommand(t *testing.T) {
	isolate(t)
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mariechat dev")
	assert.Contains(t, out, "go:")
}

func TestVersionCommand_SkipsInvalidConfig(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[server]\nurl = \"ftp://x\"\n"), 0o600))

	_, err := execute(t, "version")
	assert.NoError(t, err)
}

func TestInvalidServerFlag(t *testing.T) {
	isolate(t)
	_, err := execute(t, "config", "show", "--server", "ftp://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestConfigInitShowPath(t *testing.T) {
	dir := isolate(t)
	want := filepath.Join(dir, "config.toml")

	out, err := execute(t, "config", "init", "--server", "https://marie.example.com", "--token", "secret-jwt")
	require.NoError(t, err)
	assert.Contains(t, out, want)

	info, err := os.Stat(want)
	require.NoError(t, err)
	if filepath.Separator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	_, err = execute(t, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(out))

	out, err = execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "https://marie.example.com")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "secret-jwt")
}

func TestConfigSetGet(t *testing.T) {
	isolate(t)

	_, err := execute(t, "config", "set", "ui.conversation_limit", "20")
	require.NoError(t, err)

	out, err := execute(t, "config", "get", "ui.conversation_limit")
	require.NoError(t, err)
	assert.Equal(t, "20", strings.TrimSpace(out))

	_, err = execute(t, "config", "set", "ui.conversation_limit", "9999")
	require.Error(t, err)

	_, err = execute(t, "config", "get", "server.token")
	require.Error(t, err)

	_, err = execute(t, "config", "get", "nope.nothing")
	require.Error(t, err)
}

func TestConfigSet_DoesNotPersistEnvironment(t *testing.T) {
	dir := isolate(t)
	t.Setenv("MARIE_TOKEN", "from-env")

	_, err := execute(t, "config", "set", "chat.voice", "es-ES-ElviraNeural")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "es-ES-ElviraNeural")
	assert.NotContains(t, string(data), "from-env")
}

func TestSessionConfig(t *testing.T) {
	c := config.Default()
	c.Server.Token = "jwt"
	c.Chat.Stream = false
	c.Chat.Model, c.Chat.Provider = "llama3.2", "ollama"

	sc := sessionConfig(c)
	assert.Equal(t, c.Server.URL, sc.ServerURL)
	assert.Equal(t, "/socket.io/", sc.SocketPath)
	assert.Equal(t, "jwt", sc.Token)
	assert.True(t, sc.DisableStreaming)
	assert.Equal(t, c.Chat.JoinSettle(), sc.JoinSettle)
	assert.Equal(t, c.Server.RequestTimeout(), sc.RequestTimeout)
	assert.Equal(t, "llama3.2", sc.Model)
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversationsList(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	out, err := execute(t, "conversations", "list", "--server", url, "--token", "jwt")
	require.NoError(t, err)
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "Recetas de cocina")
	assert.Contains(t, out, "c2")
}

func TestConversationsList_JSON(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	out, err := execute(t, "conversations", "list", "--json", "--server", url, "--token", "jwt")
	require.NoError(t, err)

	var convs []model.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &convs))
	require.Len(t, convs, 2)
	assert.Equal(t, 4, convs[0].MessageCount)
}

func TestConversationsList_RequiresToken(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	_, err := execute(t, "conversations", "list", "--server", url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNotAuthenticated))
}

func TestConversationsList_Archive(t *testing.T) {
	dir := isolate(t)

	arc, err := archive.Open(filepath.Join(dir, "archive.db"))
	require.NoError(t, err)
	conv := model.Conversation{ID: "arch1", Title: "Guardada"}
	msg := model.Message{ID: "m1", ConversationID: "arch1", Role: model.RoleUser, Content: "hola", Status: model.Confirmed{}}
	require.NoError(t, arc.Store(context.Background(), conv, msg))
	require.NoError(t, arc.Close())

	out, err := execute(t, "conversations", "list", "--archive")
	require.NoError(t, err)
	assert.Contains(t, out, "arch1")
	assert.Contains(t, out, "Guardada")
}

func TestConversationsDeleteRename(t *testing.T) {
	isolate(t)
	fs, url := newFakeServer(t)

	out, err := execute(t, "conversations", "delete", "c1", "c2", "--server", url, "--token", "jwt")
	require.NoError(t, err)
	assert.True(t, fs.seen("DELETE /api/conversations/c1"))
	assert.True(t, fs.seen("DELETE /api/conversations/c2"))
	assert.Contains(t, out, "Deleted")

	_, err = execute(t, "conversations", "rename", "c1", "Nuevo", "título", "--server", url, "--token", "jwt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Nuevo título"}`, fs.body("PATCH /api/conversations/c1"))
}

func TestConversationsDelete_NotFound(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	_, err := execute(t, "conversations", "delete", "missing", "--server", url, "--token", "jwt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestConversationsSearch(t *testing.T) {
	isolate(t)
	fs, url := newFakeServer(t)

	out, err := execute(t, "conversations", "search", "recetas", "--server", url, "--token", "jwt")
	require.NoError(t, err)
	assert.True(t, fs.seen("GET /api/conversations/search"))
	assert.Contains(t, out, "Recetas de cocina")
}

// =============================================================================
// EXPORT
// =============================================================================

func TestExport_Stdout(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	out, err := execute(t, "export", "c1", "--format", "json", "--stdout", "--server", url, "--token", "jwt")
	require.NoError(t, err)
	assert.Contains(t, out, "Con huevos y patatas.")

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
}

func TestExport_File(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)
	outDir := t.TempDir()

	out, err := execute(t, "export", "c1", "--format", "md", "--output", outDir, "--server", url, "--token", "jwt")
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".md"))
	assert.Contains(t, out, entries[0].Name())

	data, err := os.ReadFile(filepath.Join(outDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Recetas de cocina")
}

func TestExport_Errors(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	_, err := execute(t, "export", "c1", "--format", "pdf", "--server", url, "--token", "jwt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported export format")

	_, err = execute(t, "export", "empty", "--stdout", "--server", url, "--token", "jwt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no messages")

	_, err = execute(t, "export", "--server", url, "--token", "jwt")
	require.Error(t, err)
}

// =============================================================================
// MODELS / HEALTH
// =============================================================================

func TestModels(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	out, err := execute(t, "models", "--server", url, "--token", "jwt")
	require.NoError(t, err)
	assert.Contains(t, out, "ollama")
	assert.Contains(t, out, "llama3.2")
	assert.Contains(t, out, "128K tokens")
	assert.Contains(t, out, "1 models")
}

func TestHealth(t *testing.T) {
	isolate(t)
	_, url := newFakeServer(t)

	out, err := execute(t, "health", "--server", url)
	require.NoError(t, err)
	assert.Contains(t, out, "[OK]")
	assert.Contains(t, out, "database")
}

func TestHealth_Unreachable(t *testing.T) {
	isolate(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	out, err := execute(t, "health", "--server", url)
	require.Error(t, err)
	assert.Contains(t, out, "[FAIL]")
}

// =============================================================================
// REPL RENDERING
// =============================================================================

func newTestREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()
	cfg = config.Default()
	t.Cleanup(func() { cfg = nil })

	var out bytes.Buffer
	r := newREPL(nil, &out)
	r.waiting = make(chan struct{})
	r.known = map[string]bool{}
	return r, &out
}

func streaming() stream.State {
	return stream.State{Phase: stream.Streaming}
}

func TestREPL_PrintsStreamedDeltas(t *testing.T) {
	r, out := newTestREPL(t)
	done := r.waiting

	user := model.Message{ID: "u1", Role: model.RoleUser, Content: "hola", Status: model.Confirmed{}}
	partial := model.NewProvisional("c1", model.RoleAssistant, "Ho", 1)

	r.render(core.Snapshot{Messages: []model.Message{user, partial}, Stream: streaming()})
	partial.Content = "Hola, ¿qué"
	r.render(core.Snapshot{Messages: []model.Message{user, partial}, Stream: streaming()})

	final := model.Message{ID: "srv-1", Role: model.RoleAssistant, Content: "Hola, ¿qué tal?",
		FollowUps: []string{"¿Y tú?"}, Status: model.Confirmed{}}
	r.render(core.Snapshot{Messages: []model.Message{user, final}})

	assert.Equal(t, "marie> Hola, ¿qué tal?\n> ¿Y tú?\n", out.String())
	select {
	case <-done:
	default:
		t.Fatal("wait was not released")
	}
	assert.False(t, r.busy())
}

func TestREPL_StoppedAnswer(t *testing.T) {
	r, out := newTestREPL(t)

	partial := model.NewProvisional("c1", model.RoleAssistant, "Un moment", 1)
	r.render(core.Snapshot{Messages: []model.Message{partial}, Stream: streaming()})

	partial.Status = model.Finalized{}
	r.render(core.Snapshot{Messages: []model.Message{partial}, Stream: stream.State{Stopped: true}})

	assert.Contains(t, out.String(), "Un moment\n")
	assert.Contains(t, out.String(), "(stopped)")
	assert.False(t, r.busy())
}

func TestREPL_IgnoresEarlierAnswers(t *testing.T) {
	r, out := newTestREPL(t)
	old := model.Message{ID: "a0", Role: model.RoleAssistant, Content: "respuesta vieja", Status: model.Confirmed{}}
	r.known["a0"] = true

	// A failed send leaves the earlier answer last and the stream idle.
	r.render(core.Snapshot{Messages: []model.Message{old}})

	assert.Empty(t, out.String())
	assert.False(t, r.busy())
}

func TestREPL_DivergentFinalIsNotReprinted(t *testing.T) {
	r, out := newTestREPL(t)

	partial := model.NewProvisional("c1", model.RoleAssistant, "abc", 1)
	r.render(core.Snapshot{Messages: []model.Message{partial}, Stream: streaming()})
	final := model.Message{ID: "srv", Role: model.RoleAssistant, Content: "xyz", Status: model.Confirmed{}}
	r.render(core.Snapshot{Messages: []model.Message{final}})

	assert.Equal(t, "marie> abc\n", out.String())
}

func TestREPL_NotWaitingPrintsNothing(t *testing.T) {
	r, out := newTestREPL(t)
	r.finish()
	r.finish()

	r.render(core.Snapshot{Messages: []model.Message{model.NewProvisional("c1", model.RoleAssistant, "x", 1)}})
	assert.Empty(t, out.String())
}

func TestCompleteCommand(t *testing.T) {
	assert.Nil(t, completeCommand("hola"))
	assert.Equal(t, []string{"/regen "}, completeCommand("/reg"))
	assert.Contains(t, completeCommand("/"), "/quit ")
}

func TestExportSnapshot(t *testing.T) {
	cfg = config.Default()
	t.Cleanup(func() { cfg = nil })

	_, err := exportSnapshot(core.Snapshot{}, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nothing to export")

	_, err = exportSnapshot(core.Snapshot{ConversationID: "c1"}, "docx", "")
	require.Error(t, err)

	dir := t.TempDir()
	snap := core.Snapshot{
		ConversationID: "c1",
		Conversation:   model.Conversation{ID: "c1", Title: "Prueba"},
		Messages: []model.Message{
			{ID: "m1", Role: model.RoleUser, Content: "hola", Status: model.Confirmed{}},
		},
	}
	path, err := exportSnapshot(snap, "yaml", dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
}

func TestLastAssistant(t *testing.T) {
	msgs := []model.Message{
		{ID: "a1", Role: model.RoleAssistant, Content: "uno", Status: model.Confirmed{}},
		{ID: "u1", Role: model.RoleUser, Content: "dos", Status: model.Confirmed{}},
		model.NewProvisional("c1", model.RoleAssistant, "", 2),
	}
	got, ok := lastAssistant(msgs)
	require.True(t, ok)
	assert.Equal(t, "a1", got.ID)

	_, ok = lastAssistant(nil)
	assert.False(t, ok)
}
