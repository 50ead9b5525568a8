// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/mariechat/internal/model"
)

func sampleRecord(t *testing.T) *Record {
	t.Helper()
	created := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	tokens := 42
	conv := model.Conversation{
		ID:        "c1",
		Title:     "Verbos irregulares",
		Model:     "llama3",
		Provider:  "ollama",
		CreatedAt: model.Timestamp{Time: created},
	}
	msgs := []model.Message{
		{ID: "u1", Role: model.RoleUser, Content: "Conjuga ser", CreatedAt: model.Timestamp{Time: created}},
		{ID: "a1", Role: model.RoleAssistant, Content: "soy, eres, es", TokensUsed: &tokens,
			FollowUps: []string{"¿Y estar?"}, CreatedAt: model.Timestamp{Time: created.Add(time.Second)}},
		{ID: "a2", Role: model.RoleAssistant, Content: "parcial", Status: model.Finalized{}},
		model.NewProvisional("c1", model.RoleUser, "en vuelo", 3),
	}
	return FromConversation(conv, msgs)
}

func TestFromConversation(t *testing.T) {
	rec := sampleRecord(t)

	if rec.Title != "Verbos irregulares" || rec.Model != "llama3" {
		t.Fatalf("unexpected header: %+v", rec)
	}
	if len(rec.Messages) != 3 {
		t.Fatalf("expected provisional message to be skipped, got %d messages", len(rec.Messages))
	}
	if rec.Messages[1].TokensUsed != 42 {
		t.Errorf("tokens = %d, want 42", rec.Messages[1].TokensUsed)
	}
	if !rec.Messages[2].Partial {
		t.Error("finalized message should be marked partial")
	}
	if rec.Messages[0].Partial {
		t.Error("confirmed message marked partial")
	}
	if rec.ExportedAt.IsZero() {
		t.Error("ExportedAt not set")
	}
}

func TestFromConversation_UntitledFallsBack(t *testing.T) {
	rec := FromConversation(model.Conversation{ID: "x"}, nil)
	if rec.Title != "New Conversation" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Messages == nil {
		t.Error("messages must encode as an empty list, not null")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"md", FormatMarkdown, false},
		{" markdown ", FormatMarkdown, false},
		{"html", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSONExport(t *testing.T) {
	rec := sampleRecord(t)
	out, err := NewJSONExporter(nil).Export(rec)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var back Record
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if back.ID != "c1" || len(back.Messages) != 3 {
		t.Errorf("decoded %+v", back)
	}
	if !strings.Contains(string(out), `"follow_ups": [`) {
		t.Error("follow-ups missing from JSON output")
	}
}

func TestYAMLExport(t *testing.T) {
	rec := sampleRecord(t)
	out, err := NewYAMLExporter(nil).Export(rec)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var back Record
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if back.Title != rec.Title || back.Messages[1].Content != "soy, eres, es" {
		t.Errorf("decoded %+v", back)
	}
	if !back.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("created_at = %v, want %v", back.CreatedAt, rec.CreatedAt)
	}
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(nil).Export(sampleRecord(t))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	result := string(out)

	for _, want := range []string{
		"# Verbos irregulares",
		"- **Model**: llama3 (ollama)",
		"### You <sub>10:30:00</sub>",
		"### Marie <sub>10:30:01</sub>",
		"- ¿Y estar?",
		"<sub>(stopped)</sub>",
		"*Exported from Marie Chat on",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("output missing %q", want)
		}
	}
	if strings.Contains(result, "en vuelo") {
		t.Error("provisional message leaked into export")
	}
}

// TestMarkdownFrontmatterInjection checks that a hostile title cannot add
// keys to the frontmatter.
func TestMarkdownFrontmatterInjection(t *testing.T) {
	rec := sampleRecord(t)
	rec.Title = "Test\nInjection: malicious"

	out, err := NewMarkdownExporter(nil).Export(rec)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	parts := strings.SplitN(string(out), "---\n", 3)
	if len(parts) < 3 {
		t.Fatalf("no frontmatter in output:\n%s", out)
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		t.Fatalf("frontmatter is not valid YAML: %v", err)
	}
	if _, injected := fm["Injection"]; injected {
		t.Error("newline in title injected a frontmatter key")
	}
	if fm["title"] != rec.Title {
		t.Errorf("title = %q, want %q", fm["title"], rec.Title)
	}
	if !strings.Contains(string(out), "# Test Injection: malicious\n") {
		t.Error("heading should be folded onto one line")
	}
}

func TestMarkdownExport_Empty(t *testing.T) {
	if _, err := NewMarkdownExporter(nil).Export(&Record{Title: "x"}); err == nil {
		t.Error("expected error for a transcript without messages")
	}
	if _, err := NewMarkdownExporter(nil).Export(nil); err != ErrEmptyTranscript {
		t.Errorf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestExportToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	opts := DefaultOptions()
	opts.OutputDir = dir

	for _, format := range Formats {
		exp, err := New(format, opts)
		if err != nil {
			t.Fatalf("New(%s): %v", format, err)
		}
		path, err := ExportToFile(sampleRecord(t), exp, opts)
		if err != nil {
			t.Fatalf("ExportToFile(%s): %v", format, err)
		}
		if filepath.Dir(path) != dir {
			t.Errorf("path %s not in %s", path, dir)
		}
		base := filepath.Base(path)
		if !strings.HasPrefix(base, "conversation_Verbos_irregulares_") || !strings.HasSuffix(base, exp.FileExtension()) {
			t.Errorf("unexpected file name %s", base)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", base)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hola mundo", "hola_mundo"},
		{"a/b\\c:d", "a-b-c-d"},
		{"  ", "conversation"},
		{"tab\there", "tab_here"},
		{"bell\x07", "bell-"},
		{strings.Repeat("ñ", 60), strings.Repeat("ñ", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
