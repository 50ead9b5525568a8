// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"testing"
	"time"
)

// =============================================================================
// MODEL INFO TESTS
// =============================================================================

func TestModelInfo_ContextString(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{"unknown", 0, "unknown"},
		{"small", 512, "512 tokens"},
		{"thousands", 128000, "128K tokens"},
		{"millions", 2000000, "2.0M tokens"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ModelInfo{ContextLength: tc.n}.ContextString()
			if got != tc.want {
				t.Errorf("ContextString() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	cat := Catalog{
		"ollama": {
			{ID: "llama3.2", Name: "Llama 3.2", Provider: "ollama"},
			{ID: "qwen2.5:7b", Name: "Qwen 2.5 7B", Provider: "ollama"},
		},
		"huggingface": {
			{ID: "meta-llama/Llama-3.1-8B", Name: "Llama 3.1 8B", Provider: "huggingface"},
		},
	}

	if cat.Total() != 3 {
		t.Errorf("Total() = %d, want 3", cat.Total())
	}

	if info, ok := cat.Lookup("", "qwen2.5:7b"); !ok || info.Name != "Qwen 2.5 7B" {
		t.Errorf("Lookup by id = %+v, %v", info, ok)
	}

	if info, ok := cat.Lookup("HuggingFace", "llama"); !ok || info.Provider != "huggingface" {
		t.Errorf("Lookup scoped to provider = %+v, %v", info, ok)
	}

	if _, ok := cat.Lookup("openai", "llama3.2"); ok {
		t.Error("Lookup should fail for a provider without the model")
	}

	providers := cat.Providers()
	if len(providers) != 2 || providers[0] != "huggingface" {
		t.Errorf("Providers() = %v, want sorted names", providers)
	}
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_DecodeServerDocument(t *testing.T) {
	raw := `{"id":"m1","conversation_id":"c1","role":"assistant","content":"Hello world",
		"created_at":"2025-01-02T03:04:05.123456","tokens_used":12,"metadata":{"type":"text"}}`

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if msg.ID != "m1" || msg.Role != RoleAssistant || msg.Content != "Hello world" {
		t.Errorf("unexpected message %+v", msg)
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 123456000, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", msg.CreatedAt.Time, want)
	}
	if msg.TokensUsed == nil || *msg.TokensUsed != 12 {
		t.Errorf("TokensUsed = %v, want 12", msg.TokensUsed)
	}
	if !msg.IsConfirmed() {
		t.Error("decoded message should count as confirmed")
	}
}

func TestTimestamp_NullAndZone(t *testing.T) {
	var conv Conversation
	raw := `{"id":"c1","title":"t","last_message_at":null,"created_at":"2025-01-02T03:04:05+02:00"}`
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !conv.LastMessageAt.IsZero() {
		t.Errorf("LastMessageAt = %v, want zero", conv.LastMessageAt.Time)
	}
	if conv.CreatedAt.Hour() != 1 {
		t.Errorf("CreatedAt hour = %d, want 1 (UTC)", conv.CreatedAt.Hour())
	}

	out, err := json.Marshal(conv.LastMessageAt)
	if err != nil || string(out) != "null" {
		t.Errorf("Marshal zero = %s, %v", out, err)
	}
}

func TestMessage_StatusVariants(t *testing.T) {
	msg := NewProvisional("c1", RoleAssistant, "", 7)
	if !msg.IsProvisional() || msg.IsConfirmed() {
		t.Fatalf("new provisional has status %v", msg.Status)
	}
	if epoch, ok := msg.Epoch(); !ok || epoch != 7 {
		t.Errorf("Epoch() = %d, %v", epoch, ok)
	}

	msg.Status = Finalized{}
	if msg.IsProvisional() || msg.IsConfirmed() {
		t.Errorf("finalized status misreported: %v", msg.Status)
	}

	if !msg.Confirm().IsConfirmed() {
		t.Error("Confirm() should mark the message confirmed")
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := Message{Content: "héllo   wörld\nsecond line"}
	if got := msg.Preview(8); got != "héllo..." {
		t.Errorf("Preview(8) = %q", got)
	}
	if got := msg.Preview(100); got != "héllo wörld second line" {
		t.Errorf("Preview(100) = %q", got)
	}
}

// =============================================================================
// THREAD TESTS
// =============================================================================

func TestThread_ReplaceProvisional(t *testing.T) {
	th := NewThread("c1")
	th.Append(Message{ID: "u1", Role: RoleUser, Content: "hi"}.Confirm())
	th.Append(NewProvisional("c1", RoleAssistant, "Hel", 1))

	th.ReplaceProvisional(Message{ID: "m1", Role: RoleAssistant, Content: "Hello"})

	msgs := th.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len = %d, want 2", len(msgs))
	}
	if msgs[1].ID != "m1" || !msgs[1].IsConfirmed() {
		t.Errorf("tail = %+v", msgs[1])
	}
	if th.ProvisionalCount(RoleAssistant) != 0 {
		t.Error("provisional assistant messages should be gone")
	}
}

func TestThread_FinalizeProvisionalDropsEmpty(t *testing.T) {
	th := NewThread("c1")
	th.Append(NewProvisional("c1", RoleAssistant, "", 1))
	if kept := th.FinalizeProvisional(RoleAssistant); kept != 0 {
		t.Errorf("kept = %d, want 0", kept)
	}
	if th.Len() != 0 {
		t.Errorf("Len() = %d, want 0", th.Len())
	}

	th.Append(NewProvisional("c1", RoleAssistant, "partial", 2))
	th.FinalizeProvisional(RoleAssistant)
	last, _ := th.Last()
	if _, ok := last.Status.(Finalized); !ok {
		t.Errorf("status = %v, want finalized", last.Status)
	}
}

func TestThread_ConfirmOldestProvisional(t *testing.T) {
	th := NewThread("c1")
	first := NewProvisional("c1", RoleUser, "one", 1)
	second := NewProvisional("c1", RoleUser, "two", 2)
	th.Append(first)
	th.Append(second)

	if !th.ConfirmOldestProvisional(RoleUser) {
		t.Fatal("expected a provisional user message")
	}
	msgs := th.Messages()
	if !msgs[0].IsConfirmed() || !msgs[1].IsProvisional() {
		t.Errorf("statuses = %v, %v", msgs[0].Status, msgs[1].Status)
	}
}

func TestThread_Prune(t *testing.T) {
	th := NewThread("c1")
	for i := 0; i < MaxMessages+5; i++ {
		th.Append(Message{Role: RoleUser, Content: "x"}.Confirm())
	}
	if th.Len() != MaxMessages {
		t.Errorf("Len() = %d, want %d", th.Len(), MaxMessages)
	}
}
