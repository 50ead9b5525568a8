// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"strings"
)

// MaxMessages is the maximum number of messages to keep in a thread.
// When exceeded, old messages are pruned to prevent unbounded memory growth.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the server's conversation document.
type Conversation struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id,omitempty"`
	Title         string         `json:"title"`
	Model         string         `json:"model,omitempty"`
	Provider      string         `json:"provider,omitempty"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	Settings      map[string]any `json:"settings,omitempty"`
	MessageCount  int            `json:"message_count"`
	LastMessageAt Timestamp      `json:"last_message_at"`
	CreatedAt     Timestamp      `json:"created_at"`
	UpdatedAt     Timestamp      `json:"updated_at"`
}

// DisplayTitle returns the title or a placeholder.
func (c Conversation) DisplayTitle() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	return "New Conversation"
}

// =============================================================================
// THREAD
// =============================================================================

// Thread is the ordered message list of one conversation as the client sees
// it, provisional entries included. It is not safe for concurrent use; the
// owner serializes access.
type Thread struct {
	ConversationID string
	messages       []Message
}

// NewThread creates an empty thread.
func NewThread(conversationID string) *Thread {
	return &Thread{ConversationID: conversationID}
}

// Messages returns a copy of the ordered messages.
func (t *Thread) Messages() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Thread) Len() int {
	return len(t.messages)
}

// Reset replaces the whole message list.
func (t *Thread) Reset(messages []Message) {
	t.messages = t.messages[:0]
	for _, m := range messages {
		if m.Status == nil {
			m.Status = Confirmed{}
		}
		t.messages = append(t.messages, m)
	}
	t.prune()
}

// Append adds a message at the tail.
func (t *Thread) Append(m Message) {
	t.messages = append(t.messages, m)
	t.prune()
}

// Last returns the tail message.
func (t *Thread) Last() (Message, bool) {
	if len(t.messages) == 0 {
		return Message{}, false
	}
	return t.messages[len(t.messages)-1], true
}

// SetLast overwrites the tail message. It is a no-op on an empty thread.
func (t *Thread) SetLast(m Message) {
	if len(t.messages) == 0 {
		return
	}
	t.messages[len(t.messages)-1] = m
}

// ProvisionalCount counts provisional messages with the given role.
func (t *Thread) ProvisionalCount(role Role) int {
	n := 0
	for _, m := range t.messages {
		if m.Role == role && m.IsProvisional() {
			n++
		}
	}
	return n
}

// RemoveProvisional drops every provisional message with the given role and
// returns how many were removed.
func (t *Thread) RemoveProvisional(role Role) int {
	kept := t.messages[:0]
	removed := 0
	for _, m := range t.messages {
		if m.Role == role && m.IsProvisional() {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	t.messages = kept
	return removed
}

// ReplaceProvisional drops every provisional message with the role of
// confirmed and appends confirmed in their place.
func (t *Thread) ReplaceProvisional(confirmed Message) {
	t.RemoveProvisional(confirmed.Role)
	t.Append(confirmed.Confirm())
}

// FinalizeProvisional marks provisional messages with the given role as
// Finalized. Empty ones are dropped. Returns how many were kept.
func (t *Thread) FinalizeProvisional(role Role) int {
	kept := t.messages[:0]
	finalized := 0
	for _, m := range t.messages {
		if m.Role == role && m.IsProvisional() {
			if m.IsEmpty() {
				continue
			}
			m.Status = Finalized{}
			finalized++
		}
		kept = append(kept, m)
	}
	t.messages = kept
	return finalized
}

// ConfirmOldestProvisional marks the oldest provisional message with the
// given role as confirmed. Returns false when there is none.
func (t *Thread) ConfirmOldestProvisional(role Role) bool {
	for i, m := range t.messages {
		if m.Role == role && m.IsProvisional() {
			t.messages[i] = m.Confirm()
			return true
		}
	}
	return false
}

// Has reports whether a message with the given id is present.
func (t *Thread) Has(id string) bool {
	for _, m := range t.messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Remove deletes the message with the given id.
func (t *Thread) Remove(id string) bool {
	for i, m := range t.messages {
		if m.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return true
		}
	}
	return false
}

// DropLast removes the tail message when it has the given role.
func (t *Thread) DropLast(role Role) (Message, bool) {
	last, ok := t.Last()
	if !ok || last.Role != role {
		return Message{}, false
	}
	t.messages = t.messages[:len(t.messages)-1]
	return last, true
}

// LastOfRole returns the most recent message with the given role.
func (t *Thread) LastOfRole(role Role) (Message, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return t.messages[i], true
		}
	}
	return Message{}, false
}

// prune keeps the thread within MaxMessages by dropping the oldest entries.
// Provisional messages live at the tail, so they always survive.
func (t *Thread) prune() {
	if len(t.messages) <= MaxMessages {
		return
	}
	excess := len(t.messages) - MaxMessages
	t.messages = append(t.messages[:0:0], t.messages[excess:]...)
}
