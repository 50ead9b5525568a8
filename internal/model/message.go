// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Marie"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// CONFIRMATION STATUS
// =============================================================================

// Status records whether a message is backed by a server record. It is a
// closed set: Provisional, Finalized and Confirmed are the only variants.
type Status interface {
	isStatus()
	String() string
}

// Provisional marks a client-synthesized message whose content may still
// grow. Epoch is the generation attempt that created it.
type Provisional struct {
	Epoch uint64
}

// Finalized marks a message that stopped growing without the server ever
// supplying its persisted record (stop, or stream_end without a message).
type Finalized struct{}

// Confirmed marks a message backed by the server.
type Confirmed struct{}

func (Provisional) isStatus() {}
func (Finalized) isStatus()   {}
func (Confirmed) isStatus()   {}

func (Provisional) String() string { return "provisional" }
func (Finalized) String() string   { return "finalized" }
func (Confirmed) String() string   { return "confirmed" }

// =============================================================================
// TIMESTAMP
// =============================================================================

// Timestamp is a time that tolerates the server's naive ISO-8601 strings
// (Python isoformat without a zone). Naive values are taken as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses s with every supported layout. The zero time is
// returned for empty or unparseable input.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// UnmarshalJSON accepts strings and null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = ParseTimestamp(*s)
	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation. The JSON shape is
// the server's message document.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	CreatedAt      Timestamp      `json:"created_at"`
	TokensUsed     *int           `json:"tokens_used,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	FollowUps      []string       `json:"follow_ups,omitempty"`

	// Status is local bookkeeping, never sent or received.
	Status Status `json:"-"`
}

// NewProvisional creates a locally synthesized message for a generation
// attempt.
func NewProvisional(conversationID string, role Role, content string, epoch uint64) Message {
	return Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      Timestamp{time.Now().UTC()},
		Status:         Provisional{Epoch: epoch},
	}
}

// Confirm returns the message marked as server-backed. Decoded server
// messages carry no status, so every inbound record passes through here.
func (m Message) Confirm() Message {
	m.Status = Confirmed{}
	return m
}

// IsProvisional reports whether the message is still client-synthesized.
func (m Message) IsProvisional() bool {
	_, ok := m.Status.(Provisional)
	return ok
}

// IsConfirmed reports whether the server backs the message.
func (m Message) IsConfirmed() bool {
	switch m.Status.(type) {
	case Confirmed:
		return true
	case nil:
		// Zero value: decoded straight off the wire.
		return true
	}
	return false
}

// Epoch returns the generation attempt of a provisional message.
func (m Message) Epoch() (uint64, bool) {
	p, ok := m.Status.(Provisional)
	return p.Epoch, ok
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}
