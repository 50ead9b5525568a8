// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"time"

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// TRANSCRIPT RECORD
// =============================================================================

// Record is the exported shape of a conversation. It carries its own tags so
// the JSON and YAML output stay stable when the wire types change.
type Record struct {
	ID         string          `json:"id" yaml:"id"`
	Title      string          `json:"title" yaml:"title"`
	Model      string          `json:"model,omitempty" yaml:"model,omitempty"`
	Provider   string          `json:"provider,omitempty" yaml:"provider,omitempty"`
	CreatedAt  time.Time       `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
	ExportedAt time.Time       `json:"exported_at" yaml:"exported_at"`
	Messages   []MessageRecord `json:"messages" yaml:"messages"`
}

// MessageRecord is one exported message.
type MessageRecord struct {
	ID         string    `json:"id" yaml:"id"`
	Role       string    `json:"role" yaml:"role"`
	Content    string    `json:"content" yaml:"content"`
	CreatedAt  time.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty" yaml:"tokens_used,omitempty"`
	FollowUps  []string  `json:"follow_ups,omitempty" yaml:"follow_ups,omitempty"`
	// Partial marks an answer cut short by a stop.
	Partial bool `json:"partial,omitempty" yaml:"partial,omitempty"`
}

// =============================================================================
// CONVERSION UTILITIES
// =============================================================================

// FromConversation builds a record from a conversation and its thread.
// Provisional messages are skipped.
func FromConversation(conv model.Conversation, msgs []model.Message) *Record {
	rec := &Record{
		ID:         conv.ID,
		Title:      conv.DisplayTitle(),
		Model:      conv.Model,
		Provider:   conv.Provider,
		CreatedAt:  conv.CreatedAt.Time,
		UpdatedAt:  conv.UpdatedAt.Time,
		ExportedAt: time.Now().UTC(),
		Messages:   make([]MessageRecord, 0, len(msgs)),
	}

	for _, m := range msgs {
		if m.IsProvisional() {
			continue
		}
		mr := MessageRecord{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt.Time,
			FollowUps: m.FollowUps,
		}
		if m.TokensUsed != nil {
			mr.TokensUsed = *m.TokensUsed
		}
		if _, ok := m.Status.(model.Finalized); ok {
			mr.Partial = true
		}
		rec.Messages = append(rec.Messages, mr)
	}

	if rec.CreatedAt.IsZero() && len(rec.Messages) > 0 {
		rec.CreatedAt = rec.Messages[0].CreatedAt
	}
	return rec
}
