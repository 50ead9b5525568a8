// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// BUBBLE TEA MESSAGES
// =============================================================================

// TickMsg drives the frame loop that drains the event buffer.
type TickMsg struct {
	Time time.Time
}

// SendResultMsg reports how a send_message attempt ended. The answer itself
// arrives through session events.
type SendResultMsg struct {
	ConversationID string
	Err            error
}

// ActionResultMsg reports a slash command that ran in the background.
type ActionResultMsg struct {
	Action string
	Notice string
	Err    error
}

// ConversationsMsg carries a fetched conversation list.
type ConversationsMsg struct {
	Conversations []model.Conversation
	// Show prints the list into the notices.
	Show bool
	Err  error
}

// ExportResultMsg reports an export to disk.
type ExportResultMsg struct {
	Path string
	Err  error
}
