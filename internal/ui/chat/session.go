// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/jeranaias/mariechat/internal/api"
	core "github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/model"
)

// Session is the part of the chat session the view drives. *core.Session
// satisfies it.
type Session interface {
	SendMessage(ctx context.Context, content, conversationID string, opts ...core.SendOption) (string, error)
	Regenerate(ctx context.Context, conversationID string) error
	StopGeneration(conversationID string) error

	LoadConversation(ctx context.Context, id string) error
	CreateConversation(ctx context.Context, title string) (string, error)
	ListConversations(ctx context.Context, page api.Page) ([]model.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	RenameConversation(ctx context.Context, id, title string) error

	SetTyping(conversationID string, typing bool) error
	Speak(text, messageID string) error
	GenerateImage(ctx context.Context, prompt, conversationID string) (string, error)

	Reconnect(ctx context.Context) error

	Snapshot() core.Snapshot
	Current() string
	RoomReady(id string) bool
	ClearError()
	Subscribe(fn func(core.Event)) (unsubscribe func())
}

var _ Session = (*core.Session)(nil)
