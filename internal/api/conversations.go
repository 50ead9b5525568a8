// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversationRequest is the body of POST /api/conversations.
type CreateConversationRequest struct {
	Title        string         `json:"title,omitempty"`
	Model        string         `json:"model,omitempty"`
	Provider     string         `json:"provider,omitempty"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
}

// UpdateConversationRequest is the body of PATCH /api/conversations/{id}.
// Nil fields are left unchanged.
type UpdateConversationRequest struct {
	Title        *string        `json:"title,omitempty"`
	Model        *string        `json:"model,omitempty"`
	Provider     *string        `json:"provider,omitempty"`
	SystemPrompt *string        `json:"system_prompt,omitempty"`
	Settings     map[string]any `json:"settings,omitempty"`
}

// Page limits a list call. Zero values use the server defaults.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) values() url.Values {
	q := url.Values{}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	return q
}

func conversationPath(id string) string {
	return "/api/conversations/" + url.PathEscape(id)
}

// CreateConversation creates a conversation and returns the stored document.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (*model.Conversation, error) {
	if req.Title == "" {
		req.Title = "New Conversation"
	}
	var conv model.Conversation
	if err := c.do(ctx, http.MethodPost, "/api/conversations", nil, req, &conv); err != nil {
		return nil, err
	}
	if conv.ID == "" {
		return nil, &Error{Type: ErrTypeInvalidResponse, Message: "server returned a conversation without an id"}
	}
	return &conv, nil
}

// ListConversations returns the user's conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context, page Page) ([]model.Conversation, error) {
	var out struct {
		Conversations []model.Conversation `json:"conversations"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations", page.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Conversations, nil
}

// GetConversation fetches one conversation document.
func (c *Client) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := c.do(ctx, http.MethodGet, conversationPath(id), nil, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// UpdateConversation patches a conversation.
func (c *Client) UpdateConversation(ctx context.Context, id string, req UpdateConversationRequest) error {
	return c.do(ctx, http.MethodPatch, conversationPath(id), nil, req, nil)
}

// RenameConversation sets a conversation's title.
func (c *Client) RenameConversation(ctx context.Context, id, title string) error {
	return c.UpdateConversation(ctx, id, UpdateConversationRequest{Title: &title})
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, conversationPath(id), nil, nil, nil)
}

// GetMessages returns a conversation's messages in chronological order.
func (c *Client) GetMessages(ctx context.Context, id string, page Page) ([]model.Message, error) {
	var out struct {
		Messages []model.Message `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, conversationPath(id)+"/messages", page.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// SearchResult is one hit of a conversation search. The server returns
// either conversation or message documents depending on scope; both carry
// these fields.
type SearchResult struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Title          string          `json:"title,omitempty"`
	Content        string          `json:"content,omitempty"`
	Role           model.Role      `json:"role,omitempty"`
	Score          float64         `json:"score,omitempty"`
	UpdatedAt      model.Timestamp `json:"updated_at"`
	CreatedAt      model.Timestamp `json:"created_at"`
}

// SearchScope selects what SearchConversations matches.
type SearchScope string

const (
	ScopeConversations SearchScope = "conversations"
	ScopeMessages      SearchScope = "messages"
)

// SearchConversations runs a full-text search over titles or message bodies.
func (c *Client) SearchConversations(ctx context.Context, query string, scope SearchScope, page Page) ([]SearchResult, error) {
	if query == "" {
		return nil, nil
	}
	q := page.values()
	q.Set("q", query)
	if scope != "" {
		q.Set("scope", string(scope))
	}
	var out struct {
		Results []SearchResult `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/conversations/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
