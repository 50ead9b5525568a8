// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sidechannel

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/mariechat/internal/protocol"
)

// Typing tracks who is typing in each conversation and sends the local
// user's indicator.
type Typing struct {
	emitter Emitter
	limiter *rate.Limiter

	mu       sync.Mutex
	presence map[string]map[string]bool // conversation -> user -> typing
}

// TypingOption configures Typing.
type TypingOption func(*Typing)

// WithTypingInterval sends at most one "is typing" indicator per interval.
// Stop indicators are never held back. Zero disables the limit.
func WithTypingInterval(d time.Duration) TypingOption {
	return func(t *Typing) {
		if d > 0 {
			t.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// NewTyping creates a typing tracker. Without options every call to Set is
// sent.
func NewTyping(e Emitter, opts ...TypingOption) *Typing {
	t := &Typing{
		emitter:  e,
		presence: make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Set sends the local user's typing state. It reports whether an event was
// actually emitted.
func (t *Typing) Set(conversationID string, typing bool) (bool, error) {
	if conversationID == "" {
		return false, nil
	}
	if typing && t.limiter != nil && !t.limiter.Allow() {
		return false, nil
	}
	err := t.emitter.Emit(protocol.CmdTyping, protocol.Typing{
		ConversationID: conversationID,
		IsTyping:       typing,
	})
	if err != nil {
		return false, fmt.Errorf("typing: %w", err)
	}
	return true, nil
}

// Observe applies a user_typing event.
func (t *Typing) Observe(ev protocol.UserTyping) {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.presence[ev.ConversationID]
	if ev.IsTyping {
		if users == nil {
			users = make(map[string]bool)
			t.presence[ev.ConversationID] = users
		}
		users[ev.UserID] = true
		return
	}
	delete(users, ev.UserID)
	if len(users) == 0 {
		delete(t.presence, ev.ConversationID)
	}
}

// Typists returns the users typing in a conversation, sorted.
func (t *Typing) Typists(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := t.presence[conversationID]
	out := make([]string, 0, len(users))
	for u := range users {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Reset forgets presence for a conversation.
func (t *Typing) Reset(conversationID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.presence, conversationID)
}
