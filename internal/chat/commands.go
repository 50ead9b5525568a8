// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/jeranaias/mariechat/internal/api"
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/protocol"
)

// =============================================================================
// SEND OPTIONS
// =============================================================================

// SendOption adjusts an outgoing send_message.
type SendOption func(*protocol.SendMessage)

// WithAttachments attaches uploaded files.
func WithAttachments(a ...protocol.Attachment) SendOption {
	return func(m *protocol.SendMessage) { m.Attachments = append(m.Attachments, a...) }
}

// WithReferences points the model at other conversations or messages.
func WithReferences(conversationIDs, messageIDs []string) SendOption {
	return func(m *protocol.SendMessage) {
		m.ReferencedConvIDs = append(m.ReferencedConvIDs, conversationIDs...)
		m.ReferencedMsgIDs = append(m.ReferencedMsgIDs, messageIDs...)
	}
}

// WithWorkflow selects a server-side workflow.
func WithWorkflow(name string) SendOption {
	return func(m *protocol.SendMessage) { m.Workflow = name }
}

// WithModel overrides the model and provider for this message only.
func WithModel(modelID, provider string) SendOption {
	return func(m *protocol.SendMessage) {
		m.Model = modelID
		m.Provider = provider
	}
}

// =============================================================================
// SENDING
// =============================================================================

// SendMessage sends content to a conversation and returns its id. With an
// empty conversationID a conversation is created first. The room is joined
// and allowed to settle before send_message goes out; a disconnect during
// that wait holds the send until the room is rejoined or ctx ends.
//
// Failures set the error string and are returned; nothing is retried.
func (s *Session) SendMessage(ctx context.Context, content, conversationID string, opts ...SendOption) (string, error) {
	req := protocol.SendMessage{
		Message:           content,
		Stream:            !s.cfg.DisableStreaming,
		Attachments:       []protocol.Attachment{},
		ReferencedConvIDs: []string{},
		ReferencedMsgIDs:  []string{},
	}
	for _, opt := range opts {
		opt(&req)
	}
	return s.send(ctx, conversationID, req)
}

// Regenerate asks for a new answer to the last user message. The trailing
// assistant message is dropped locally and no new user message is echoed.
func (s *Session) Regenerate(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		conversationID = s.Current()
	}
	if conversationID == "" {
		return s.fail(ErrNoConversation)
	}

	s.mu.Lock()
	last, ok := s.thread(conversationID).LastOfRole(model.RoleUser)
	s.mu.Unlock()
	if !ok {
		return s.fail(ErrNothingToRegenerate)
	}

	_, err := s.send(ctx, conversationID, protocol.SendMessage{
		Message:           last.Content,
		Stream:            !s.cfg.DisableStreaming,
		Attachments:       []protocol.Attachment{},
		ReferencedConvIDs: []string{},
		ReferencedMsgIDs:  []string{},
		Regenerate:        true,
	})
	return err
}

func (s *Session) send(ctx context.Context, id string, req protocol.SendMessage) (string, error) {
	if s.cfg.Token == "" {
		return id, s.fail(ErrNotAuthenticated)
	}
	if !s.binding.Connected() {
		return id, s.fail(ErrNotConnected)
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Attachments) == 0 && !req.Regenerate {
		return id, s.fail(ErrEmptyMessage)
	}

	if id == "" {
		conv, err := s.createConversation(ctx, "")
		if err != nil {
			return "", err
		}
		id = conv.ID
	}

	// Claim the generation slot before any waiting, so a second send for
	// the same conversation is rejected rather than interleaved.
	s.mu.Lock()
	if s.acc.State(id).InFlight() {
		s.mu.Unlock()
		return id, s.fail(ErrStreamInFlight)
	}
	th := s.thread(id)
	epoch := s.acc.Begin(id, req.Stream)
	var echo, dropped model.Message
	if req.Regenerate {
		dropped, _ = th.DropLast(model.RoleAssistant)
	} else {
		echo = model.NewProvisional(id, model.RoleUser, req.Message, epoch)
		th.Append(echo)
	}
	s.current = id
	conv := s.convs[id]
	s.mu.Unlock()
	s.notify(Event{Kind: EventMessages, ConversationID: id})

	// undo puts the thread back the way the send found it.
	undo := func(th *model.Thread) {
		if echo.ID != "" {
			th.Remove(echo.ID)
		}
		if dropped.ID != "" && !th.Has(dropped.ID) {
			th.Append(dropped)
		}
	}

	abort := func(err error) (string, error) {
		s.mu.Lock()
		th := s.thread(id)
		s.acc.Fail(th)
		undo(th)
		s.mu.Unlock()
		s.notify(Event{Kind: EventMessages, ConversationID: id})
		return id, s.fail(err)
	}

	if err := s.enterRoom(ctx, id); err != nil {
		return abort(err)
	}
	// Join returns early while disconnected; the send waits for the rejoin.
	if err := s.rooms.WaitReady(ctx, id); err != nil {
		return abort(err)
	}

	// A stop issued while waiting for the room cancels the send.
	s.mu.Lock()
	st := s.acc.State(id)
	canceled := st.Epoch != epoch || st.Stopped
	if canceled {
		undo(s.thread(id))
	}
	s.mu.Unlock()
	if canceled {
		s.notify(Event{Kind: EventMessages, ConversationID: id})
		return id, ErrSendCanceled
	}

	req.ConversationID = id
	if req.Model == "" {
		req.Model, req.Provider = conv.Model, conv.Provider
	}
	if req.Model == "" {
		req.Model, req.Provider = s.cfg.Model, s.cfg.Provider
	}
	if err := s.binding.Emit(protocol.CmdSendMessage, req); err != nil {
		return abort(err)
	}
	s.logger.Debug("message sent", "conversation", id, "epoch", epoch, "regenerate", req.Regenerate)
	return id, nil
}

// enterRoom makes id the active room, leaving the previous one first.
func (s *Session) enterRoom(ctx context.Context, id string) error {
	active, _ := s.rooms.Active()
	if active == id && s.rooms.Ready(id) {
		return nil
	}
	if active != "" && active != id {
		if err := s.rooms.Leave(active); err != nil {
			s.logger.Warn("leave failed", "conversation", active, "err", err)
		}
		s.typing.Reset(active)
	}
	return s.rooms.Join(ctx, id)
}

// StopGeneration ends the conversation's generation. Local state goes idle
// before stop_generation is emitted; late events of the stopped generation
// are ignored. Stopping an idle conversation does nothing.
func (s *Session) StopGeneration(conversationID string) error {
	if conversationID == "" {
		conversationID = s.Current()
	}
	if conversationID == "" {
		return nil
	}

	s.mu.Lock()
	th := s.thread(conversationID)
	stopped := s.acc.Stop(th)
	var partial model.Message
	if tail, ok := th.Last(); ok && stopped && tail.Role == model.RoleAssistant {
		partial = tail
	}
	s.mu.Unlock()
	if !stopped {
		return nil
	}
	s.notify(Event{Kind: EventMessages, ConversationID: conversationID})
	if partial.ID != "" {
		s.archive(conversationID, partial)
	}

	if err := s.binding.Emit(protocol.CmdStopGeneration, protocol.StopGeneration{ConversationID: conversationID}); err != nil {
		return s.fail(fmt.Errorf("stop generation: %w", err))
	}
	return nil
}

// =============================================================================
// CONVERSATIONS (REST)
// =============================================================================

// LoadConversation fetches a conversation and its history, replaces the
// local thread wholesale and joins its room. On a REST failure the previous
// state is left untouched.
func (s *Session) LoadConversation(ctx context.Context, id string) error {
	if id == "" {
		return s.fail(ErrNoConversation)
	}
	conv, err := s.api.GetConversation(ctx, id)
	if err != nil {
		return s.fail(fmt.Errorf("load conversation: %w", err))
	}
	msgs, err := s.api.GetMessages(ctx, id, api.Page{})
	if err != nil {
		return s.fail(fmt.Errorf("load messages: %w", err))
	}

	s.mu.Lock()
	th := s.thread(id)
	th.Reset(msgs)
	s.convs[id] = *conv
	s.current = id
	all := th.Messages()
	s.mu.Unlock()

	s.notify(Event{Kind: EventMessages, ConversationID: id})
	s.archiveHistory(id, all)

	if err := s.enterRoom(ctx, id); err != nil {
		return s.fail(fmt.Errorf("join conversation: %w", err))
	}
	return nil
}

// CreateConversation creates a conversation with the session's model and
// returns its id, or "" and the error.
func (s *Session) CreateConversation(ctx context.Context, title string) (string, error) {
	conv, err := s.createConversation(ctx, title)
	if err != nil {
		return "", err
	}
	return conv.ID, nil
}

func (s *Session) createConversation(ctx context.Context, title string) (*model.Conversation, error) {
	if s.cfg.Token == "" {
		return nil, s.fail(ErrNotAuthenticated)
	}
	conv, err := s.api.CreateConversation(ctx, api.CreateConversationRequest{
		Title:    title,
		Model:    s.cfg.Model,
		Provider: s.cfg.Provider,
	})
	if err != nil {
		return nil, s.fail(fmt.Errorf("create conversation: %w", err))
	}

	s.mu.Lock()
	s.convs[conv.ID] = *conv
	s.thread(conv.ID)
	s.mu.Unlock()
	s.notify(Event{Kind: EventConversations, ConversationID: conv.ID})
	return conv, nil
}

// ListConversations fetches the conversation list and remembers it.
func (s *Session) ListConversations(ctx context.Context, page api.Page) ([]model.Conversation, error) {
	convs, err := s.api.ListConversations(ctx, page)
	if err != nil {
		return nil, s.fail(fmt.Errorf("list conversations: %w", err))
	}
	s.mu.Lock()
	for _, c := range convs {
		s.convs[c.ID] = c
	}
	s.mu.Unlock()
	return convs, nil
}

// DeleteConversation deletes a conversation on the server and drops every
// local trace of it.
func (s *Session) DeleteConversation(ctx context.Context, id string) error {
	if err := s.api.DeleteConversation(ctx, id); err != nil {
		return s.fail(fmt.Errorf("delete conversation: %w", err))
	}
	if err := s.rooms.Leave(id); err != nil {
		s.logger.Warn("leave failed", "conversation", id, "err", err)
	}

	s.mu.Lock()
	delete(s.threads, id)
	delete(s.convs, id)
	s.acc.Forget(id)
	if s.current == id {
		s.current = ""
	}
	s.mu.Unlock()
	s.typing.Reset(id)

	s.notify(Event{Kind: EventConversations, ConversationID: id})
	return nil
}

// RenameConversation changes a conversation's title.
func (s *Session) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return s.fail(fmt.Errorf("rename conversation: title is empty"))
	}
	if err := s.api.RenameConversation(ctx, id, title); err != nil {
		return s.fail(fmt.Errorf("rename conversation: %w", err))
	}
	s.mu.Lock()
	if c, ok := s.convs[id]; ok {
		c.Title = title
		s.convs[id] = c
	}
	s.mu.Unlock()
	s.notify(Event{Kind: EventConversations, ConversationID: id})
	return nil
}

// =============================================================================
// SIDE CHANNELS
// =============================================================================

// SetTyping sends the local typing indicator for a conversation.
func (s *Session) SetTyping(conversationID string, typing bool) error {
	if conversationID == "" {
		conversationID = s.Current()
	}
	if _, err := s.typing.Set(conversationID, typing); err != nil {
		s.logger.Debug("typing not sent", "err", err)
		return err
	}
	return nil
}

// Transcribe requests speech-to-text. The text arrives as an
// EventTranscription.
func (s *Session) Transcribe(audio []byte) error {
	if err := s.audio.Transcribe(audio, s.cfg.Language); err != nil {
		return s.fail(err)
	}
	return nil
}

// Speak requests synthesized audio for text. The audio arrives as an
// EventSpeech carrying messageID.
func (s *Session) Speak(text, messageID string) error {
	if err := s.audio.Speak(text, "", messageID); err != nil {
		return s.fail(err)
	}
	return nil
}

// GenerateImage queues an image generation and returns the conversation
// it reports into. Progress arrives as EventImage events.
func (s *Session) GenerateImage(ctx context.Context, prompt, conversationID string) (string, error) {
	if conversationID != "" {
		s.images.Begin(conversationID)
	}
	resp, err := s.api.GenerateImage(ctx, api.GenerateImageRequest{
		Prompt:         prompt,
		ConversationID: conversationID,
		TextModel:      s.cfg.Model,
		TextProvider:   s.cfg.Provider,
	})
	if err != nil {
		return conversationID, s.fail(fmt.Errorf("generate image: %w", err))
	}

	id := resp.ConversationID
	if id == "" {
		id = conversationID
	}
	if _, tracked := s.images.Get(id); !tracked {
		s.images.Begin(id)
	}
	if id != "" {
		s.mu.Lock()
		s.current = id
		s.thread(id)
		s.mu.Unlock()
		if err := s.enterRoom(ctx, id); err != nil {
			return id, s.fail(fmt.Errorf("join conversation: %w", err))
		}
	}
	return id, nil
}
