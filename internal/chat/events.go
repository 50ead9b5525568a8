// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/protocol"
	"github.com/jeranaias/mariechat/internal/transport"
)

// =============================================================================
// INBOUND EVENT HANDLERS
// =============================================================================

// handlers builds the binding's handler set. Every callback runs on the
// socket's read goroutine.
func (s *Session) handlers() transport.Handlers {
	return transport.Handlers{
		OnConnected: func(protocol.Connected) {
			s.notify(Event{Kind: EventStatus, Status: transport.StatusConnected})
		},
		OnDisconnected: func(reason string) {
			s.notify(Event{Kind: EventStatus, Status: transport.StatusDisconnected, Text: reason})
		},
		OnError: func(err error) {
			_ = s.fail(err)
			s.notify(Event{Kind: EventStatus, Status: s.binding.Status()})
		},

		OnStreamStart: func(ev protocol.StreamStart) {
			s.applyStream(ev.ConversationID, func(th *model.Thread) bool {
				return s.acc.Start(th)
			})
		},
		OnStreamChunk: func(ev protocol.StreamChunk) {
			s.applyStream(ev.ConversationID, func(th *model.Thread) bool {
				return s.acc.Chunk(th, ev)
			})
		},
		OnStreamEnd: func(ev protocol.StreamEnd) {
			if s.applyStream(ev.ConversationID, func(th *model.Thread) bool {
				return s.acc.End(th, ev)
			}) {
				s.archiveTail(ev.ConversationID)
			}
		},
		OnMessageResponse: func(ev protocol.MessageResponse) {
			if s.applyStream(ev.ConversationID, func(th *model.Thread) bool {
				return s.acc.Complete(th, ev)
			}) {
				s.archiveTail(ev.ConversationID)
			}
		},
		OnMessageReceived: s.onMessageReceived,

		OnServerError: s.onServerError,

		OnTranscription: func(r protocol.TranscriptionResult) {
			s.notify(Event{Kind: EventTranscription, Text: r.Text})
		},
		OnTTS: func(r protocol.TTSResult) {
			audio, err := r.Decode()
			if err != nil {
				_ = s.fail(err)
				return
			}
			s.notify(Event{Kind: EventSpeech, Audio: audio, MessageID: r.MessageID})
		},
		OnUserTyping: func(ev protocol.UserTyping) {
			s.typing.Observe(ev)
			s.notify(Event{Kind: EventTyping, ConversationID: ev.ConversationID})
		},
		OnImageProgress: func(ev protocol.ImageProgress) {
			if g, ok := s.images.Progress(ev); ok {
				s.notify(Event{Kind: EventImage, ConversationID: ev.ConversationID, Image: g})
			}
		},
		OnImageError: func(ev protocol.ImageError) {
			g, ok := s.images.Fail(ev)
			if !ok {
				return
			}
			s.mu.Lock()
			s.errMsg = g.Error
			s.mu.Unlock()
			s.notify(Event{Kind: EventImage, ConversationID: ev.ConversationID, Image: g})
			s.notify(Event{Kind: EventError, ConversationID: ev.ConversationID, Text: g.Error})
		},

		OnJoined: func(ev protocol.ConversationRef) {
			s.logger.Debug("server joined room", "conversation", ev.ConversationID)
		},
		OnLeft: func(ev protocol.ConversationRef) {
			s.logger.Debug("server left room", "conversation", ev.ConversationID)
		},
		OnGenerationStopped: func(ev protocol.ConversationRef) {
			// Local state was cleared when the stop was issued.
			s.logger.Debug("generation stopped", "conversation", ev.ConversationID)
		},
	}
}

// applyStream runs one accumulator transition under the lock and notifies
// when it took effect.
func (s *Session) applyStream(id string, step func(*model.Thread) bool) bool {
	if id == "" {
		s.logger.Warn("stream event without conversation id")
		return false
	}
	s.mu.Lock()
	changed := step(s.thread(id))
	s.mu.Unlock()

	if !changed {
		s.logger.Debug("stale stream event ignored", "conversation", id)
		return false
	}
	s.notify(Event{Kind: EventMessages, ConversationID: id})
	return true
}

func (s *Session) archiveTail(id string) {
	if s.archiver == nil {
		return
	}
	s.mu.Lock()
	tail, ok := s.thread(id).Last()
	s.mu.Unlock()
	if ok {
		s.archive(id, tail)
	}
}

// onMessageReceived confirms the oldest echoed user message.
func (s *Session) onMessageReceived(ev protocol.MessageReceived) {
	if ev.ConversationID == "" {
		return
	}
	s.mu.Lock()
	th := s.thread(ev.ConversationID)
	var confirmed model.Message
	ok := false
	for _, m := range th.Messages() {
		if m.Role == model.RoleUser && m.IsProvisional() {
			confirmed = m.Confirm()
			ok = th.ConfirmOldestProvisional(model.RoleUser)
			break
		}
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.notify(Event{Kind: EventMessages, ConversationID: ev.ConversationID})
	s.archive(ev.ConversationID, confirmed)
}

// onServerError surfaces the message and discards every in-flight
// generation. The event names no conversation, so all of them end.
func (s *Session) onServerError(se protocol.ServerError) {
	s.mu.Lock()
	s.errMsg = se.Message
	var failed []string
	for id, th := range s.threads {
		if s.acc.State(id).InFlight() {
			s.acc.Fail(th)
			failed = append(failed, id)
		}
	}
	s.mu.Unlock()

	for _, id := range failed {
		s.notify(Event{Kind: EventMessages, ConversationID: id})
	}
	s.notify(Event{Kind: EventError, Text: se.Message})
}
