// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import "github.com/jeranaias/mariechat/internal/protocol"

// Handlers receives inbound events. Nil fields are skipped. All callbacks run
// on the socket's read goroutine, serially, in arrival order.
type Handlers struct {
	// Connection lifecycle.
	OnConnected    func(protocol.Connected)
	OnDisconnected func(reason string)
	OnError        func(err error)

	// Streaming.
	OnStreamStart     func(protocol.StreamStart)
	OnStreamChunk     func(protocol.StreamChunk)
	OnStreamEnd       func(protocol.StreamEnd)
	OnMessageResponse func(protocol.MessageResponse)
	OnMessageReceived func(protocol.MessageReceived)

	// Side channels.
	OnTranscription func(protocol.TranscriptionResult)
	OnTTS           func(protocol.TTSResult)
	OnUserTyping    func(protocol.UserTyping)
	OnImageProgress func(protocol.ImageProgress)
	OnImageError    func(protocol.ImageError)

	// Room acknowledgments.
	OnJoined            func(protocol.ConversationRef)
	OnLeft              func(protocol.ConversationRef)
	OnGenerationStopped func(protocol.ConversationRef)

	// OnServerError receives the generic "error" event.
	OnServerError func(protocol.ServerError)
}

func (h *Handlers) fireError(err error) {
	if h != nil && h.OnError != nil {
		h.OnError(err)
	}
}
