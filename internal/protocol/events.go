// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the Socket.IO event names and payloads exchanged
// with the Marie Chat server.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// EVENT NAMES
// =============================================================================

// Inbound events (server -> client).
const (
	EventConnected           = "connected"
	EventStreamStart         = "stream_start"
	EventStreamChunk         = "stream_chunk"
	EventStreamEnd           = "stream_end"
	EventMessageResponse     = "message_response"
	EventMessageReceived     = "message_received"
	EventTranscriptionResult = "transcription_result"
	EventTTSResult           = "tts_result"
	EventUserTyping          = "user_typing"
	EventImageProgress       = "image_progress"
	EventImageError          = "image_error"
	EventJoinedConversation  = "joined_conversation"
	EventLeftConversation    = "left_conversation"
	EventGenerationStopped   = "generation_stopped"
	EventError               = "error"
)

// Outbound commands (client -> server).
const (
	CmdJoinConversation  = "join_conversation"
	CmdLeaveConversation = "leave_conversation"
	CmdSendMessage       = "send_message"
	CmdTyping            = "typing"
	CmdStopGeneration    = "stop_generation"
	CmdTranscribeAudio   = "transcribe_audio"
	CmdTextToSpeech      = "text_to_speech"
)

// InboundEvents lists every server event the client listens for. Listeners
// for all of them are registered when the socket object is created.
var InboundEvents = []string{
	EventConnected,
	EventStreamStart,
	EventStreamChunk,
	EventStreamEnd,
	EventMessageResponse,
	EventMessageReceived,
	EventTranscriptionResult,
	EventTTSResult,
	EventUserTyping,
	EventImageProgress,
	EventImageError,
	EventJoinedConversation,
	EventLeftConversation,
	EventGenerationStopped,
	EventError,
}

// DefaultVoice is the server's TTS voice when the request names none.
const DefaultVoice = "es-CO-GonzaloNeural"

// =============================================================================
// INBOUND PAYLOADS
// =============================================================================

// Connected is the post-auth acknowledgment sent after the handshake.
type Connected struct {
	Message string `json:"message,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// ConversationRef carries only a conversation id. Used by stream_start,
// joined_conversation, left_conversation and generation_stopped.
type ConversationRef struct {
	ConversationID string `json:"conversation_id"`
}

// StreamStart announces a new assistant stream.
type StreamStart = ConversationRef

// StreamChunk is one increment of assistant content.
type StreamChunk struct {
	ConversationID string   `json:"conversation_id"`
	Content        string   `json:"content"`
	Done           bool     `json:"done"`
	FollowUps      []string `json:"follow_ups,omitempty"`
}

// StreamEnd terminates a stream. Message is the persisted record when the
// server could find it.
type StreamEnd struct {
	ConversationID string         `json:"conversation_id"`
	Message        *model.Message `json:"message,omitempty"`
}

// MessageResponse carries a complete non-streaming response.
type MessageResponse struct {
	ConversationID string         `json:"conversation_id"`
	Message        *model.Message `json:"message,omitempty"`
}

// MessageReceived acknowledges a send_message command.
type MessageReceived struct {
	ConversationID    string       `json:"conversation_id"`
	Message           string       `json:"message"`
	Attachments       []Attachment `json:"attachments,omitempty"`
	ReferencedConvIDs []string     `json:"referenced_conv_ids,omitempty"`
	ReferencedMsgIDs  []string     `json:"referenced_msg_ids,omitempty"`
}

// TranscriptionResult is the speech-to-text result.
type TranscriptionResult struct {
	Text string `json:"text"`
}

// TTSResult carries base64 encoded audio.
type TTSResult struct {
	Audio     string `json:"audio"`
	MessageID string `json:"message_id,omitempty"`
}

// Decode returns the raw audio bytes.
func (r TTSResult) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(r.Audio)
	if err != nil {
		return nil, fmt.Errorf("decode tts audio: %w", err)
	}
	return data, nil
}

// UserTyping is a presence toggle for one user in one conversation.
type UserTyping struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ImageProgress reports image generation progress. ImageURL is set on the
// final event only.
type ImageProgress struct {
	ConversationID string `json:"conversation_id"`
	Step           int    `json:"step"`
	TotalSteps     int    `json:"total_steps"`
	Progress       int    `json:"progress"`
	Preview        string `json:"preview,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Final reports whether the event carries the finished image.
func (p ImageProgress) Final() bool {
	return p.ImageURL != ""
}

// ImageError terminates an image generation.
type ImageError struct {
	ConversationID string `json:"conversation_id"`
	Error          string `json:"error"`
	Message        string `json:"message,omitempty"`
}

// ServerError is the generic error event. The payload is unstructured: the
// server usually sends {"message": "..."} but any JSON value is accepted.
type ServerError struct {
	Message string
	Raw     json.RawMessage
}

// Error implements error.
func (e ServerError) Error() string {
	return e.Message
}

// DecodeServerError extracts a human readable message from an arbitrary
// error payload.
func DecodeServerError(raw json.RawMessage) ServerError {
	se := ServerError{Raw: raw}

	var obj struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		switch {
		case obj.Message != "":
			se.Message = obj.Message
		case obj.Error != "":
			se.Message = obj.Error
		}
	}
	if se.Message == "" {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			se.Message = s
		}
	}
	if se.Message == "" {
		se.Message = strings.TrimSpace(string(raw))
	}
	if se.Message == "" || se.Message == "null" {
		se.Message = "unknown server error"
	}
	return se
}

// =============================================================================
// OUTBOUND PAYLOADS
// =============================================================================

// Attachment is an uploaded file reference. Its shape belongs to the file
// service, so it is passed through untouched.
type Attachment map[string]any

// JoinConversation asks the server to attach the socket to a room.
type JoinConversation = ConversationRef

// LeaveConversation detaches the socket from a room.
type LeaveConversation = ConversationRef

// StopGeneration asks the server to abort the running generation.
type StopGeneration = ConversationRef

// SendMessage submits user content. The reference lists and attachments are
// always sent, empty when unused, matching what the server expects.
type SendMessage struct {
	ConversationID    string       `json:"conversation_id"`
	Message           string       `json:"message"`
	Stream            bool         `json:"stream"`
	Attachments       []Attachment `json:"attachments"`
	ReferencedConvIDs []string     `json:"referenced_conv_ids"`
	ReferencedMsgIDs  []string     `json:"referenced_msg_ids"`
	Regenerate        bool         `json:"regenerate"`
	Workflow          string       `json:"workflow,omitempty"`
	Model             string       `json:"model,omitempty"`
	Provider          string       `json:"provider,omitempty"`
}

// Typing toggles the local user's typing indicator.
type Typing struct {
	ConversationID string `json:"conversation_id"`
	IsTyping       bool   `json:"is_typing"`
}

// TranscribeAudio requests speech-to-text on base64 audio.
type TranscribeAudio struct {
	Audio    string `json:"audio"`
	Language string `json:"language,omitempty"`
}

// TextToSpeech requests synthesized audio for text.
type TextToSpeech struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id,omitempty"`
	Voice     string `json:"voice,omitempty"`
}
