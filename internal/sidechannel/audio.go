// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sidechannel

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/mariechat/internal/protocol"
)

var (
	// ErrEmptyAudio is returned when there is nothing to transcribe.
	ErrEmptyAudio = errors.New("audio is empty")

	// ErrEmptyText is returned when there is nothing to speak.
	ErrEmptyText = errors.New("text is empty")
)

// Audio issues transcription and speech requests.
type Audio struct {
	emitter Emitter
	voice   string
}

// NewAudio creates an audio side channel. An empty voice uses the server
// default.
func NewAudio(e Emitter, voice string) *Audio {
	if voice == "" {
		voice = protocol.DefaultVoice
	}
	return &Audio{emitter: e, voice: voice}
}

// Voice returns the voice used when Speak is given none.
func (a *Audio) Voice() string {
	return a.voice
}

// Transcribe sends recorded audio for speech-to-text. The result arrives as
// a transcription_result event.
func (a *Audio) Transcribe(audio []byte, language string) error {
	if len(audio) == 0 {
		return ErrEmptyAudio
	}
	req := protocol.TranscribeAudio{
		Audio:    base64.StdEncoding.EncodeToString(audio),
		Language: language,
	}
	if err := a.emitter.Emit(protocol.CmdTranscribeAudio, req); err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	return nil
}

// Speak requests synthesized audio for text. The result arrives as a
// tts_result event tagged with messageID.
func (a *Audio) Speak(text, voice, messageID string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if voice == "" {
		voice = a.voice
	}
	req := protocol.TextToSpeech{Text: text, MessageID: messageID, Voice: voice}
	if err := a.emitter.Emit(protocol.CmdTextToSpeech, req); err != nil {
		return fmt.Errorf("text to speech: %w", err)
	}
	return nil
}
