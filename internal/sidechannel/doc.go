// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sidechannel handles the request/response traffic that rides next
// to the chat stream: speech-to-text, text-to-speech, typing presence and
// image generation progress.
//
// Results are projections. Transcription and TTS results are handed to the
// caller once and not kept; typing presence and image progress are small
// per-conversation records that the next event overwrites.
package sidechannel

// Emitter sends commands over the live connection.
type Emitter interface {
	Emit(event string, payload any) error
}
