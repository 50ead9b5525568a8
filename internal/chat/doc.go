// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the orchestrator between the views and the server.
//
// A Session owns the socket binding, the room manager, the per-conversation
// stream accumulator and the side-channel trackers. Views issue commands
// (SendMessage, StopGeneration, LoadConversation, ...) from any goroutine and
// read state through Snapshot; Subscribe delivers an Event after every
// change.
//
// Sending always goes through the room: the conversation is joined, the
// settle delay elapses, and only then is send_message emitted. A stop is
// applied locally before stop_generation leaves, so late chunks of the
// stopped generation never reach the thread.
package chat
