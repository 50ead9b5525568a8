// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream accumulates streamed assistant output into messages.
//
// Each conversation runs a small state machine:
//
//	Idle --stream_start--> Streaming --stream_chunk--> Streaming
//	Streaming --stream_end | error | Stop--> Idle
//
// While streaming, the thread's tail holds exactly one Provisional assistant
// message whose content is the full buffer so far. stream_end replaces it
// with the server's record, or marks it Finalized when none came; an error
// discards it.
//
// Begin opens a new epoch for every local send. Stop marks the epoch as
// stopped, so chunks the server had already queued for it are dropped
// instead of resurrecting the message.
//
// Chunks are applied in arrival order without reordering or
// de-duplication.
package stream
