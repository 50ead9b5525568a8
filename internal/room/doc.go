// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package room tracks conversation room membership on the chat socket.
//
// The server only routes stream events for a conversation to sockets that
// joined its room, and a join needs a moment to take effect. Manager records
// the single active conversation optimistically, emits join_conversation,
// and reports a room as ready once the settle delay has passed on the
// current connection. Callers that are about to send wait on WaitReady.
//
// After a reconnect the transport asks RejoinTarget for the room to restore
// and calls MarkJoined once the join went out; Disconnected resets every
// room's readiness.
package room
