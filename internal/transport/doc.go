// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport binds an authenticated Socket.IO connection to the chat
// client.
//
// A Binding owns one socket at a time. Initialize creates it with the JWT in
// the CONNECT auth payload, the token query parameter and an Authorization
// header; Teardown closes it. Status only becomes StatusConnected when the
// server sends its post-auth "connected" event, and that event is also where
// the active conversation is rejoined after a reconnect.
//
// Inbound events are decoded into protocol payloads and routed to the
// current Handlers. The handler set lives in a single atomic slot so the
// owner can swap it at any time without re-registering listeners.
package transport
