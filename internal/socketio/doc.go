// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package socketio implements a Socket.IO v5 client over the Engine.IO v4
// WebSocket transport.
//
// Only what a chat client needs is supported: text EVENT packets in both
// directions, server pings, CONNECT with an auth payload, and automatic
// reconnection with a constant delay. Binary packets, acks and HTTP
// long-polling are not implemented.
//
// # Usage
//
//	c := socketio.New(socketio.Config{
//	    URL:  "http://localhost:5000",
//	    Auth: map[string]any{"token": token},
//	})
//	c.On("stream_chunk", func(payload json.RawMessage) { ... })
//	c.OnConnect(func() { ... })
//	if err := c.Connect(ctx); err != nil {
//	    return err
//	}
//	defer c.Close()
//
// Handlers run on the read goroutine in arrival order, so a slow handler
// delays every later event.
//
// # Reconnection
//
// A dropped transport is retried up to Config.ReconnectAttempts times,
// Config.ReconnectDelay apart. A CONNECT_ERROR from the server (bad token)
// and a server-initiated disconnect are final.
package socketio
