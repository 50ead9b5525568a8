// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the domain types shared by the transport, the stream
// accumulator and the chat session.
//
// # Key Types
//
//   - Conversation: the server's conversation document
//   - Message: single message with role, content and a confirmation Status
//   - Status: Provisional, Finalized or Confirmed
//   - Thread: ordered message list of one conversation, provisional tail included
//   - ModelInfo / Catalog: the server's model registry
//
// # Confirmation Status
//
// Messages synthesized by the client before the server answers are
// Provisional and carry the generation epoch that produced them. A stream
// that ends without an authoritative record leaves them Finalized. Anything
// decoded from the server is Confirmed:
//
//	switch st := msg.Status.(type) {
//	case model.Provisional:
//	    fmt.Println("streaming, epoch", st.Epoch)
//	case model.Finalized:
//	    fmt.Println("done, local only")
//	case model.Confirmed, nil:
//	    fmt.Println("persisted")
//	}
package model
