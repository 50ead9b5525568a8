// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package archive keeps an opt-in local copy of settled transcripts in
// SQLite (modernc.org/sqlite, no cgo).
//
// The server stays the source of truth. The archive only records messages
// the client has seen settle: server-confirmed records and answers kept
// after a stop. Store upserts by message id, so archiving the same history
// twice is harmless.
package archive
