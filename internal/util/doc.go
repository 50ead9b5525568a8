// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the client packages.
//
// File Operations:
//   - WriteFileAtomic: crash-safe writes (temp file, fsync, rename)
//
// Terminal text:
//   - Width, Truncate, PadRight: cell-width aware string fitting
//   - FirstLine: one-line previews of message content
//
// # Usage
//
//	// Persist a settings file without risking a torn write
//	err := util.WriteFileAtomic(path, data, 0o600)
//
//	// Fit a conversation title into a list column
//	title := util.PadRight(conv.DisplayTitle(), 32)
package util
