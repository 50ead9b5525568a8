// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation transcripts to files.
//
// Only settled messages are exported: provisional entries of a generation
// still in flight are skipped.
//
// # Supported Formats
//
//   - JSON: machine-readable, the full Record
//   - YAML: the same Record for hand editing
//   - Markdown: human-readable, with a YAML frontmatter block
//
// # Usage
//
//	rec := export.FromConversation(conv, msgs)
//	exp, err := export.New(export.FormatMarkdown, nil)
//	path, err := export.ExportToFile(rec, exp, opts)
package export
