// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the client's leveled, structured logger on
// charmbracelet/log. Setup installs a root logger from configuration; For
// hands out component loggers that carry a "component" key. The terminal
// UI points the log at a file so output never corrupts the screen.
package logging
