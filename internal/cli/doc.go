// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the mariechat command line.
//
// Commands:
//
//	chat            interactive chat (full-screen or line-oriented)
//	conversations   list, search, rename and delete conversations
//	export          write a transcript as JSON, YAML or Markdown
//	models          list the server's models
//	health          check the server's health endpoints
//	config          show, init, get and set configuration
//	version         print build information
//
// Every command except version loads the configuration first, applies
// MARIE_* environment overrides and the --server and --token flags, and
// configures logging. The session itself lives in internal/chat; this
// package only wires it to the terminal.
package cli
