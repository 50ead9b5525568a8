// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for the
// mariechat client.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: main configuration structure
//   - ServerConfig: server origin, bearer token, reconnect policy
//   - ChatConfig: model/provider, join settle delay, typing and voice defaults
//   - LogConfig, ArchiveConfig, UIConfig
//   - Watcher: reloads the file on change (fsnotify)
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (MARIE_*)
//   - ~/.mariechat/config.toml
//   - ~/.mariechat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	settle := cfg.Chat.JoinSettle()
package config
