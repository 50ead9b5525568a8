// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Command mariechat is a terminal client for the Marie chat server.
package main

import "github.com/jeranaias/mariechat/internal/cli"

func main() {
	cli.Execute()
}
