// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package components provides the reusable pieces of the chat view.

Header (header.go) - title bar with the brand, conversation title and model.
StatusBar (statusbar.go) - connection, room and stream activity on one line.
ImageProgress (progress.go) - progress of an image generation.

Components are plain structs rendered with lipgloss. They hold no session
state; the chat model copies what they show from each snapshot:

	bar := components.NewStatusBar(theme)
	bar.SetWidth(120)
	bar.SetConnection(transport.StatusConnected)
	bar.SetActivity(components.ActivityStreaming)
	line := bar.View()
*/
package components
