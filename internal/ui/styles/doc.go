// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the chat view.

All colors are Lip Gloss AdaptiveColor values, so light and dark terminals
are handled without configuration.

# Color System (colors.go)

  - Purple: Marie's messages and the brand accent
  - Cyan: the user's messages and hints
  - Emerald: connected, room ready
  - Amber: connecting, stopped answers
  - Rose: errors and the disconnected state

Every status color is paired with a text indicator ([OK], [X], [!], ...) so
state never depends on color alone.

# Theme (theme.go)

NewTheme detects the terminal's color profile with termenv and builds the
lipgloss styles the chat view renders with:

	theme := styles.NewTheme()
	fmt.Println(theme.UserLabel.Render("You"))
*/
package styles
