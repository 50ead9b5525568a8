// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the Bubble Tea chat view.

The view holds no conversation state of its own. It subscribes to a chat
session, buffers the session's events in an EventBuffer and, on each frame
tick (about 30 per second), re-reads the session snapshot and re-renders.
A token burst during streaming therefore costs one render per frame.

# Input

Enter sends the input line. Lines starting with "/" are slash commands
(see Commands). Esc or Ctrl+C during a generation stops it: a send still
waiting for its room is abandoned and the session stops the stream
locally before stop_generation goes out, so the partial answer is shown as
stopped immediately.

# Usage

	sess := core.New(cfg, core.WithLogger(logger))
	view := chat.New(sess, styles.NewTheme(), chat.Options{Model: cfg.Model})
	defer view.Close()
	_, err := tea.NewProgram(view, tea.WithAltScreen()).Run()
*/
package chat
