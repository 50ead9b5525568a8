// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/mariechat/internal/export"
)

// =============================================================================
// EXPORT HANDLERS
// =============================================================================

// exportConversation writes the visible conversation to disk. Provisional
// messages are left out.
func (m Model) exportConversation(formatName string) (tea.Model, tea.Cmd) {
	if formatName == "" {
		formatName = string(export.FormatMarkdown)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		m.addNotice(err.Error())
		return m, nil
	}
	if m.snap.ConversationID == "" || len(m.snap.Messages) == 0 {
		m.addNotice("nothing to export")
		return m, nil
	}

	m.addNotice("exporting as " + string(format) + "...")
	rec := export.FromConversation(m.snap.Conversation, m.snap.Messages)

	opts := export.DefaultOptions()
	opts.IncludeFollowUps = m.opts.ShowFollowUps
	if m.opts.ExportDir != "" {
		opts.OutputDir = m.opts.ExportDir
	}

	return m, func() tea.Msg {
		exporter, err := export.New(format, opts)
		if err != nil {
			return ExportResultMsg{Err: err}
		}
		path, err := export.ExportToFile(rec, exporter, opts)
		return ExportResultMsg{Path: path, Err: err}
	}
}
