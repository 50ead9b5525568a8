// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/stream"
	"github.com/jeranaias/mariechat/internal/ui/components"
	"github.com/jeranaias/mariechat/internal/ui/styles"
)

// =============================================================================
// VIEW
// =============================================================================

// Layout: header (1) + viewport + extras + separator and input (2) + status (1).
const (
	headerHeight = 1
	inputHeight  = 2
	statusHeight = 1
)

// View renders the chat view.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	parts := []string{m.header.View(), m.viewport.View()}
	if extras := m.renderExtras(); len(extras) > 0 {
		parts = append(parts, strings.Join(extras, "\n"))
	}
	parts = append(parts, m.renderInput())
	if m.showHelp {
		parts = append(parts, m.help.FullHelpView(m.keyMap.FullHelp()))
	}
	parts = append(parts, m.statusBar.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// layout sizes the viewport to what the chrome leaves over.
func (m *Model) layout() {
	if m.height <= 0 {
		return
	}
	reserved := headerHeight + inputHeight + statusHeight + len(m.renderExtras())
	if m.showHelp {
		reserved += lipgloss.Height(m.help.FullHelpView(m.keyMap.FullHelp()))
	}
	m.viewport.Height = max(m.height-reserved, 1)
}

// renderMessages renders the transcript for the viewport.
func (m *Model) renderMessages() string {
	if len(m.snap.Messages) == 0 {
		hint := "No messages yet. Type to start a conversation, or /list to browse."
		return m.theme.Muted.Render(hint)
	}

	width := max(m.viewport.Width-2, 20)
	body := m.theme.MessageBody.Width(width)

	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderLabel(msg))
		b.WriteString("\n")

		content := msg.Content
		if content == "" && msg.IsProvisional() && msg.Role == model.RoleAssistant {
			b.WriteString(body.Render(m.theme.Pending.Render("thinking...")))
		} else {
			b.WriteString(body.Render(content))
		}

		if _, stopped := msg.Status.(model.Finalized); stopped && msg.Role == model.RoleAssistant {
			b.WriteString("\n")
			b.WriteString(body.Render(m.theme.Stopped.Render("(stopped)")))
		}
		if m.opts.ShowFollowUps && msg.Role == model.RoleAssistant && !msg.IsProvisional() {
			for _, f := range msg.FollowUps {
				b.WriteString("\n")
				b.WriteString(m.theme.FollowUp.Render("> " + f))
			}
		}
	}
	return b.String()
}

func (m *Model) renderLabel(msg model.Message) string {
	var style lipgloss.Style
	switch msg.Role {
	case model.RoleUser:
		style = m.theme.UserLabel
	case model.RoleAssistant:
		style = m.theme.AssistantLabel
	default:
		style = m.theme.SystemLabel
	}
	label := style.Render(msg.Role.DisplayName())
	if m.opts.ShowTimestamps && !msg.CreatedAt.IsZero() {
		label += " " + m.theme.Timestamp.Render(msg.CreatedAt.Local().Format("15:04"))
	}
	if msg.Role == model.RoleUser && msg.IsProvisional() {
		label += " " + m.theme.Pending.Render("(sending)")
	}
	return label
}

// renderExtras returns the lines between the transcript and the input:
// generation activity, typists, image progress, notices and the error.
func (m *Model) renderExtras() []string {
	var lines []string

	if m.inFlight() {
		text := "waiting for Marie..."
		if m.snap.Stream.Phase == stream.Streaming {
			text = "Marie is answering... (Esc to stop)"
		}
		lines = append(lines, m.spinner.View()+" "+m.theme.Muted.Render(text))
	}
	if len(m.snap.Typists) > 0 {
		lines = append(lines, m.theme.Typing.Render(strings.Join(m.snap.Typists, ", ")+" typing..."))
	}
	if m.snap.HasImage {
		lines = append(lines, components.NewImageProgress(m.snap.Image, m.width).Render())
	}
	for _, n := range m.notices {
		lines = append(lines, m.theme.Info.Render(n))
	}
	if m.snap.Error != "" {
		lines = append(lines, styles.RenderError(m.snap.Error))
	}
	return lines
}

func (m Model) renderInput() string {
	sep := lipgloss.NewStyle().Foreground(styles.Overlay).
		Render(strings.Repeat("-", max(m.width, 1)))
	return sep + "\n" + m.input.View()
}
