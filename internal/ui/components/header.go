// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/mariechat/internal/ui/styles"
	"github.com/jeranaias/mariechat/internal/util"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the single-line title bar above the transcript.
type Header struct {
	Brand        string
	Conversation string
	Model        string
	Width        int
	theme        *styles.Theme
}

// NewHeader creates a header with the default brand.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{
		Brand: "Marie Chat",
		Width: 80,
		theme: theme,
	}
}

// SetWidth updates the header width.
func (h *Header) SetWidth(width int) {
	h.Width = width
}

// SetConversation updates the conversation title.
func (h *Header) SetConversation(title string) {
	h.Conversation = title
}

// SetModel updates the model label.
func (h *Header) SetModel(model string) {
	h.Model = model
}

// View renders the header. The model label is dropped below 60 columns.
func (h *Header) View() string {
	brandStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.Purple)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(styles.TextPrimary)
	if h.theme != nil {
		brandStyle = h.theme.HeaderBrand
		titleStyle = h.theme.HeaderTitle
	}

	parts := []string{brandStyle.Render(h.Brand)}
	if h.Conversation != "" {
		budget := h.Width - util.Width(h.Brand) - 8
		if h.Width >= 60 && h.Model != "" {
			budget -= util.Width(h.Model) + 3
		}
		parts = append(parts, titleStyle.Render(util.Truncate(h.Conversation, max(budget, 8))))
	}
	if h.Width >= 60 && h.Model != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(styles.TextMuted).Render(h.Model))
	}

	sep := lipgloss.NewStyle().Foreground(styles.Overlay).Render(" | ")
	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		Padding(0, 1).
		Width(h.Width).
		Render(strings.Join(parts, sep))
}
