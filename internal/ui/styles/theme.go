// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components of the chat view.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderBrand lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	Timestamp      lipgloss.Style
	Pending        lipgloss.Style
	Stopped        lipgloss.Style
	FollowUp       lipgloss.Style

	// ==========================================================================
	// STATUS
	// ==========================================================================

	StatusBar          lipgloss.Style
	StatusConnected    lipgloss.Style
	StatusConnecting   lipgloss.Style
	StatusDisconnected lipgloss.Style
	Typing             lipgloss.Style
	Error              lipgloss.Style
	Info               lipgloss.Style
	Muted              lipgloss.Style

	// ==========================================================================
	// INPUT
	// ==========================================================================

	InputPrompt      lipgloss.Style
	InputPlaceholder lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()
	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(TextPrimary)
	t.HeaderBrand = lipgloss.NewStyle().Bold(true).Foreground(Purple)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.SystemLabel = lipgloss.NewStyle().Bold(true).Foreground(Amber)
	t.MessageBody = lipgloss.NewStyle().Foreground(TextPrimary).PaddingLeft(2)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)
	t.Pending = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.Stopped = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.FollowUp = lipgloss.NewStyle().Foreground(Cyan).PaddingLeft(4)

	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim)
	t.StatusConnected = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusConnecting = lipgloss.NewStyle().Foreground(Amber).Bold(true)
	t.StatusDisconnected = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Typing = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)
	t.Error = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.Info = lipgloss.NewStyle().Foreground(Cyan)
	t.Muted = lipgloss.NewStyle().Foreground(TextMuted)

	t.InputPrompt = lipgloss.NewStyle().Foreground(Purple).Bold(true)
	t.InputPlaceholder = lipgloss.NewStyle().Foreground(TextMuted)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}
