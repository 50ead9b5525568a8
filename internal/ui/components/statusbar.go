// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/mariechat/internal/transport"
	"github.com/jeranaias/mariechat/internal/ui/styles"
	"github.com/jeranaias/mariechat/internal/util"
)

// =============================================================================
// ACTIVITY
// =============================================================================

// Activity is what the active conversation is doing right now.
type Activity int

const (
	ActivityIdle Activity = iota
	ActivityWaiting
	ActivityStreaming
	ActivityStopped
)

// String returns the display string for the activity.
func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "Ready"
	case ActivityWaiting:
		return "Waiting..."
	case ActivityStreaming:
		return "Streaming..."
	case ActivityStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Icon returns a shape indicator so state is readable without color.
func (a Activity) Icon() string {
	switch a {
	case ActivityIdle:
		return styles.StatusIndicators.Success
	case ActivityWaiting:
		return styles.StatusIndicators.Pending
	case ActivityStreaming:
		return styles.StatusIndicators.Active
	case ActivityStopped:
		return styles.StatusIndicators.Warning
	default:
		return "?"
	}
}

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// StatusBar is the bottom line of the chat view.
type StatusBar struct {
	Connection    transport.Status
	Model         string
	Provider      string
	Conversation  string
	RoomReady     bool
	Activity      Activity
	Width         int
	ShowShortcuts bool
	theme         *styles.Theme
}

// NewStatusBar creates a status bar in the disconnected state.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{
		Connection:    transport.StatusDisconnected,
		Activity:      ActivityIdle,
		Width:         80,
		ShowShortcuts: true,
		theme:         theme,
	}
}

// SetWidth updates the status bar width.
func (s *StatusBar) SetWidth(width int) {
	s.Width = width
}

// SetConnection updates the connection indicator.
func (s *StatusBar) SetConnection(status transport.Status) {
	s.Connection = status
}

// SetModel updates the model and provider labels.
func (s *StatusBar) SetModel(model, provider string) {
	s.Model = model
	s.Provider = provider
}

// SetConversation updates the conversation label and whether its room is joined.
func (s *StatusBar) SetConversation(title string, roomReady bool) {
	s.Conversation = title
	s.RoomReady = roomReady
}

// SetActivity updates the activity indicator.
func (s *StatusBar) SetActivity(a Activity) {
	s.Activity = a
}

// View renders the status bar.
func (s *StatusBar) View() string {
	if s.Width < 60 {
		return s.viewNarrow()
	}
	if s.Width < 100 {
		return s.viewMedium()
	}
	return s.viewWide()
}

// viewNarrow renders icons only.
// Format: [OK] [*]
func (s *StatusBar) viewNarrow() string {
	conn := s.connectionStyle().Render(s.connectionIcon())
	act := s.activityStyle().Render(s.Activity.Icon())
	return s.frame(conn + " " + act)
}

// viewMedium renders connection | model | activity.
func (s *StatusBar) viewMedium() string {
	parts := []string{
		s.connectionStyle().Render(s.connectionIcon() + " " + s.Connection.String()),
	}
	if s.Model != "" {
		parts = append(parts, s.muted().Render(util.Truncate(s.Model, 15)))
	}
	parts = append(parts, s.activityStyle().Render(s.Activity.String()))
	return s.frame(strings.Join(parts, s.separator()))
}

// viewWide renders connection, model and conversation on the left with
// activity and shortcuts on the right.
func (s *StatusBar) viewWide() string {
	left := []string{
		s.connectionStyle().Render(s.connectionIcon() + " " + s.Connection.String()),
	}
	if s.Model != "" {
		label := s.Model
		if s.Provider != "" {
			label = s.Provider + "/" + s.Model
		}
		left = append(left, s.muted().Render(label))
	}
	if s.Conversation != "" {
		room := styles.StatusIndicators.Pending
		if s.RoomReady {
			room = styles.StatusIndicators.Success
		}
		left = append(left, s.muted().Render(room+" "+util.Truncate(s.Conversation, 32)))
	}
	leftSection := strings.Join(left, s.separator())

	right := []string{s.activityStyle().Render(s.Activity.String())}
	if s.ShowShortcuts {
		right = append(right, s.shortcuts())
	}
	rightSection := strings.Join(right, " ")

	spacing := s.Width - lipgloss.Width(leftSection) - lipgloss.Width(rightSection) - 2
	if spacing < 2 {
		spacing = 2
	}
	return s.frame(leftSection + strings.Repeat(" ", spacing) + rightSection)
}

// ==========================================================================
// HELPERS
// ==========================================================================

func (s *StatusBar) frame(content string) string {
	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		Foreground(styles.TextSecondary).
		Padding(0, 1).
		Width(s.Width).
		Render(content)
}

func (s *StatusBar) separator() string {
	return lipgloss.NewStyle().Foreground(styles.Overlay).Render(" | ")
}

func (s *StatusBar) muted() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(styles.TextSecondary)
}

func (s *StatusBar) connectionIcon() string {
	switch s.Connection {
	case transport.StatusConnected:
		return styles.StatusIndicators.Success
	case transport.StatusConnecting:
		return styles.StatusIndicators.Pending
	default:
		return styles.StatusIndicators.Error
	}
}

func (s *StatusBar) connectionStyle() lipgloss.Style {
	if s.theme != nil {
		switch s.Connection {
		case transport.StatusConnected:
			return s.theme.StatusConnected
		case transport.StatusConnecting:
			return s.theme.StatusConnecting
		default:
			return s.theme.StatusDisconnected
		}
	}
	return lipgloss.NewStyle()
}

func (s *StatusBar) activityStyle() lipgloss.Style {
	switch s.Activity {
	case ActivityStreaming, ActivityWaiting:
		return lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	case ActivityStopped:
		return lipgloss.NewStyle().Foreground(styles.Amber).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(styles.Emerald)
	}
}

func (s *StatusBar) shortcuts() string {
	keyStyle := lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(styles.TextMuted)
	return strings.Join([]string{
		keyStyle.Render("Esc") + descStyle.Render(" stop"),
		keyStyle.Render("F1") + descStyle.Render(" help"),
		keyStyle.Render("^Q") + descStyle.Render(" quit"),
	}, " ")
}
