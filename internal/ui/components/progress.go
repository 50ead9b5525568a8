// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/mariechat/internal/sidechannel"
	"github.com/jeranaias/mariechat/internal/ui/styles"
	"github.com/jeranaias/mariechat/internal/util"
)

// =============================================================================
// IMAGE PROGRESS COMPONENT
// =============================================================================

// ImageProgress renders one image generation as a single line.
type ImageProgress struct {
	Generation sidechannel.Generation
	Width      int
}

// NewImageProgress creates a progress line for a generation.
func NewImageProgress(g sidechannel.Generation, width int) *ImageProgress {
	return &ImageProgress{Generation: g, Width: width}
}

// Render returns the progress line.
// Format: Image [#####-----] 50% step 5/10
func (p *ImageProgress) Render() string {
	g := p.Generation
	label := lipgloss.NewStyle().Foreground(styles.Purple).Bold(true).Render("Image")

	switch {
	case g.Failed():
		return label + " " + styles.RenderError(g.Error)
	case g.Done:
		done := lipgloss.NewStyle().Foreground(styles.Emerald).
			Render(styles.StatusIndicators.Success + " " + util.Truncate(g.ImageURL, max(p.Width-14, 10)))
		return label + " " + done
	}

	barWidth := 10
	if p.Width >= 100 {
		barWidth = 20
	}
	line := label + " " + renderBar(g.Percent, barWidth) + fmt.Sprintf(" %d%%", clampPercent(g.Percent))
	if g.TotalSteps > 0 {
		line += lipgloss.NewStyle().Foreground(styles.TextMuted).
			Render(fmt.Sprintf(" step %d/%d", g.Step, g.TotalSteps))
	}
	if g.Message != "" && p.Width >= 60 {
		line += lipgloss.NewStyle().Foreground(styles.TextMuted).Render(" " + util.FirstLine(g.Message))
	}
	return line
}

// renderBar draws [###---] with width cells.
func renderBar(percent, width int) string {
	filled := clampPercent(percent) * width / 100
	filledStyle := lipgloss.NewStyle().Foreground(styles.Cyan)
	emptyStyle := lipgloss.NewStyle().Foreground(styles.Overlay)
	return "[" + filledStyle.Render(strings.Repeat("#", filled)) +
		emptyStyle.Render(strings.Repeat("-", width-filled)) + "]"
}

func clampPercent(p int) int {
	return min(max(p, 0), 100)
}
