// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"
)

func TestGetLayoutMode(t *testing.T) {
	tests := []struct {
		width int
		want  LayoutMode
	}{
		{40, LayoutNarrow},
		{59, LayoutNarrow},
		{60, LayoutMedium},
		{99, LayoutMedium},
		{100, LayoutWide},
	}
	theme := NewTheme()
	for _, tt := range tests {
		theme.SetSize(tt.width, 24)
		if got := theme.GetLayoutMode(); got != tt.want {
			t.Errorf("width %d: got %v, want %v", tt.width, got, tt.want)
		}
	}
}

func TestRenderHelpersCarryIndicators(t *testing.T) {
	if got := RenderError("boom"); !strings.Contains(got, "[X] boom") {
		t.Errorf("RenderError = %q", got)
	}
	if got := RenderWarning("careful"); !strings.Contains(got, "[!] careful") {
		t.Errorf("RenderWarning = %q", got)
	}
	if got := RenderInfo("note"); !strings.Contains(got, "[i] note") {
		t.Errorf("RenderInfo = %q", got)
	}
}
