// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/jeranaias/mariechat/internal/sidechannel"
	"github.com/jeranaias/mariechat/internal/transport"
	"github.com/jeranaias/mariechat/internal/ui/styles"
)

// =============================================================================
// ACTIVITY TESTS
// =============================================================================

func TestActivityString(t *testing.T) {
	tests := []struct {
		activity Activity
		want     string
	}{
		{ActivityIdle, "Ready"},
		{ActivityWaiting, "Waiting..."},
		{ActivityStreaming, "Streaming..."},
		{ActivityStopped, "Stopped"},
		{Activity(99), "Unknown"},
	}

	for _, tc := range tests {
		if got := tc.activity.String(); got != tc.want {
			t.Errorf("Activity(%d).String() = %q, want %q", tc.activity, got, tc.want)
		}
	}
}

func TestActivityIconsAreDistinct(t *testing.T) {
	seen := map[string]Activity{}
	for _, a := range []Activity{ActivityIdle, ActivityWaiting, ActivityStreaming, ActivityStopped} {
		icon := a.Icon()
		if prev, ok := seen[icon]; ok {
			t.Errorf("%v and %v share icon %q", prev, a, icon)
		}
		seen[icon] = a
	}
}

// =============================================================================
// STATUS BAR TESTS
// =============================================================================

func TestNewStatusBar(t *testing.T) {
	s := NewStatusBar(styles.NewTheme())
	if s.Connection != transport.StatusDisconnected {
		t.Errorf("Connection = %v, want disconnected", s.Connection)
	}
	if s.Activity != ActivityIdle {
		t.Errorf("Activity = %v, want idle", s.Activity)
	}
}

func TestStatusBarView_Wide(t *testing.T) {
	s := NewStatusBar(styles.NewTheme())
	s.SetWidth(140)
	s.SetConnection(transport.StatusConnected)
	s.SetModel("llama3", "ollama")
	s.SetConversation("Trip planning", true)
	s.SetActivity(ActivityStreaming)

	view := s.View()
	for _, want := range []string{"connected", "ollama/llama3", "Trip planning", "Streaming...", "stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("wide view missing %q:\n%s", want, view)
		}
	}
}

func TestStatusBarView_Medium(t *testing.T) {
	s := NewStatusBar(styles.NewTheme())
	s.SetWidth(80)
	s.SetConnection(transport.StatusConnecting)
	s.SetModel("a-very-long-model-name:latest", "")
	s.SetConversation("Hidden at this width", false)

	view := s.View()
	if !strings.Contains(view, "connecting") {
		t.Errorf("medium view missing connection state:\n%s", view)
	}
	if strings.Contains(view, "Hidden at this width") {
		t.Errorf("medium view should not show the conversation:\n%s", view)
	}
	if !strings.Contains(view, "...") {
		t.Errorf("medium view should truncate the model:\n%s", view)
	}
}

func TestStatusBarView_Narrow(t *testing.T) {
	s := NewStatusBar(styles.NewTheme())
	s.SetWidth(40)
	s.SetConnection(transport.StatusDisconnected)

	view := s.View()
	if !strings.Contains(view, styles.StatusIndicators.Error) {
		t.Errorf("narrow view missing disconnected icon:\n%s", view)
	}
	if got := lipgloss.Width(view); got != 40 {
		t.Errorf("narrow view width = %d, want 40", got)
	}
}

func TestStatusBar_NilThemeDoesNotPanic(t *testing.T) {
	s := NewStatusBar(nil)
	s.SetWidth(120)
	if s.View() == "" {
		t.Error("View() returned empty string")
	}
}

// =============================================================================
// HEADER TESTS
// =============================================================================

func TestHeaderView(t *testing.T) {
	h := NewHeader(styles.NewTheme())
	h.SetWidth(100)
	h.SetConversation("Recipes")
	h.SetModel("llama3")

	view := h.View()
	for _, want := range []string{"Marie Chat", "Recipes", "llama3"} {
		if !strings.Contains(view, want) {
			t.Errorf("header missing %q:\n%s", want, view)
		}
	}
}

func TestHeaderView_NarrowDropsModel(t *testing.T) {
	h := NewHeader(styles.NewTheme())
	h.SetWidth(50)
	h.SetConversation("Recipes")
	h.SetModel("llama3")

	if view := h.View(); strings.Contains(view, "llama3") {
		t.Errorf("narrow header should drop the model:\n%s", view)
	}
}

// =============================================================================
// IMAGE PROGRESS TESTS
// =============================================================================

func TestImageProgress(t *testing.T) {
	tests := []struct {
		name string
		gen  sidechannel.Generation
		want []string
	}{
		{
			name: "running",
			gen:  sidechannel.Generation{Percent: 50, Step: 5, TotalSteps: 10},
			want: []string{"[#####-----]", "50%", "step 5/10"},
		},
		{
			name: "overflow is clamped",
			gen:  sidechannel.Generation{Percent: 140},
			want: []string{"[##########]", "100%"},
		},
		{
			name: "done",
			gen:  sidechannel.Generation{Percent: 100, Done: true, ImageURL: "/images/cat.png"},
			want: []string{"/images/cat.png"},
		},
		{
			name: "failed",
			gen:  sidechannel.Generation{Done: true, Error: "out of memory"},
			want: []string{"out of memory"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NewImageProgress(tc.gen, 80).Render()
			for _, want := range tc.want {
				if !strings.Contains(got, want) {
					t.Errorf("Render() = %q, missing %q", got, want)
				}
			}
		})
	}
}
