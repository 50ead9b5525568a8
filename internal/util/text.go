// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// Width returns the display width of s in terminal cells. Wide CJK runes
// and emoji count as two cells.
func Width(s string) int {
	return runewidth.StringWidth(s)
}

// Truncate shortens s to at most max display cells, ending in "..." when
// anything was cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= max {
		return s
	}
	if max <= len(ellipsis) {
		return runewidth.Truncate(s, max, "")
	}
	return runewidth.Truncate(s, max, ellipsis)
}

// PadRight fills s with spaces up to width cells. Longer strings are
// truncated.
func PadRight(s string, width int) string {
	s = Truncate(s, width)
	return runewidth.FillRight(s, width)
}

// FirstLine returns the first non-empty line of s, trimmed.
func FirstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
