// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"":        log.InfoLevel,
		"info":    log.InfoLevel,
		"DEBUG":   log.DebugLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetup_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	_, err := Setup(Options{Level: "warn", Output: &buf})
	require.NoError(t, err)

	l := For("room")
	l.Info("hidden")
	l.Warn("shown", "conversation", "c1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "component=room")
	assert.Contains(t, out, "conversation=c1")
}

func TestSetup_VerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	l, err := Setup(Options{Level: "error", Verbose: true, Output: &buf})
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, l.GetLevel())
}

func TestSetLevel_ReachesComponents(t *testing.T) {
	var buf bytes.Buffer
	_, err := Setup(Options{Level: "info", Output: &buf})
	require.NoError(t, err)

	l := For("transport")
	l.Debug("before")
	require.NoError(t, SetLevel("debug"))
	l.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
	assert.Same(t, l, For("transport"))
}

func TestSetup_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.log")
	_, err := Setup(Options{File: path})
	require.NoError(t, err)
	For("chat").Info("to file", "n", 1)
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "msg=\"to file\""), string(data))

	_, err = Setup(Options{Output: &bytes.Buffer{}})
	require.NoError(t, err)
}
