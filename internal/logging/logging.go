// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Options configures the root logger.
type Options struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Verbose forces debug regardless of Level.
	Verbose bool
	// File, when set, receives the log instead of Output.
	File string
	// Output is used when File is empty. Nil means stderr.
	Output io.Writer
}

var (
	mu         sync.Mutex
	root       = log.NewWithOptions(os.Stderr, log.Options{Level: log.InfoLevel})
	closer     io.Closer
	components = map[string]*log.Logger{}
)

// ParseLevel maps a level name to a log.Level. Unknown names are an error.
func ParseLevel(name string) (log.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return log.InfoLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "error":
		return log.ErrorLevel, nil
	default:
		return log.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// Setup replaces the root logger. A previously opened log file is closed.
func Setup(opts Options) (*log.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = log.DebugLevel
	}

	out := opts.Output
	var file *os.File
	if opts.File != "" {
		file, err = os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
	}
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Prefix:          "mariechat",
	})
	if file != nil {
		// No color codes in files.
		l.SetFormatter(log.LogfmtFormatter)
	}

	mu.Lock()
	if closer != nil {
		closer.Close()
		closer = nil
	}
	if file != nil {
		closer = file
	}
	root = l
	components = map[string]*log.Logger{}
	mu.Unlock()
	return l, nil
}

// Root returns the current root logger.
func Root() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	return root
}

// For returns a child of the root logger tagged with a component name.
// Repeated calls return the same logger until the next Setup.
func For(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := components[component]; ok {
		return l
	}
	l := root.With("component", component)
	components[component] = l
	return l
}

// SetLevel changes the level of the root and every component logger, e.g.
// after a config reload.
func SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	root.SetLevel(level)
	for _, l := range components {
		l.SetLevel(level)
	}
	return nil
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Close releases a log file opened by Setup.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}
