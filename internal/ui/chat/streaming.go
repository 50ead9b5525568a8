// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	core "github.com/jeranaias/mariechat/internal/chat"
)

// =============================================================================
// EVENT BUFFER
// =============================================================================

// EventBuffer collects session events between frames. Session observers run
// on the socket's read goroutine; the Bubble Tea loop drains the buffer on
// each tick, so a burst of stream chunks costs one snapshot and one render.
//
// State-change events collapse into a single refresh flag. Events whose
// payload is not kept in the snapshot (transcriptions, speech) are queued
// and delivered once each.
type EventBuffer struct {
	mu        sync.Mutex
	dirty     bool
	oneShots  []core.Event
	count     int
	lastFlush time.Time

	maxFPS     int
	minFlushMs time.Duration
}

// EventBatch is what one flush hands to the view.
type EventBatch struct {
	// Refresh is set when the snapshot must be re-read.
	Refresh bool
	// Events holds transcriptions and speech results in arrival order.
	Events []core.Event
	// Coalesced is how many events the batch stands for.
	Coalesced int
}

// NewEventBuffer creates a buffer flushing at most 30 times a second.
func NewEventBuffer() *EventBuffer {
	return NewEventBufferWithFPS(30)
}

// NewEventBufferWithFPS creates a buffer with a custom frame cap. Values
// outside 1-60 fall back to 30.
func NewEventBufferWithFPS(maxFPS int) *EventBuffer {
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = 30
	}
	return &EventBuffer{
		maxFPS:     maxFPS,
		minFlushMs: time.Second / time.Duration(maxFPS),
		lastFlush:  time.Now(),
	}
}

// Write records an event. Safe to call from any goroutine.
func (b *EventBuffer) Write(ev core.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	switch ev.Kind {
	case core.EventTranscription, core.EventSpeech:
		b.oneShots = append(b.oneShots, ev)
	default:
		b.dirty = true
	}
}

// Flush returns the pending batch once the frame interval has passed.
// One-shot events are never held back.
func (b *EventBuffer) Flush() (EventBatch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return EventBatch{}, false
	}
	if len(b.oneShots) == 0 && time.Since(b.lastFlush) < b.minFlushMs {
		return EventBatch{}, false
	}
	return b.takeLocked(), true
}

// ForceFlush returns whatever is pending regardless of timing.
func (b *EventBuffer) ForceFlush() (EventBatch, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return EventBatch{}, false
	}
	return b.takeLocked(), true
}

func (b *EventBuffer) takeLocked() EventBatch {
	batch := EventBatch{Refresh: b.dirty, Events: b.oneShots, Coalesced: b.count}
	b.dirty = false
	b.oneShots = nil
	b.count = 0
	b.lastFlush = time.Now()
	return batch
}

// Pending returns how many events wait to be flushed.
func (b *EventBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Reset drops everything pending.
func (b *EventBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
	b.oneShots = nil
	b.count = 0
	b.lastFlush = time.Now()
}

// =============================================================================
// TICK COMMAND
// =============================================================================

const frameInterval = 33 * time.Millisecond

// tickCmd schedules the next frame.
func tickCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
