// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package sidechannel

import (
	"sync"

	"github.com/jeranaias/mariechat/internal/protocol"
)

// Generation is the latest known state of one image generation.
type Generation struct {
	ConversationID string
	Step           int
	TotalSteps     int
	Percent        int
	Preview        string
	ImageURL       string
	Message        string
	Error          string
	Done           bool
}

// Failed reports whether the generation ended with an error.
func (g Generation) Failed() bool {
	return g.Done && g.Error != ""
}

// Images tracks image generation progress per conversation. A generation
// ends with a progress event carrying image_url or with image_error; later
// progress is ignored until Begin.
type Images struct {
	mu   sync.Mutex
	gens map[string]*Generation
}

// NewImages creates an empty tracker.
func NewImages() *Images {
	return &Images{gens: make(map[string]*Generation)}
}

// Begin starts tracking a new generation, replacing any previous one.
func (im *Images) Begin(conversationID string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.gens[conversationID] = &Generation{ConversationID: conversationID}
}

// Progress applies an image_progress event. It returns the updated
// generation, or false when the event was ignored.
func (im *Images) Progress(p protocol.ImageProgress) (Generation, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()

	g := im.gens[p.ConversationID]
	if g == nil {
		// Started elsewhere, for example through the REST endpoint.
		g = &Generation{ConversationID: p.ConversationID}
		im.gens[p.ConversationID] = g
	}
	if g.Done {
		return *g, false
	}

	g.Step = p.Step
	g.TotalSteps = p.TotalSteps
	g.Percent = clampPercent(p.Progress)
	if p.Preview != "" {
		g.Preview = p.Preview
	}
	if p.Message != "" {
		g.Message = p.Message
	}
	if p.Final() {
		g.ImageURL = p.ImageURL
		g.Percent = 100
		g.Done = true
	}
	return *g, true
}

// Fail applies an image_error event.
func (im *Images) Fail(e protocol.ImageError) (Generation, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()

	g := im.gens[e.ConversationID]
	if g == nil {
		g = &Generation{ConversationID: e.ConversationID}
		im.gens[e.ConversationID] = g
	}
	if g.Done {
		return *g, false
	}
	g.Error = e.Error
	if g.Error == "" {
		g.Error = e.Message
	}
	if g.Error == "" {
		g.Error = "image generation failed"
	}
	g.Done = true
	return *g, true
}

// Get returns the tracked generation for a conversation.
func (im *Images) Get(conversationID string) (Generation, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	g, ok := im.gens[conversationID]
	if !ok {
		return Generation{}, false
	}
	return *g, true
}

func clampPercent(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
