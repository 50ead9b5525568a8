// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"

	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/protocol"
)

// =============================================================================
// STATE
// =============================================================================

// Phase is the stream state of one conversation.
type Phase int

const (
	Idle Phase = iota
	Streaming
)

// String returns the phase name.
func (p Phase) String() string {
	if p == Streaming {
		return "streaming"
	}
	return "idle"
}

// State is a read-only view of one conversation's stream.
type State struct {
	ConversationID string
	Phase          Phase
	IsTyping       bool
	Buffer         string
	Epoch          uint64

	// Awaiting is true between a local send and the first stream event.
	Awaiting bool

	// Stopped is true when the current epoch was stopped locally; its late
	// events are ignored until the next Begin.
	Stopped bool

	// Fenced is true after a Begin that followed a stop, until the new
	// epoch's first event arrives. Chunks and ends seen while fenced belong
	// to the stopped generation.
	Fenced bool
}

// InFlight reports whether a generation is pending or streaming.
func (s State) InFlight() bool {
	return s.Awaiting || s.Phase == Streaming
}

type convState struct {
	phase    Phase
	typing   bool
	buffer   strings.Builder
	epoch    uint64
	awaiting  bool
	stopped   bool
	fenced    bool
	streaming bool
}

func (c *convState) reset() {
	c.phase = Idle
	c.typing = false
	c.awaiting = false
	c.buffer.Reset()
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator folds stream events into conversation threads. Each
// conversation has its own state machine, so events for one never touch
// another.
//
// Accumulator is not safe for concurrent use; the chat session serializes
// access under its own lock.
type Accumulator struct {
	states map[string]*convState
}

// New creates an empty accumulator.
func New() *Accumulator {
	return &Accumulator{states: make(map[string]*convState)}
}

func (a *Accumulator) get(id string) *convState {
	st, ok := a.states[id]
	if !ok {
		st = &convState{}
		a.states[id] = st
	}
	return st
}

// State returns a snapshot of the conversation's stream state.
func (a *Accumulator) State(id string) State {
	st, ok := a.states[id]
	if !ok {
		return State{ConversationID: id}
	}
	return State{
		ConversationID: id,
		Phase:          st.phase,
		IsTyping:       st.typing,
		Buffer:         st.buffer.String(),
		Epoch:          st.epoch,
		Awaiting:       st.awaiting,
		Stopped:        st.stopped,
		Fenced:         st.fenced,
	}
}

// Forget drops all state for a conversation.
func (a *Accumulator) Forget(id string) {
	delete(a.states, id)
}

// Begin opens a new generation epoch for a local send and returns it.
// streaming tells whether the answer will come as stream events or as one
// message_response.
//
// The server still finishes a stopped generation with stream_end, so a
// Begin after a stop raises a fence: stream_chunk and stream_end are
// dropped until this epoch's stream_start (or, for a non-streaming send,
// its message_response) arrives.
func (a *Accumulator) Begin(id string, streaming bool) uint64 {
	st := a.get(id)
	st.epoch++
	st.fenced = st.fenced || st.stopped
	st.stopped = false
	st.awaiting = true
	st.streaming = streaming
	return st.epoch
}

// Start handles stream_start: the buffer is cleared and one provisional
// assistant message is placed at the tail. Returns false when ignored.
func (a *Accumulator) Start(th *model.Thread) bool {
	st := a.get(th.ConversationID)
	if st.stopped {
		return false
	}
	if st.fenced {
		if !st.streaming {
			return false
		}
		st.fenced = false
	}
	a.open(th, st)
	return true
}

func (a *Accumulator) open(th *model.Thread, st *convState) {
	st.buffer.Reset()
	st.phase = Streaming
	st.typing = true
	st.awaiting = false
	th.RemoveProvisional(model.RoleAssistant)
	th.Append(model.NewProvisional(th.ConversationID, model.RoleAssistant, "", st.epoch))
}

// Chunk handles stream_chunk. The tail provisional message always holds the
// whole buffer. A chunk that arrives while idle starts the stream, unless
// the conversation is fenced.
func (a *Accumulator) Chunk(th *model.Thread, c protocol.StreamChunk) bool {
	st := a.get(th.ConversationID)
	if st.stopped || st.fenced {
		return false
	}
	if st.phase == Idle {
		a.open(th, st)
	}
	st.buffer.WriteString(c.Content)
	content := st.buffer.String()

	if tail, ok := th.Last(); ok && tail.Role == model.RoleAssistant && tail.IsProvisional() {
		tail.Content = content
		if len(c.FollowUps) > 0 {
			tail.FollowUps = c.FollowUps
		}
		th.SetLast(tail)
		return true
	}

	// Something landed after the provisional message; move it to the tail.
	th.RemoveProvisional(model.RoleAssistant)
	msg := model.NewProvisional(th.ConversationID, model.RoleAssistant, content, st.epoch)
	msg.FollowUps = c.FollowUps
	th.Append(msg)
	return true
}

// End handles stream_end. The server's record replaces every provisional
// assistant message; without one the provisional message is kept as
// Finalized.
func (a *Accumulator) End(th *model.Thread, e protocol.StreamEnd) bool {
	st := a.get(th.ConversationID)
	if st.stopped || st.fenced {
		return false
	}
	if e.Message != nil {
		a.settle(th, *e.Message)
	} else {
		th.FinalizeProvisional(model.RoleAssistant)
	}
	st.reset()
	return true
}

// Complete handles a non-streaming message_response.
func (a *Accumulator) Complete(th *model.Thread, r protocol.MessageResponse) bool {
	st := a.get(th.ConversationID)
	if st.stopped {
		return false
	}
	if st.fenced {
		if st.streaming {
			return false
		}
		st.fenced = false
	}
	if r.Message != nil {
		a.settle(th, *r.Message)
	}
	st.reset()
	return true
}

func (a *Accumulator) settle(th *model.Thread, msg model.Message) {
	if msg.Role == "" {
		msg.Role = model.RoleAssistant
	}
	if msg.ConversationID == "" {
		msg.ConversationID = th.ConversationID
	}
	if len(msg.FollowUps) == 0 {
		if prov, ok := th.LastOfRole(msg.Role); ok && prov.IsProvisional() {
			msg.FollowUps = prov.FollowUps
		}
	}
	if msg.ID != "" && th.Has(msg.ID) {
		th.RemoveProvisional(msg.Role)
		return
	}
	th.ReplaceProvisional(msg)
}

// Fail handles a server error: buffered content and the provisional
// assistant message are discarded. Returns whether a generation was in
// flight.
func (a *Accumulator) Fail(th *model.Thread) bool {
	st := a.get(th.ConversationID)
	inFlight := st.phase == Streaming || st.awaiting
	th.RemoveProvisional(model.RoleAssistant)
	st.reset()
	return inFlight
}

// Stop ends the current generation locally. Partial content is kept as a
// Finalized message, an empty partial is removed, and the epoch is marked
// stopped so its late events are ignored. Returns false when nothing was in
// flight.
func (a *Accumulator) Stop(th *model.Thread) bool {
	st := a.get(th.ConversationID)
	if st.phase != Streaming && !st.awaiting {
		return false
	}
	th.FinalizeProvisional(model.RoleAssistant)
	st.reset()
	st.stopped = true
	return true
}
