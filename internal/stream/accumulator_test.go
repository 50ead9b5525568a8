// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mariechat/internal/model"
	"github.com/jeranaias/mariechat/internal/protocol"
)

func chunk(content string) protocol.StreamChunk {
	return protocol.StreamChunk{ConversationID: "c1", Content: content}
}

func provisionalAssistants(th *model.Thread) int {
	return th.ProvisionalCount(model.RoleAssistant)
}

func TestAccumulator_RoundTrip(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	th.Append(model.Message{ID: "u1", Role: model.RoleUser, Content: "Hi"}.Confirm())

	epoch := acc.Begin("c1", true)
	assert.True(t, acc.State("c1").InFlight())

	require.True(t, acc.Start(th))
	assert.Equal(t, Streaming, acc.State("c1").Phase)
	assert.True(t, acc.State("c1").IsTyping)

	acc.Chunk(th, chunk("Hel"))
	acc.Chunk(th, chunk("lo"))

	tail, _ := th.Last()
	assert.Equal(t, "Hello", tail.Content)
	got, ok := tail.Epoch()
	assert.True(t, ok)
	assert.Equal(t, epoch, got)

	acc.End(th, protocol.StreamEnd{ConversationID: "c1", Message: &model.Message{
		ID: "m1", Role: model.RoleAssistant, Content: "Hello",
	}})

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[1].ID)
	assert.Equal(t, "Hello", msgs[1].Content)
	assert.True(t, msgs[1].IsConfirmed())
	assert.Equal(t, 0, provisionalAssistants(th))

	st := acc.State("c1")
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.IsTyping)
	assert.Empty(t, st.Buffer)
	assert.False(t, st.InFlight())
}

func TestAccumulator_AtMostOneProvisional(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", true)

	acc.Start(th)
	acc.Chunk(th, chunk("a"))
	acc.Start(th) // duplicate start
	acc.Chunk(th, chunk("b"))

	// A confirmed message lands mid-stream.
	th.Append(model.Message{ID: "x", Role: model.RoleSystem, Content: "note"}.Confirm())
	acc.Chunk(th, chunk("c"))

	assert.Equal(t, 1, provisionalAssistants(th))
	tail, _ := th.Last()
	assert.True(t, tail.IsProvisional(), "provisional message must stay at the tail")
	assert.Equal(t, "bc", tail.Content)
}

func TestAccumulator_ChunkWhileIdleStartsStream(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")

	require.True(t, acc.Chunk(th, chunk("Hi")))
	assert.Equal(t, Streaming, acc.State("c1").Phase)

	tail, ok := th.Last()
	require.True(t, ok)
	assert.Equal(t, "Hi", tail.Content)
	assert.True(t, tail.IsProvisional())
}

func TestAccumulator_EndWithoutMessageFinalizes(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", true)
	acc.Start(th)
	acc.Chunk(th, protocol.StreamChunk{ConversationID: "c1", Content: "Partial", FollowUps: []string{"More?"}})

	acc.End(th, protocol.StreamEnd{ConversationID: "c1"})

	tail, _ := th.Last()
	assert.IsType(t, model.Finalized{}, tail.Status)
	assert.Equal(t, "Partial", tail.Content)
	assert.Equal(t, []string{"More?"}, tail.FollowUps)
}

func TestAccumulator_EndCarriesFollowUps(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Start(th)
	acc.Chunk(th, protocol.StreamChunk{ConversationID: "c1", Content: "A", FollowUps: []string{"Why?"}})

	acc.End(th, protocol.StreamEnd{Message: &model.Message{ID: "m1", Content: "A"}})

	tail, _ := th.Last()
	assert.Equal(t, model.RoleAssistant, tail.Role)
	assert.Equal(t, "c1", tail.ConversationID)
	assert.Equal(t, []string{"Why?"}, tail.FollowUps)
}

func TestAccumulator_StopClearsSynchronously(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", true)
	acc.Start(th)
	acc.Chunk(th, chunk("Partial answer"))

	require.True(t, acc.Stop(th))

	st := acc.State("c1")
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.IsTyping)
	assert.Empty(t, st.Buffer)
	assert.True(t, st.Stopped)
	assert.Equal(t, 0, provisionalAssistants(th))

	tail, _ := th.Last()
	assert.IsType(t, model.Finalized{}, tail.Status)
	assert.Equal(t, "Partial answer", tail.Content)

	// Late events of the stopped epoch are dropped.
	assert.False(t, acc.Chunk(th, chunk(" more")))
	assert.False(t, acc.Start(th))
	assert.False(t, acc.End(th, protocol.StreamEnd{Message: &model.Message{ID: "late", Content: "x"}}))
	assert.Equal(t, 1, th.Len())
	tail, _ = th.Last()
	assert.Equal(t, "Partial answer", tail.Content)

	// A new send re-opens the conversation at its own stream_start.
	acc.Begin("c1", true)
	assert.True(t, acc.Start(th))
	assert.True(t, acc.Chunk(th, chunk("Fresh")))
	assert.Equal(t, 1, provisionalAssistants(th))
}

func TestAccumulator_LateEventsAfterStopAndResend(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", true)
	acc.Start(th)
	acc.Chunk(th, chunk("Old"))
	require.True(t, acc.Stop(th))

	epoch := acc.Begin("c1", true)
	require.True(t, acc.State("c1").Fenced)

	// The stopped generation's tail must not leak into the new one.
	assert.False(t, acc.Chunk(th, chunk(" late")))
	assert.False(t, acc.End(th, protocol.StreamEnd{ConversationID: "c1"}))
	assert.True(t, acc.State("c1").InFlight(), "late stream_end must not end the new send")
	assert.Equal(t, 0, provisionalAssistants(th))
	tail, _ := th.Last()
	assert.Equal(t, "Old", tail.Content)

	require.True(t, acc.Start(th))
	st := acc.State("c1")
	assert.False(t, st.Fenced)
	assert.Equal(t, epoch, st.Epoch)
	require.True(t, acc.Chunk(th, chunk("New")))
	tail, _ = th.Last()
	assert.Equal(t, "New", tail.Content)
	assert.True(t, tail.IsProvisional())

	require.True(t, acc.End(th, protocol.StreamEnd{ConversationID: "c1"}))
	assert.False(t, acc.State("c1").InFlight())
	assert.Equal(t, 2, th.Len())
}

func TestAccumulator_FenceLiftsOnNonStreamingResponse(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", true)
	acc.Start(th)
	require.True(t, acc.Stop(th))

	acc.Begin("c1", false)
	assert.False(t, acc.Start(th), "old stream_start arrives late")
	assert.False(t, acc.End(th, protocol.StreamEnd{ConversationID: "c1"}))
	assert.True(t, acc.State("c1").InFlight())

	require.True(t, acc.Complete(th, protocol.MessageResponse{Message: &model.Message{ID: "m2", Content: "Full"}}))
	st := acc.State("c1")
	assert.False(t, st.Fenced)
	assert.False(t, st.InFlight())
	tail, _ := th.Last()
	assert.Equal(t, "m2", tail.ID)
}

func TestAccumulator_StreamingSendIgnoresStaleResponse(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", false)
	require.True(t, acc.Stop(th))

	acc.Begin("c1", true)
	assert.False(t, acc.Complete(th, protocol.MessageResponse{Message: &model.Message{ID: "old", Content: "x"}}))
	assert.True(t, acc.State("c1").InFlight())
	assert.Equal(t, 0, th.Len())
}

func TestAccumulator_StopEmptyPartialRemoved(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	acc.Begin("c1", true)
	acc.Start(th)

	require.True(t, acc.Stop(th))
	assert.Equal(t, 0, th.Len())
}

func TestAccumulator_StopWhileIdle(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	assert.False(t, acc.Stop(th))
	assert.False(t, acc.State("c1").Stopped)
}

func TestAccumulator_ErrorMidStreamDiscards(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	th.Append(model.Message{ID: "u1", Role: model.RoleUser, Content: "Hi"}.Confirm())
	acc.Begin("c1", true)
	acc.Start(th)
	acc.Chunk(th, chunk("Par"))

	require.True(t, acc.Fail(th))

	assert.Equal(t, 1, th.Len())
	assert.Equal(t, 0, provisionalAssistants(th))
	st := acc.State("c1")
	assert.Equal(t, Idle, st.Phase)
	assert.Empty(t, st.Buffer)
	assert.False(t, st.IsTyping)
}

func TestAccumulator_ConversationsAreIndependent(t *testing.T) {
	acc := New()
	a := model.NewThread("a")
	b := model.NewThread("b")

	acc.Begin("a", true)
	acc.Start(a)
	acc.Chunk(a, protocol.StreamChunk{ConversationID: "a", Content: "one"})

	acc.Begin("b", true)
	acc.Start(b)
	acc.Stop(b)

	assert.Equal(t, Streaming, acc.State("a").Phase)
	assert.True(t, acc.Chunk(a, protocol.StreamChunk{ConversationID: "a", Content: " two"}))
	tail, _ := a.Last()
	assert.Equal(t, "one two", tail.Content)

	acc.Forget("a")
	assert.Equal(t, State{ConversationID: "a"}, acc.State("a"))
}

func TestAccumulator_CompleteDeduplicates(t *testing.T) {
	acc := New()
	th := model.NewThread("c1")
	msg := &model.Message{ID: "m1", Role: model.RoleAssistant, Content: "Full"}

	acc.Begin("c1", true)
	acc.Complete(th, protocol.MessageResponse{Message: msg})
	acc.Complete(th, protocol.MessageResponse{Message: msg})

	assert.Equal(t, 1, th.Len())
	assert.False(t, acc.State("c1").InFlight())
}
