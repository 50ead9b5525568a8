// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/mariechat/internal/chat"
	"github.com/jeranaias/mariechat/internal/model"
)

// The session only depends on the interface.
var _ chat.Archiver = (*Archive)(nil)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func ts(sec int) model.Timestamp {
	return model.Timestamp{Time: time.Date(2025, 5, 1, 12, 0, sec, 0, time.UTC)}
}

func TestOpen_CreatesPrivateFile(t *testing.T) {
	a := openTemp(t)

	info, err := os.Stat(a.Path())
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	_, err = Open("")
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	tokens := 12

	conv := model.Conversation{ID: "c1", Title: "Subjuntivo", Model: "llama3", Provider: "ollama", CreatedAt: ts(0)}
	require.NoError(t, a.Store(ctx, conv,
		model.Message{ID: "u1", Role: model.RoleUser, Content: "Ejemplo", CreatedAt: ts(1)},
		model.Message{ID: "a1", Role: model.RoleAssistant, Content: "Espero que vengas", CreatedAt: ts(2),
			TokensUsed: &tokens, FollowUps: []string{"¿Otro?"}},
		model.NewProvisional("c1", model.RoleAssistant, "todavía no", 1),
	))

	got, msgs, err := a.Conversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Subjuntivo", got.Title)
	assert.Equal(t, "ollama", got.Provider)
	assert.True(t, got.CreatedAt.Equal(ts(0).Time))
	assert.Equal(t, 2, got.MessageCount)

	require.Len(t, msgs, 2, "provisional messages are not archived")
	assert.Equal(t, "u1", msgs[0].ID)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "c1", msgs[0].ConversationID)
	assert.Nil(t, msgs[0].TokensUsed)
	assert.Nil(t, msgs[0].FollowUps)

	assert.Equal(t, "Espero que vengas", msgs[1].Content)
	require.NotNil(t, msgs[1].TokensUsed)
	assert.Equal(t, 12, *msgs[1].TokensUsed)
	assert.Equal(t, []string{"¿Otro?"}, msgs[1].FollowUps)
	assert.True(t, msgs[1].IsConfirmed())
}

func TestStore_UpsertsByID(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	require.NoError(t, a.Store(ctx, model.Conversation{ID: "c1", Title: "Primero"},
		model.Message{ID: "a1", Role: model.RoleAssistant, Content: "parcial", Status: model.Finalized{}, CreatedAt: ts(1)}))

	// A later store without a title keeps the archived one.
	require.NoError(t, a.Store(ctx, model.Conversation{ID: "c1"},
		model.Message{ID: "a1", Role: model.RoleAssistant, Content: "completo", CreatedAt: ts(1)},
		model.Message{ID: "a1", Role: model.RoleAssistant, Content: "completo", CreatedAt: ts(1)}))

	conv, msgs, err := a.Conversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Primero", conv.Title)
	require.Len(t, msgs, 1)
	assert.Equal(t, "completo", msgs[0].Content)
	assert.True(t, msgs[0].IsConfirmed())
}

func TestStore_KeepsPartialAnswers(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	require.NoError(t, a.Store(ctx, model.Conversation{ID: "c1"},
		model.Message{ID: "a1", Role: model.RoleAssistant, Content: "cortado", Status: model.Finalized{}}))

	_, msgs, err := a.Conversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	_, partial := msgs[0].Status.(model.Finalized)
	assert.True(t, partial)
}

func TestStore_OrdersByTimeThenArrival(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	conv := model.Conversation{ID: "c1"}

	require.NoError(t, a.Store(ctx, conv, model.Message{ID: "late", Role: model.RoleUser, Content: "3", CreatedAt: ts(9)}))
	require.NoError(t, a.Store(ctx, conv, model.Message{ID: "first", Role: model.RoleUser, Content: "1", CreatedAt: ts(1)}))
	require.NoError(t, a.Store(ctx, conv, model.Message{ID: "second", Role: model.RoleUser, Content: "2", CreatedAt: ts(1)}))

	_, msgs, err := a.Conversation(ctx, "c1")
	require.NoError(t, err)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"first", "second", "late"}, ids)
}

func TestReplace_DropsLocalCopies(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()
	conv := model.Conversation{ID: "c1"}

	// Live session: the echo and a stopped answer carry local ids.
	require.NoError(t, a.Store(ctx, conv,
		model.Message{ID: "local-u1", Role: model.RoleUser, Content: "hola", CreatedAt: ts(1)},
		model.Message{ID: "local-a1", Role: model.RoleAssistant, Content: "Ho", CreatedAt: ts(2), Status: model.Finalized{}}))
	require.NoError(t, a.Store(ctx, model.Conversation{ID: "c2"},
		model.Message{ID: "other", Role: model.RoleUser, Content: "aparte"}))

	// Reload: the server returns the same turns under its own ids.
	require.NoError(t, a.Replace(ctx, conv,
		model.Message{ID: "srv-u1", Role: model.RoleUser, Content: "hola", CreatedAt: ts(1)},
		model.Message{ID: "srv-a1", Role: model.RoleAssistant, Content: "Ho", CreatedAt: ts(2)}))

	_, msgs, err := a.Conversation(ctx, "c1")
	require.NoError(t, err)
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"srv-u1", "srv-a1"}, ids)

	_, others, err := a.Conversation(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, others, 1, "other conversations are untouched")
}

func TestListAndDelete(t *testing.T) {
	a := openTemp(t)
	ctx := context.Background()

	require.NoError(t, a.Store(ctx, model.Conversation{ID: "c1", Title: "Uno"},
		model.Message{ID: "m1", Role: model.RoleUser, Content: "a"},
		model.Message{ID: "m2", Role: model.RoleAssistant, Content: "b"}))
	require.NoError(t, a.Store(ctx, model.Conversation{ID: "c2", Title: "Dos"}))

	list, err := a.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	counts := map[string]int{}
	for _, s := range list {
		counts[s.Conversation.ID] = s.Messages
		assert.False(t, s.ArchivedAt.IsZero())
	}
	assert.Equal(t, map[string]int{"c1": 2, "c2": 0}, counts)

	limited, err := a.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, a.Delete(ctx, "c1"))
	_, _, err = a.Conversation(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, a.Delete(ctx, "c1"), ErrNotFound)

	// Messages went with the conversation.
	var n int
	require.NoError(t, a.db.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n))
	assert.Zero(t, n)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, a.Store(context.Background(), model.Conversation{ID: "c1", Title: "Persistente"}))
	require.NoError(t, a.Close())

	b, err := Open(path)
	require.NoError(t, err)
	defer b.Close()
	conv, _, err := b.Conversation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Persistente", conv.Title)
}
