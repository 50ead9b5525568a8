// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/mariechat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned for a conversation the archive has never seen.
var ErrNotFound = errors.New("conversation not archived")

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is a SQLite transcript store. It is safe for concurrent use; the
// pool is limited to one connection because SQLite allows one writer.
type Archive struct {
	db   *sql.DB
	path string
}

// Open opens or creates the archive at path.
func Open(path string) (*Archive, error) {
	if path == "" {
		return nil, errors.New("archive path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	a := &Archive{db: db, path: path}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	// The archive holds private conversations.
	_ = os.Chmod(path, 0o600)
	return a, nil
}

func (a *Archive) initSchema() error {
	if _, err := a.db.Exec(Schema); err != nil {
		return err
	}
	_, err := a.db.Exec(InitMetadata)
	return err
}

// Path returns the database file.
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// =============================================================================
// WRITES
// =============================================================================

// Store records a conversation and settled messages. Provisional messages
// are ignored. Conversation fields left empty keep their archived value.
func (a *Archive) Store(ctx context.Context, conv model.Conversation, msgs ...model.Message) error {
	return a.write(ctx, conv, false, msgs)
}

// Replace records the conversation's full server history. Messages archived
// earlier under local ids (user echoes, stopped answers) are dropped, so a
// reload does not duplicate turns.
func (a *Archive) Replace(ctx context.Context, conv model.Conversation, msgs ...model.Message) error {
	return a.write(ctx, conv, true, msgs)
}

func (a *Archive) write(ctx context.Context, conv model.Conversation, replace bool, msgs []model.Message) error {
	if conv.ID == "" {
		return errors.New("conversation id is empty")
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, provider, created_at, updated_at, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = COALESCE(NULLIF(excluded.title, ''), conversations.title),
			model = COALESCE(NULLIF(excluded.model, ''), conversations.model),
			provider = COALESCE(NULLIF(excluded.provider, ''), conversations.provider),
			created_at = CASE WHEN excluded.created_at > 0 THEN excluded.created_at ELSE conversations.created_at END,
			updated_at = MAX(excluded.updated_at, conversations.updated_at),
			archived_at = excluded.archived_at`,
		conv.ID, conv.Title, conv.Model, conv.Provider,
		unixMilli(conv.CreatedAt.Time), unixMilli(conv.UpdatedAt.Time), now,
	)
	if err != nil {
		return fmt.Errorf("store conversation %s: %w", conv.ID, err)
	}

	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
			return fmt.Errorf("clear messages of %s: %w", conv.ID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at, tokens_used, follow_ups, partial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			tokens_used = COALESCE(excluded.tokens_used, messages.tokens_used),
			follow_ups = excluded.follow_ups,
			partial = excluded.partial`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m.ID == "" || m.IsProvisional() {
			continue
		}
		followUps, err := json.Marshal(nonNil(m.FollowUps))
		if err != nil {
			return fmt.Errorf("encode follow-ups: %w", err)
		}
		var tokens sql.NullInt64
		if m.TokensUsed != nil {
			tokens = sql.NullInt64{Int64: int64(*m.TokensUsed), Valid: true}
		}
		_, partial := m.Status.(model.Finalized)

		if _, err := stmt.ExecContext(ctx,
			m.ID, conv.ID, string(m.Role), m.Content,
			unixMilli(m.CreatedAt.Time), tokens, string(followUps), partial,
		); err != nil {
			return fmt.Errorf("store message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// Delete removes a conversation and its messages.
func (a *Archive) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Summary is one archived conversation with its message count.
type Summary struct {
	Conversation model.Conversation
	Messages     int
	ArchivedAt   time.Time
}

// List returns archived conversations, most recently archived first.
func (a *Archive) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT c.id, c.title, c.model, c.provider, c.created_at, c.updated_at, c.archived_at,
		       (SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		ORDER BY c.archived_at DESC, c.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			s                           Summary
			created, updated, archived int64
		)
		if err := rows.Scan(&s.Conversation.ID, &s.Conversation.Title, &s.Conversation.Model,
			&s.Conversation.Provider, &created, &updated, &archived, &s.Messages); err != nil {
			return nil, err
		}
		s.Conversation.CreatedAt = timestamp(created)
		s.Conversation.UpdatedAt = timestamp(updated)
		s.Conversation.MessageCount = s.Messages
		s.ArchivedAt = time.UnixMilli(archived).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Conversation returns one archived conversation and its messages in
// chronological order.
func (a *Archive) Conversation(ctx context.Context, id string) (model.Conversation, []model.Message, error) {
	var (
		conv             model.Conversation
		created, updated int64
	)
	err := a.db.QueryRowContext(ctx,
		"SELECT id, title, model, provider, created_at, updated_at FROM conversations WHERE id = ?", id,
	).Scan(&conv.ID, &conv.Title, &conv.Model, &conv.Provider, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return conv, nil, ErrNotFound
	}
	if err != nil {
		return conv, nil, fmt.Errorf("load %s: %w", id, err)
	}
	conv.CreatedAt = timestamp(created)
	conv.UpdatedAt = timestamp(updated)

	rows, err := a.db.QueryContext(ctx, `
		SELECT id, role, content, created_at, tokens_used, follow_ups, partial
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at, seq`, id)
	if err != nil {
		return conv, nil, fmt.Errorf("load messages %s: %w", id, err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			m         model.Message
			role      string
			createdAt int64
			tokens    sql.NullInt64
			followUps string
			partial   bool
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &createdAt, &tokens, &followUps, &partial); err != nil {
			return conv, nil, err
		}
		m.ConversationID = id
		m.Role = model.Role(role)
		m.CreatedAt = timestamp(createdAt)
		if tokens.Valid {
			n := int(tokens.Int64)
			m.TokensUsed = &n
		}
		if err := json.Unmarshal([]byte(followUps), &m.FollowUps); err != nil {
			return conv, nil, fmt.Errorf("decode follow-ups of %s: %w", m.ID, err)
		}
		if len(m.FollowUps) == 0 {
			m.FollowUps = nil
		}
		if partial {
			m.Status = model.Finalized{}
		} else {
			m.Status = model.Confirmed{}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return conv, nil, err
	}
	conv.MessageCount = len(msgs)
	return conv, msgs, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func timestamp(ms int64) model.Timestamp {
	if ms == 0 {
		return model.Timestamp{}
	}
	return model.Timestamp{Time: time.UnixMilli(ms).UTC()}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
