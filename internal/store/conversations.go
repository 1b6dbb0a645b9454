package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateConversation inserts a new active conversation with no messages.
func (s *Store) CreateConversation(ctx context.Context, id, model, systemPrompt string) (*Conversation, error) {
	now := nowUTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, model, system_prompt, status, created_at, updated_at)
		VALUES (?, ?, ?, 'active', ?, ?)
	`, id, model, systemPrompt, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}
	return &Conversation{
		ID: id, Model: model, SystemPrompt: systemPrompt, Status: "active",
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetConversation loads a conversation with its messages in ascending
// ordinal order. Returns sql.ErrNoRows if id is unknown.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, model, system_prompt, status, end_reason, created_at, updated_at, ended_at
		FROM conversations WHERE id = ?
	`, id)

	conv, err := scanConversation(row)
	if err != nil {
		return nil, err
	}

	msgs, err := s.listMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var endReason sql.NullString
	var createdAt, updatedAt string
	var endedAt sql.NullString

	err := row.Scan(&c.ID, &c.Model, &c.SystemPrompt, &c.Status, &endReason, &createdAt, &updatedAt, &endedAt)
	if err != nil {
		return nil, err
	}
	c.EndReason = endReason.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	c.EndedAt = scanNullableTime(endedAt)
	return &c, nil
}

func (s *Store) listMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT conversation_id, ordinal, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY ordinal ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ConversationID, &m.Ordinal, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListActive returns active conversations ordered newest-updated first.
func (s *Store) ListActive(ctx context.Context) ([]*Conversation, error) {
	return s.listConversationsByStatus(ctx, "active", "updated_at")
}

// ListArchived returns archived conversations ordered newest-ended first.
func (s *Store) ListArchived(ctx context.Context) ([]*Conversation, error) {
	return s.listConversationsByStatus(ctx, "archived", "ended_at")
}

func (s *Store) listConversationsByStatus(ctx context.Context, status, orderCol string) ([]*Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, model, system_prompt, status, end_reason, created_at, updated_at, ended_at
		FROM conversations WHERE status = ? ORDER BY %s DESC
	`, orderCol)
	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		var c Conversation
		var endReason sql.NullString
		var createdAt, updatedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&c.ID, &c.Model, &c.SystemPrompt, &c.Status, &endReason, &createdAt, &updatedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		c.EndReason = endReason.String
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		c.EndedAt = scanNullableTime(endedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// AddMessage appends a message at the next ordinal and bumps updatedAt.
// Returns the count of persisted messages after the append.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}

	now := nowUTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, ordinal, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, conversationID, count, role, content, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	res, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, formatTime(now), conversationID)
	if err != nil {
		return 0, fmt.Errorf("touching conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, sql.ErrNoRows
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing message append: %w", err)
	}
	return count + 1, nil
}

// MessageCount returns the number of persisted messages for a conversation.
func (s *Store) MessageCount(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID).Scan(&count)
	return count, err
}

// Archive flips a conversation to archived with the given reason.
// Returns false if the conversation was already archived (idempotent,
// no second transition).
func (s *Store) Archive(ctx context.Context, id, reason string) (bool, error) {
	now := nowUTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = 'archived', end_reason = ?, ended_at = ?
		WHERE id = ? AND status = 'active'
	`, reason, formatTime(now), id)
	if err != nil {
		return false, fmt.Errorf("archiving conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ArchiveStaleSince transitions every active conversation whose updated_at
// is older than cutoff to archived/timeout, in one statement, and returns
// the affected ids.
func (s *Store) ArchiveStaleSince(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM conversations WHERE status = 'active' AND updated_at < ?
	`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("finding stale conversations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := formatTime(nowUTC())
	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET status = 'archived', end_reason = 'timeout', ended_at = ?
		WHERE status = 'active' AND updated_at < ?
	`, now, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("archiving stale conversations: %w", err)
	}
	return ids, nil
}

// DeleteConversation hard-deletes a conversation and cascades to its
// messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	return nil
}

// DeleteArchivedConversations hard-deletes every archived conversation and
// returns the count removed.
func (s *Store) DeleteArchivedConversations(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE status = 'archived'`)
	if err != nil {
		return 0, fmt.Errorf("deleting archived conversations: %w", err)
	}
	return res.RowsAffected()
}
