package store

import (
	"context"
	"time"
)

const createConversation = `INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)`

// CreateConversation は参加者を持たない会話を作成する。参加者は AddParticipant で追加する。
func (q *Queries) CreateConversation(ctx context.Context, id string, createdAt time.Time) error {
	_, err := q.db.ExecContext(ctx, createConversation, id, createdAt, createdAt)
	return err
}

const addParticipant = `
INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
VALUES (?, ?, ?)
ON CONFLICT (conversation_id, user_id) DO NOTHING`

// AddParticipant は会話に参加者を追加する。追加済みの場合は何もしない。
func (q *Queries) AddParticipant(ctx context.Context, conversationID, userID string, joinedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, addParticipant, conversationID, userID, joinedAt)
	return err
}

const getConversation = `SELECT id, created_at, updated_at FROM conversations WHERE id = ?`

// GetConversation はIDで会話を取得する。存在しない場合は apperr.ErrNotFound を返す。
func (q *Queries) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := q.db.QueryRowContext(ctx, getConversation, id).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, notFound(err, "会話 %s", id)
	}
	return c, nil
}

const listParticipants = `
SELECT user_id FROM conversation_participants
WHERE conversation_id = ?
ORDER BY joined_at, user_id`

// ListParticipants は会話の参加者IDを返す。
func (q *Queries) ListParticipants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listParticipants, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const isParticipant = `
SELECT EXISTS (
    SELECT 1 FROM conversation_participants WHERE conversation_id = ? AND user_id = ?
)`

// IsParticipant はユーザーが会話の参加者かどうかを返す。
func (q *Queries) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, isParticipant, conversationID, userID).Scan(&exists)
	return exists, err
}

const listConversationsByUser = `
SELECT c.id, c.created_at, c.updated_at
FROM conversations c
JOIN conversation_participants p ON p.conversation_id = c.id
WHERE p.user_id = ?
ORDER BY c.updated_at DESC, c.id`

// ListConversationsByUser はユーザーが参加する会話を最終更新の新しい順に返す。
func (q *Queries) ListConversationsByUser(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := q.db.QueryContext(ctx, listConversationsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Conversation{}
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const touchConversation = `UPDATE conversations SET updated_at = ? WHERE id = ?`

// TouchConversation は会話の最終更新日時を更新する。
func (q *Queries) TouchConversation(ctx context.Context, id string, updatedAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, touchConversation, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}
