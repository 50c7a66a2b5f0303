package store

import (
	"context"
	"time"
)

// CreateMessageParams は CreateMessage の引数。
type CreateMessageParams struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

const createMessage = `
INSERT INTO messages (id, conversation_id, sender_id, content, created_at)
VALUES (?, ?, ?, ?, ?)`

// CreateMessage はメッセージを1件追加する。
func (q *Queries) CreateMessage(ctx context.Context, arg CreateMessageParams) error {
	_, err := q.db.ExecContext(ctx, createMessage,
		arg.ID,
		arg.ConversationID,
		arg.SenderID,
		arg.Content,
		arg.CreatedAt,
	)
	return err
}

const listMessages = `
SELECT id, conversation_id, sender_id, content, created_at, read_at
FROM messages
WHERE conversation_id = ?
ORDER BY created_at, rowid`

// ListMessages は会話のメッセージを古い順にすべて返す。
func (q *Queries) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx, listMessages, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.Content,
			&m.CreatedAt,
			&m.ReadAt,
		); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const countMessages = `SELECT COUNT(*) FROM messages WHERE conversation_id = ?`

// CountMessages は会話のメッセージ件数を返す。
func (q *Queries) CountMessages(ctx context.Context, conversationID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countMessages, conversationID).Scan(&count)
	return count, err
}

const markMessagesRead = `
UPDATE messages SET read_at = ?
WHERE conversation_id = ? AND sender_id <> ? AND read_at IS NULL`

// MarkMessagesRead は読者以外が送信した未読メッセージを既読にし、更新件数を返す。
func (q *Queries) MarkMessagesRead(ctx context.Context, conversationID, readerID string, readAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, markMessagesRead, readAt, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}
