package store

import (
	"database/sql"
	"time"
)

// Notification は notifications テーブルの1行。
type Notification struct {
	ID            string
	UserID        string
	Kind          string
	Content       string
	ReferenceID   sql.NullString
	ReferenceType sql.NullString
	CreatedAt     time.Time
	ReadAt        sql.NullTime
}

// Conversation は conversations テーブルの1行。
type Conversation struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message は messages テーブルの1行。
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
	ReadAt         sql.NullTime
}
