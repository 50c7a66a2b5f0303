package store

import (
	"context"
	"database/sql"
	"time"
)

const notificationColumns = `id, user_id, kind, content, reference_id, reference_type, created_at, read_at`

func scanNotification(row interface{ Scan(...any) error }) (Notification, error) {
	var n Notification
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Kind,
		&n.Content,
		&n.ReferenceID,
		&n.ReferenceType,
		&n.CreatedAt,
		&n.ReadAt,
	)
	return n, err
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	defer func() { _ = rows.Close() }()
	items := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// CreateNotificationParams は CreateNotification の引数。
type CreateNotificationParams struct {
	ID            string
	UserID        string
	Kind          string
	Content       string
	ReferenceID   string
	ReferenceType string
	CreatedAt     time.Time
}

const createNotification = `
INSERT INTO notifications (id, user_id, kind, content, reference_id, reference_type, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// CreateNotification は未読状態の通知を1件追加する。
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx, createNotification,
		arg.ID,
		arg.UserID,
		arg.Kind,
		arg.Content,
		nullString(arg.ReferenceID),
		nullString(arg.ReferenceType),
		arg.CreatedAt,
	)
	return err
}

const getNotification = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

// GetNotification はIDで通知を取得する。存在しない場合は apperr.ErrNotFound を返す。
func (q *Queries) GetNotification(ctx context.Context, id string) (Notification, error) {
	n, err := scanNotification(q.db.QueryRowContext(ctx, getNotification, id))
	if err != nil {
		return Notification{}, notFound(err, "通知 %s", id)
	}
	return n, nil
}

const listNotifications = `SELECT ` + notificationColumns + `
FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, rowid DESC
LIMIT ?`

// ListNotifications はユーザーの通知を新しい順に最大limit件返す。
func (q *Queries) ListNotifications(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, listNotifications, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

const listUnreadNotifications = `SELECT ` + notificationColumns + `
FROM notifications
WHERE user_id = ? AND read_at IS NULL
ORDER BY created_at DESC, rowid DESC`

// ListUnreadNotifications はユーザーの未読通知を新しい順に返す。
func (q *Queries) ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error) {
	rows, err := q.db.QueryContext(ctx, listUnreadNotifications, userID)
	if err != nil {
		return nil, err
	}
	return scanNotifications(rows)
}

const countUnreadNotifications = `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read_at IS NULL`

// CountUnreadNotifications はユーザーの未読通知数を返す。
func (q *Queries) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countUnreadNotifications, userID).Scan(&count)
	return count, err
}

const markNotificationRead = `UPDATE notifications SET read_at = ? WHERE id = ? AND read_at IS NULL`

// MarkNotificationRead は未読の通知を既読にする。既読済みの場合は0を返し、read_atは変更しない。
func (q *Queries) MarkNotificationRead(ctx context.Context, id string, readAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, markNotificationRead, readAt, id)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

const markAllNotificationsRead = `UPDATE notifications SET read_at = ? WHERE user_id = ? AND read_at IS NULL`

// MarkAllNotificationsRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (q *Queries) MarkAllNotificationsRead(ctx context.Context, userID string, readAt time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllNotificationsRead, readAt, userID)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

const countNotifications = `SELECT COUNT(*) FROM notifications WHERE user_id = ?`

// CountNotifications はユーザーの通知の総数を返す。
func (q *Queries) CountNotifications(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countNotifications, userID).Scan(&count)
	return count, err
}
