package db

import (
	"context"
	"database/sql"
	"time"
)

const createNotification = `INSERT INTO notifications (id, recipient_id, actor_id, type, post_id, comment_id, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?)`

// CreateNotificationParams はCreateNotificationの引数。
type CreateNotificationParams struct {
	ID          string
	RecipientID string
	ActorID     string
	Type        string
	PostID      sql.NullString
	CommentID   sql.NullString
	CreatedAt   time.Time
}

// CreateNotification は未読の通知を作成する。
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx, createNotification,
		arg.ID,
		arg.RecipientID,
		arg.ActorID,
		arg.Type,
		arg.PostID,
		arg.CommentID,
		arg.CreatedAt,
	)
	return err
}

const getNotification = `SELECT id, recipient_id, actor_id, type, post_id, comment_id, is_read, created_at
FROM notifications WHERE id = ?`

// GetNotification はIDで通知を取得する。
func (q *Queries) GetNotification(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := q.db.QueryRowContext(ctx, getNotification, id).Scan(
		&n.ID,
		&n.RecipientID,
		&n.ActorID,
		&n.Type,
		&n.PostID,
		&n.CommentID,
		&n.IsRead,
		&n.CreatedAt,
	)
	return n, err
}

// NotificationRow は通知とその行為者の概要。
type NotificationRow struct {
	Notification
	Actor Author
}

const notificationRowSelect = `SELECT
  n.id, n.recipient_id, n.actor_id, n.type, n.post_id, n.comment_id, n.is_read, n.created_at,
  u.id, u.username, u.display_name, u.avatar_image_id
FROM notifications n
JOIN users u ON u.id = n.actor_id`

func scanNotificationRow(s scanner) (NotificationRow, error) {
	var r NotificationRow
	err := s.Scan(
		&r.ID,
		&r.RecipientID,
		&r.ActorID,
		&r.Type,
		&r.PostID,
		&r.CommentID,
		&r.IsRead,
		&r.CreatedAt,
		&r.Actor.ID,
		&r.Actor.Username,
		&r.Actor.DisplayName,
		&r.Actor.AvatarImageID,
	)
	return r, err
}

// ListNotificationsParams は通知一覧の引数。
type ListNotificationsParams struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}

const listNotificationRows = notificationRowSelect + `
WHERE n.recipient_id = ? AND (? = 0 OR n.is_read = 0)
ORDER BY n.created_at DESC, n.id DESC
LIMIT ? OFFSET ?`

// ListNotificationRows は受信者の通知を新しい順に返す。
func (q *Queries) ListNotificationRows(ctx context.Context, arg ListNotificationsParams) ([]NotificationRow, error) {
	rows, err := q.db.QueryContext(ctx, listNotificationRows, arg.RecipientID, arg.UnreadOnly, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []NotificationRow
	for rows.Next() {
		r, err := scanNotificationRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getNotificationRow = notificationRowSelect + ` WHERE n.id = ?`

// GetNotificationRow は行為者の概要付きで通知を取得する。
func (q *Queries) GetNotificationRow(ctx context.Context, id string) (NotificationRow, error) {
	return scanNotificationRow(q.db.QueryRowContext(ctx, getNotificationRow, id))
}

const countNotifications = `SELECT COUNT(*) FROM notifications WHERE recipient_id = ? AND (? = 0 OR is_read = 0)`

// CountNotifications は受信者の通知数を返す。unreadOnlyがtrueの場合は未読のみ数える。
func (q *Queries) CountNotifications(ctx context.Context, recipientID string, unreadOnly bool) (int64, error) {
	return q.count(ctx, countNotifications, recipientID, unreadOnly)
}

const markNotificationRead = `UPDATE notifications SET is_read = 1 WHERE id = ?`

// MarkNotificationRead は通知を既読にする。
func (q *Queries) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markNotificationRead, id)
	return err
}

const markAllNotificationsRead = `UPDATE notifications SET is_read = 1 WHERE recipient_id = ? AND is_read = 0`

// MarkAllNotificationsRead は受信者の未読通知をすべて既読にし、更新数を返す。
func (q *Queries) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	return q.execCount(ctx, markAllNotificationsRead, recipientID)
}

const markNotificationsReadByIDs = `UPDATE notifications SET is_read = 1
WHERE recipient_id = ? AND is_read = 0 AND id IN (/*IDS*/)`

// MarkNotificationsReadByIDs は指定IDのうち受信者宛ての未読通知を既読にし、更新数を返す。
func (q *Queries) MarkNotificationsReadByIDs(ctx context.Context, recipientID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	marks, args := placeholders(ids)
	return q.execCount(ctx, expandSlice(markNotificationsReadByIDs, "/*IDS*/", marks), append([]any{recipientID}, args...)...)
}

const deleteNotification = `DELETE FROM notifications WHERE id = ?`

// DeleteNotification は通知を削除する。
func (q *Queries) DeleteNotification(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteNotification, id)
	return err
}

const deleteUnreadNotification = `DELETE FROM notifications
WHERE recipient_id = ? AND actor_id = ? AND type = ?
  AND IFNULL(post_id, '') = ? AND IFNULL(comment_id, '') = ?
  AND is_read = 0`

// DeleteUnreadNotificationParams はDeleteUnreadNotificationの引数。
type DeleteUnreadNotificationParams struct {
	RecipientID string
	ActorID     string
	Type        string
	PostID      string
	CommentID   string
}

// DeleteUnreadNotification は条件に一致する未読通知を削除し、削除数を返す。
func (q *Queries) DeleteUnreadNotification(ctx context.Context, arg DeleteUnreadNotificationParams) (int64, error) {
	return q.execCount(ctx, deleteUnreadNotification,
		arg.RecipientID,
		arg.ActorID,
		arg.Type,
		arg.PostID,
		arg.CommentID,
	)
}

const deleteNotificationsByPost = `DELETE FROM notifications WHERE post_id = ?`

// DeleteNotificationsByPost は投稿に関する通知をすべて削除する。
func (q *Queries) DeleteNotificationsByPost(ctx context.Context, postID string) error {
	_, err := q.db.ExecContext(ctx, deleteNotificationsByPost, postID)
	return err
}

const deleteNotificationsByThread = `DELETE FROM notifications
WHERE comment_id = ? OR comment_id IN (SELECT id FROM comments WHERE parent_id = ?)`

// DeleteNotificationsByThread はコメントとその返信に関する通知を削除する。
// 返信の削除より先に呼び出す必要がある。
func (q *Queries) DeleteNotificationsByThread(ctx context.Context, commentID string) error {
	_, err := q.db.ExecContext(ctx, deleteNotificationsByThread, commentID, commentID)
	return err
}
