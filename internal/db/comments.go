package db

import (
	"context"
	"database/sql"
	"time"
)

const createComment = `INSERT INTO comments (id, post_id, author_id, parent_id, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// CreateCommentParams はCreateCommentの引数。
type CreateCommentParams struct {
	ID        string
	PostID    string
	AuthorID  string
	ParentID  sql.NullString
	Content   string
	CreatedAt time.Time
}

// CreateComment はコメントを作成する。
func (q *Queries) CreateComment(ctx context.Context, arg CreateCommentParams) error {
	_, err := q.db.ExecContext(ctx, createComment,
		arg.ID,
		arg.PostID,
		arg.AuthorID,
		arg.ParentID,
		arg.Content,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const getComment = `SELECT id, post_id, author_id, parent_id, content, created_at, updated_at
FROM comments WHERE id = ?`

// GetComment はIDでコメントを取得する。
func (q *Queries) GetComment(ctx context.Context, id string) (Comment, error) {
	var c Comment
	err := q.db.QueryRowContext(ctx, getComment, id).Scan(
		&c.ID,
		&c.PostID,
		&c.AuthorID,
		&c.ParentID,
		&c.Content,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

const updateComment = `UPDATE comments SET content = ?, updated_at = ? WHERE id = ?`

// UpdateComment はコメント本文を更新する。
func (q *Queries) UpdateComment(ctx context.Context, id, content string, updatedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, updateComment, content, updatedAt, id)
	return err
}

const deleteThread = `DELETE FROM comments WHERE id = ? OR parent_id = ?`

// DeleteThread はコメントとその返信を削除する。
func (q *Queries) DeleteThread(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteThread, id, id)
	return err
}

const deleteCommentsByPost = `DELETE FROM comments WHERE post_id = ?`

// DeleteCommentsByPost は投稿のコメントをすべて削除する。
func (q *Queries) DeleteCommentsByPost(ctx context.Context, postID string) error {
	_, err := q.db.ExecContext(ctx, deleteCommentsByPost, postID)
	return err
}

// CommentRow は投稿者と集計値を含むコメントの行。
type CommentRow struct {
	Comment
	Author     Author
	ReplyCount int64
	LikeCount  int64
	LikedByMe  bool
}

// commentRowSelect の先頭のプレースホルダーは閲覧者のユーザーIDを受け取る。
const commentRowSelect = `SELECT
  c.id, c.post_id, c.author_id, c.parent_id, c.content, c.created_at, c.updated_at,
  u.id, u.username, u.display_name, u.avatar_image_id,
  (SELECT COUNT(*) FROM comments r WHERE r.parent_id = c.id),
  (SELECT COUNT(*) FROM comment_likes cl WHERE cl.comment_id = c.id),
  EXISTS (SELECT 1 FROM comment_likes ml WHERE ml.comment_id = c.id AND ml.user_id = ?)
FROM comments c
JOIN users u ON u.id = c.author_id`

func scanCommentRow(s scanner) (CommentRow, error) {
	var r CommentRow
	err := s.Scan(
		&r.ID,
		&r.PostID,
		&r.AuthorID,
		&r.ParentID,
		&r.Content,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.Author.ID,
		&r.Author.Username,
		&r.Author.DisplayName,
		&r.Author.AvatarImageID,
		&r.ReplyCount,
		&r.LikeCount,
		&r.LikedByMe,
	)
	return r, err
}

func (q *Queries) queryCommentRows(ctx context.Context, query string, args ...any) ([]CommentRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []CommentRow
	for rows.Next() {
		r, err := scanCommentRow(rows)
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

const getCommentRow = commentRowSelect + ` WHERE c.id = ?`

// GetCommentRow は閲覧者から見たコメントの行を取得する。
func (q *Queries) GetCommentRow(ctx context.Context, id, viewerID string) (CommentRow, error) {
	return scanCommentRow(q.db.QueryRowContext(ctx, getCommentRow, viewerID, id))
}

// ListCommentsParams はコメント一覧の引数。ParentIDは返信一覧の場合に使用する。
type ListCommentsParams struct {
	PostID   string
	ParentID string
	ViewerID string
	Limit    int
	Offset   int
}

const listTopLevelCommentRows = commentRowSelect + `
WHERE c.post_id = ? AND c.parent_id IS NULL
ORDER BY c.created_at ASC, c.id ASC
LIMIT ? OFFSET ?`

// ListTopLevelCommentRows は投稿のトップレベルコメントを古い順に返す。
func (q *Queries) ListTopLevelCommentRows(ctx context.Context, arg ListCommentsParams) ([]CommentRow, error) {
	return q.queryCommentRows(ctx, listTopLevelCommentRows, arg.ViewerID, arg.PostID, arg.Limit, arg.Offset)
}

const countTopLevelComments = `SELECT COUNT(*) FROM comments WHERE post_id = ? AND parent_id IS NULL`

// CountTopLevelComments は投稿のトップレベルコメント数を返す。
func (q *Queries) CountTopLevelComments(ctx context.Context, postID string) (int64, error) {
	return q.count(ctx, countTopLevelComments, postID)
}

const listReplyRows = commentRowSelect + `
WHERE c.parent_id = ?
ORDER BY c.created_at ASC, c.id ASC
LIMIT ? OFFSET ?`

// ListReplyRows はコメントへの返信を古い順に返す。
func (q *Queries) ListReplyRows(ctx context.Context, arg ListCommentsParams) ([]CommentRow, error) {
	return q.queryCommentRows(ctx, listReplyRows, arg.ViewerID, arg.ParentID, arg.Limit, arg.Offset)
}

const countReplies = `SELECT COUNT(*) FROM comments WHERE parent_id = ?`

// CountReplies はコメントへの返信数を返す。
func (q *Queries) CountReplies(ctx context.Context, parentID string) (int64, error) {
	return q.count(ctx, countReplies, parentID)
}
