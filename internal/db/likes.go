package db

import (
	"context"
	"time"
)

const createPostLike = `INSERT OR IGNORE INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`

// CreatePostLike は投稿へのいいねを作成する。既に存在する場合は0を返す。
func (q *Queries) CreatePostLike(ctx context.Context, postID, userID string, createdAt time.Time) (int64, error) {
	return q.execCount(ctx, createPostLike, postID, userID, createdAt)
}

const deletePostLike = `DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`

// DeletePostLike は投稿へのいいねを削除し、削除数を返す。
func (q *Queries) DeletePostLike(ctx context.Context, postID, userID string) (int64, error) {
	return q.execCount(ctx, deletePostLike, postID, userID)
}

const listPostLikers = `SELECT ` + userColumnsU + ` FROM post_likes l
JOIN users u ON u.id = l.user_id
WHERE l.post_id = ?
ORDER BY l.created_at DESC, u.id DESC
LIMIT ? OFFSET ?`

// ListPostLikersParams はListPostLikersの引数。
type ListPostLikersParams struct {
	PostID string
	Limit  int
	Offset int
}

// ListPostLikers は投稿にいいねしたユーザーを新しい順に返す。
func (q *Queries) ListPostLikers(ctx context.Context, arg ListPostLikersParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listPostLikers, arg.PostID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

const countPostLikes = `SELECT COUNT(*) FROM post_likes WHERE post_id = ?`

// CountPostLikes は投稿のいいね数を返す。
func (q *Queries) CountPostLikes(ctx context.Context, postID string) (int64, error) {
	return q.count(ctx, countPostLikes, postID)
}

const deletePostLikesByPost = `DELETE FROM post_likes WHERE post_id = ?`

// DeletePostLikesByPost は投稿へのいいねをすべて削除する。
func (q *Queries) DeletePostLikesByPost(ctx context.Context, postID string) error {
	_, err := q.db.ExecContext(ctx, deletePostLikesByPost, postID)
	return err
}

const createCommentLike = `INSERT OR IGNORE INTO comment_likes (comment_id, user_id, created_at) VALUES (?, ?, ?)`

// CreateCommentLike はコメントへのいいねを作成する。既に存在する場合は0を返す。
func (q *Queries) CreateCommentLike(ctx context.Context, commentID, userID string, createdAt time.Time) (int64, error) {
	return q.execCount(ctx, createCommentLike, commentID, userID, createdAt)
}

const deleteCommentLike = `DELETE FROM comment_likes WHERE comment_id = ? AND user_id = ?`

// DeleteCommentLike はコメントへのいいねを削除し、削除数を返す。
func (q *Queries) DeleteCommentLike(ctx context.Context, commentID, userID string) (int64, error) {
	return q.execCount(ctx, deleteCommentLike, commentID, userID)
}

const deleteCommentLikesByPost = `DELETE FROM comment_likes
WHERE comment_id IN (SELECT id FROM comments WHERE post_id = ?)`

// DeleteCommentLikesByPost は投稿に属するすべてのコメントへのいいねを削除する。
func (q *Queries) DeleteCommentLikesByPost(ctx context.Context, postID string) error {
	_, err := q.db.ExecContext(ctx, deleteCommentLikesByPost, postID)
	return err
}

const deleteCommentLikesByThread = `DELETE FROM comment_likes
WHERE comment_id = ? OR comment_id IN (SELECT id FROM comments WHERE parent_id = ?)`

// DeleteCommentLikesByThread はコメントとその返信へのいいねを削除する。
func (q *Queries) DeleteCommentLikesByThread(ctx context.Context, commentID string) error {
	_, err := q.db.ExecContext(ctx, deleteCommentLikesByThread, commentID, commentID)
	return err
}
