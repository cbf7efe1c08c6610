package db

import (
	"context"
	"database/sql"
	"time"
)

const createPost = `INSERT INTO posts (id, author_id, title, content, cover_image_id, view_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)`

// CreatePostParams はCreatePostの引数。
type CreatePostParams struct {
	ID           string
	AuthorID     string
	Title        string
	Content      string
	CoverImageID sql.NullString
	CreatedAt    time.Time
}

// CreatePost は投稿を作成する。
func (q *Queries) CreatePost(ctx context.Context, arg CreatePostParams) error {
	_, err := q.db.ExecContext(ctx, createPost,
		arg.ID,
		arg.AuthorID,
		arg.Title,
		arg.Content,
		arg.CoverImageID,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const getPost = `SELECT id, author_id, title, content, cover_image_id, view_count, created_at, updated_at
FROM posts WHERE id = ?`

// GetPost はIDで投稿を取得する。
func (q *Queries) GetPost(ctx context.Context, id string) (Post, error) {
	var p Post
	err := q.db.QueryRowContext(ctx, getPost, id).Scan(
		&p.ID,
		&p.AuthorID,
		&p.Title,
		&p.Content,
		&p.CoverImageID,
		&p.ViewCount,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

const updatePost = `UPDATE posts SET title = ?, content = ?, cover_image_id = ?, updated_at = ? WHERE id = ?`

// UpdatePostParams はUpdatePostの引数。
type UpdatePostParams struct {
	ID           string
	Title        string
	Content      string
	CoverImageID sql.NullString
	UpdatedAt    time.Time
}

// UpdatePost は投稿を更新する。
func (q *Queries) UpdatePost(ctx context.Context, arg UpdatePostParams) error {
	_, err := q.db.ExecContext(ctx, updatePost,
		arg.Title,
		arg.Content,
		arg.CoverImageID,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const deletePost = `DELETE FROM posts WHERE id = ?`

// DeletePost は投稿を削除する。関連データの削除は呼び出し側で行う。
func (q *Queries) DeletePost(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deletePost, id)
	return err
}

const incrementPostViewCount = `UPDATE posts SET view_count = view_count + 1 WHERE id = ?`

// IncrementPostViewCount は閲覧数を1増やす。
func (q *Queries) IncrementPostViewCount(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, incrementPostViewCount, id)
	return err
}

const clearPostCover = `UPDATE posts SET cover_image_id = NULL WHERE cover_image_id = ?`

// ClearPostCover は指定画像をカバーに設定している投稿の参照を外す。
func (q *Queries) ClearPostCover(ctx context.Context, imageID string) error {
	_, err := q.db.ExecContext(ctx, clearPostCover, imageID)
	return err
}

// PostRow は投稿者と集計値を含む投稿の行。
type PostRow struct {
	Post
	Author       Author
	LikeCount    int64
	CommentCount int64
	LikedByMe    bool
}

// postRowSelect の先頭のプレースホルダーは閲覧者のユーザーIDを受け取る。
const postRowSelect = `SELECT
  p.id, p.author_id, p.title, p.content, p.cover_image_id, p.view_count, p.created_at, p.updated_at,
  u.id, u.username, u.display_name, u.avatar_image_id,
  (SELECT COUNT(*) FROM post_likes pl WHERE pl.post_id = p.id),
  (SELECT COUNT(*) FROM comments pc WHERE pc.post_id = p.id),
  EXISTS (SELECT 1 FROM post_likes ml WHERE ml.post_id = p.id AND ml.user_id = ?)
FROM posts p
JOIN users u ON u.id = p.author_id`

func scanPostRow(s scanner) (PostRow, error) {
	var r PostRow
	err := s.Scan(
		&r.ID,
		&r.AuthorID,
		&r.Title,
		&r.Content,
		&r.CoverImageID,
		&r.ViewCount,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.Author.ID,
		&r.Author.Username,
		&r.Author.DisplayName,
		&r.Author.AvatarImageID,
		&r.LikeCount,
		&r.CommentCount,
		&r.LikedByMe,
	)
	return r, err
}

func collectPostRows(rows *sql.Rows) ([]PostRow, error) {
	defer func() { _ = rows.Close() }()

	var items []PostRow
	for rows.Next() {
		r, err := scanPostRow(rows)
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

const getPostRow = postRowSelect + ` WHERE p.id = ?`

// GetPostRow は閲覧者から見た投稿の行を取得する。viewerIDが空の場合はliked_by_meが常にfalseになる。
func (q *Queries) GetPostRow(ctx context.Context, id, viewerID string) (PostRow, error) {
	return scanPostRow(q.db.QueryRowContext(ctx, getPostRow, viewerID, id))
}

const postFilter = `
WHERE (? = '' OR p.author_id = ?)
  AND (? = '' OR EXISTS (
    SELECT 1 FROM post_tags pt JOIN tags t ON t.id = pt.tag_id
    WHERE pt.post_id = p.id AND t.name = ?))
  AND (? = '' OR p.title LIKE '%' || ? || '%' ESCAPE '\' OR p.content LIKE '%' || ? || '%' ESCAPE '\')`

// ListPostsParams は投稿一覧の絞り込み条件。空文字列の条件は無視する。
// Queryはエスケープ済みの部分一致文字列。
type ListPostsParams struct {
	ViewerID string
	AuthorID string
	Tag      string
	Query    string
	Limit    int
	Offset   int
}

func (arg ListPostsParams) filterArgs() []any {
	return []any{arg.AuthorID, arg.AuthorID, arg.Tag, arg.Tag, arg.Query, arg.Query, arg.Query}
}

const listPostRows = postRowSelect + postFilter + `
ORDER BY p.created_at DESC, p.id DESC
LIMIT ? OFFSET ?`

// ListPostRows は条件に一致する投稿を新しい順に返す。
func (q *Queries) ListPostRows(ctx context.Context, arg ListPostsParams) ([]PostRow, error) {
	args := append([]any{arg.ViewerID}, arg.filterArgs()...)
	args = append(args, arg.Limit, arg.Offset)
	rows, err := q.db.QueryContext(ctx, listPostRows, args...)
	if err != nil {
		return nil, err
	}
	return collectPostRows(rows)
}

const countPosts = `SELECT COUNT(*) FROM posts p` + postFilter

// CountPosts はListPostRowsの総件数を返す。
func (q *Queries) CountPosts(ctx context.Context, arg ListPostsParams) (int64, error) {
	return q.count(ctx, countPosts, arg.filterArgs()...)
}

const feedFilter = `
WHERE p.author_id = ? OR p.author_id IN (SELECT followee_id FROM follows WHERE follower_id = ?)`

const listFeedPostRows = postRowSelect + feedFilter + `
ORDER BY p.created_at DESC, p.id DESC
LIMIT ? OFFSET ?`

// ListFeedParams はListFeedPostRowsの引数。
type ListFeedParams struct {
	UserID string
	Limit  int
	Offset int
}

// ListFeedPostRows はフォロー中のユーザーと自分の投稿を新しい順に返す。
func (q *Queries) ListFeedPostRows(ctx context.Context, arg ListFeedParams) ([]PostRow, error) {
	rows, err := q.db.QueryContext(ctx, listFeedPostRows, arg.UserID, arg.UserID, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectPostRows(rows)
}

const countFeedPosts = `SELECT COUNT(*) FROM posts p` + feedFilter

// CountFeedPosts はListFeedPostRowsの総件数を返す。
func (q *Queries) CountFeedPosts(ctx context.Context, userID string) (int64, error) {
	return q.count(ctx, countFeedPosts, userID, userID)
}
