package db

import (
	"context"
	"time"
)

const createFollow = `INSERT OR IGNORE INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`

// CreateFollow はフォロー関係を作成する。既に存在する場合は0を返す。
func (q *Queries) CreateFollow(ctx context.Context, followerID, followeeID string, createdAt time.Time) (int64, error) {
	return q.execCount(ctx, createFollow, followerID, followeeID, createdAt)
}

const deleteFollow = `DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`

// DeleteFollow はフォロー関係を削除し、削除数を返す。
func (q *Queries) DeleteFollow(ctx context.Context, followerID, followeeID string) (int64, error) {
	return q.execCount(ctx, deleteFollow, followerID, followeeID)
}

const isFollowing = `SELECT EXISTS (SELECT 1 FROM follows WHERE follower_id = ? AND followee_id = ?)`

// IsFollowing はfollowerIDがfolloweeIDをフォローしているかどうかを返す。
func (q *Queries) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, isFollowing, followerID, followeeID).Scan(&exists)
	return exists, err
}

// ListFollowsParams はフォロワー/フォロー一覧の引数。
type ListFollowsParams struct {
	UserID string
	Limit  int
	Offset int
}

const listFollowers = `SELECT ` + userColumnsU + ` FROM follows f
JOIN users u ON u.id = f.follower_id
WHERE f.followee_id = ?
ORDER BY f.created_at DESC, u.id DESC
LIMIT ? OFFSET ?`

// ListFollowers はユーザーのフォロワーを新しい順に返す。
func (q *Queries) ListFollowers(ctx context.Context, arg ListFollowsParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listFollowers, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

const listFollowing = `SELECT ` + userColumnsU + ` FROM follows f
JOIN users u ON u.id = f.followee_id
WHERE f.follower_id = ?
ORDER BY f.created_at DESC, u.id DESC
LIMIT ? OFFSET ?`

// ListFollowing はユーザーがフォローしているユーザーを新しい順に返す。
func (q *Queries) ListFollowing(ctx context.Context, arg ListFollowsParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, listFollowing, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}
