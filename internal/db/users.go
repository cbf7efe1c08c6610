package db

import (
	"context"
	"database/sql"
	"time"
)

const userColumns = `id, username, email, password_hash, display_name, bio, avatar_image_id, is_active, created_at, updated_at`

// userColumnsU はusersテーブルを別名uで結合する場合の列リスト。
const userColumnsU = `u.id, u.username, u.email, u.password_hash, u.display_name, u.bio, u.avatar_image_id, u.is_active, u.created_at, u.updated_at`

// scanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (User, error) {
	var u User
	err := s.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Bio,
		&u.AvatarImageID,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	return u, err
}

// collectUsers はrowsをすべて読み取ってUserのスライスを返す。
func collectUsers(rows *sql.Rows) ([]User, error) {
	defer func() { _ = rows.Close() }()

	var items []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createUser = `INSERT INTO users (id, username, email, password_hash, display_name, bio, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, '', 0, ?, ?)`

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	DisplayName  string
	CreatedAt    time.Time
}

// CreateUser は未有効化のユーザーを作成する。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	_, err := q.db.ExecContext(ctx, createUser,
		arg.ID,
		arg.Username,
		arg.Email,
		arg.PasswordHash,
		arg.DisplayName,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return err
}

const getUserByID = `SELECT ` + userColumns + ` FROM users WHERE id = ?`

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByUsername = `SELECT ` + userColumns + ` FROM users WHERE username = ?`

// GetUserByUsername はユーザー名（大文字小文字を区別しない）でユーザーを取得する。
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByUsername, username))
}

const getUserByEmail = `SELECT ` + userColumns + ` FROM users WHERE email = ?`

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByLogin = `SELECT ` + userColumns + ` FROM users WHERE username = ? OR email = lower(?) LIMIT 1`

// GetUserByLogin はユーザー名またはメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByLogin(ctx context.Context, login string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByLogin, login, login))
}

const activateUser = `UPDATE users SET is_active = 1, updated_at = ? WHERE id = ?`

// ActivateUser はユーザーを有効化する。
func (q *Queries) ActivateUser(ctx context.Context, id string, updatedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, activateUser, updatedAt, id)
	return err
}

const updateUserProfile = `UPDATE users SET display_name = ?, bio = ?, avatar_image_id = ?, updated_at = ? WHERE id = ?`

// UpdateUserProfileParams はUpdateUserProfileの引数。
type UpdateUserProfileParams struct {
	ID            string
	DisplayName   string
	Bio           string
	AvatarImageID sql.NullString
	UpdatedAt     time.Time
}

// UpdateUserProfile はプロフィールを更新する。
func (q *Queries) UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) error {
	_, err := q.db.ExecContext(ctx, updateUserProfile,
		arg.DisplayName,
		arg.Bio,
		arg.AvatarImageID,
		arg.UpdatedAt,
		arg.ID,
	)
	return err
}

const updateUserPassword = `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`

// UpdateUserPassword はパスワードハッシュを更新する。
func (q *Queries) UpdateUserPassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, updateUserPassword, passwordHash, updatedAt, id)
	return err
}

const searchUsers = `SELECT ` + userColumns + ` FROM users
WHERE is_active = 1
  AND (username LIKE ? || '%' ESCAPE '\' OR display_name LIKE ? || '%' ESCAPE '\')
ORDER BY username ASC
LIMIT ? OFFSET ?`

// SearchUsersParams はSearchUsersの引数。Queryはエスケープ済みの前方一致文字列。
type SearchUsersParams struct {
	Query  string
	Limit  int
	Offset int
}

// SearchUsers はユーザー名または表示名の前方一致で有効なユーザーを検索する。
func (q *Queries) SearchUsers(ctx context.Context, arg SearchUsersParams) ([]User, error) {
	rows, err := q.db.QueryContext(ctx, searchUsers, arg.Query, arg.Query, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

const countSearchUsers = `SELECT COUNT(*) FROM users
WHERE is_active = 1
  AND (username LIKE ? || '%' ESCAPE '\' OR display_name LIKE ? || '%' ESCAPE '\')`

// CountSearchUsers はSearchUsersの総件数を返す。
func (q *Queries) CountSearchUsers(ctx context.Context, query string) (int64, error) {
	return q.count(ctx, countSearchUsers, query, query)
}

const getUserStats = `SELECT
  (SELECT COUNT(*) FROM follows WHERE followee_id = ?) AS follower_count,
  (SELECT COUNT(*) FROM follows WHERE follower_id = ?) AS following_count,
  (SELECT COUNT(*) FROM posts WHERE author_id = ?) AS post_count`

// UserStats はプロフィールに表示する集計値。
type UserStats struct {
	FollowerCount  int64
	FollowingCount int64
	PostCount      int64
}

// GetUserStats はユーザーのフォロワー数、フォロー数、投稿数を返す。
func (q *Queries) GetUserStats(ctx context.Context, userID string) (UserStats, error) {
	var s UserStats
	err := q.db.QueryRowContext(ctx, getUserStats, userID, userID, userID).Scan(&s.FollowerCount, &s.FollowingCount, &s.PostCount)
	return s, err
}

const clearAvatarImage = `UPDATE users SET avatar_image_id = NULL, updated_at = ? WHERE avatar_image_id = ?`

// ClearAvatarImage は指定画像をアバターに設定しているユーザーの参照を外す。
func (q *Queries) ClearAvatarImage(ctx context.Context, imageID string, updatedAt time.Time) error {
	_, err := q.db.ExecContext(ctx, clearAvatarImage, updatedAt, imageID)
	return err
}

const deleteInactiveUsersBefore = `DELETE FROM users WHERE is_active = 0 AND created_at < ?`

// DeleteInactiveUsersBefore はbeforeより前に作成された未有効化ユーザーを削除し、削除数を返す。
func (q *Queries) DeleteInactiveUsersBefore(ctx context.Context, before time.Time) (int64, error) {
	return q.execCount(ctx, deleteInactiveUsersBefore, before)
}
