package db

import (
	"context"
	"time"
)

const upsertActivationCode = `INSERT INTO activation_codes (user_id, code, attempts, expires_at, last_sent_at, created_at)
VALUES (?, ?, 0, ?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  code = excluded.code,
  attempts = 0,
  expires_at = excluded.expires_at,
  last_sent_at = excluded.last_sent_at`

// UpsertActivationCodeParams はUpsertActivationCodeの引数。
type UpsertActivationCodeParams struct {
	UserID    string
	Code      string
	ExpiresAt time.Time
	SentAt    time.Time
}

// UpsertActivationCode はユーザーのアクティベーションコードを作成または再発行する。
// 再発行時は試行回数をリセットする。
func (q *Queries) UpsertActivationCode(ctx context.Context, arg UpsertActivationCodeParams) error {
	_, err := q.db.ExecContext(ctx, upsertActivationCode,
		arg.UserID,
		arg.Code,
		arg.ExpiresAt,
		arg.SentAt,
		arg.SentAt,
	)
	return err
}

const getActivationCode = `SELECT user_id, code, attempts, expires_at, last_sent_at, created_at
FROM activation_codes WHERE user_id = ?`

// GetActivationCode はユーザーのアクティベーションコードを取得する。
func (q *Queries) GetActivationCode(ctx context.Context, userID string) (ActivationCode, error) {
	var a ActivationCode
	err := q.db.QueryRowContext(ctx, getActivationCode, userID).Scan(
		&a.UserID,
		&a.Code,
		&a.Attempts,
		&a.ExpiresAt,
		&a.LastSentAt,
		&a.CreatedAt,
	)
	return a, err
}

const incrementActivationAttempts = `UPDATE activation_codes SET attempts = attempts + 1 WHERE user_id = ? RETURNING attempts`

// IncrementActivationAttempts は誤入力回数を1増やし、更新後の値を返す。
func (q *Queries) IncrementActivationAttempts(ctx context.Context, userID string) (int64, error) {
	var attempts int64
	err := q.db.QueryRowContext(ctx, incrementActivationAttempts, userID).Scan(&attempts)
	return attempts, err
}

const invalidateActivationCode = `UPDATE activation_codes SET code = '', expires_at = ? WHERE user_id = ?`

// InvalidateActivationCode はコードを無効化する。最終送信日時は再送間隔の判定に残す。
func (q *Queries) InvalidateActivationCode(ctx context.Context, userID string, now time.Time) error {
	_, err := q.db.ExecContext(ctx, invalidateActivationCode, now, userID)
	return err
}

const deleteActivationCode = `DELETE FROM activation_codes WHERE user_id = ?`

// DeleteActivationCode はユーザーのアクティベーションコードを削除する。
func (q *Queries) DeleteActivationCode(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, deleteActivationCode, userID)
	return err
}

const deleteExpiredActivationCodes = `DELETE FROM activation_codes WHERE expires_at < ?`

// DeleteExpiredActivationCodes は期限切れのコードを削除し、削除数を返す。
func (q *Queries) DeleteExpiredActivationCodes(ctx context.Context, now time.Time) (int64, error) {
	return q.execCount(ctx, deleteExpiredActivationCodes, now)
}

const deleteActivationCodesOfInactiveUsersBefore = `DELETE FROM activation_codes
WHERE user_id IN (SELECT id FROM users WHERE is_active = 0 AND created_at < ?)`

// DeleteActivationCodesOfInactiveUsersBefore はbeforeより前に作成された未有効化ユーザーのコードを削除する。
func (q *Queries) DeleteActivationCodesOfInactiveUsersBefore(ctx context.Context, before time.Time) (int64, error) {
	return q.execCount(ctx, deleteActivationCodesOfInactiveUsersBefore, before)
}
