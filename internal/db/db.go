// Package db はSQLiteへのクエリ実行オブジェクトとスキーマを提供する。
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

// Migrations はスキーママイグレーションのSQLファイル。
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir はMigrations内のディレクトリ名。
const MigrationsDir = "migrations"

// DBTX は*sql.DBと*sql.Txの共通インターフェース。
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries はテーブルごとのクエリを実行する。
type Queries struct {
	db DBTX
}

// New は新しいQueriesを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクションに紐づいたQueriesを返す。
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Store はQueriesとトランザクションの開始を提供する。
type Store struct {
	*Queries
	db *sql.DB
}

// NewStore は新しいStoreを生成する。
func NewStore(sqlDB *sql.DB) *Store {
	return &Store{Queries: New(sqlDB), db: sqlDB}
}

// ExecTx はfnをトランザクション内で実行する。fnがエラーを返した場合はロールバックする。
func (s *Store) ExecTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(s.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}
	return nil
}

// IsUniqueViolation は一意制約違反のエラーかどうかを判定する。
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// execCount はクエリを実行して影響を受けた行数を返す。
func (q *Queries) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// count は単一のCOUNT結果を返すクエリを実行する。
func (q *Queries) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

// placeholders はIN句用のプレースホルダーと引数を生成する。
func placeholders(values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

// expandSlice はクエリ中のマーカーをプレースホルダー列に置き換える。
func expandSlice(query, marker, marks string) string {
	return strings.Replace(query, marker, marks, 1)
}

// NullString は空文字列をNULLとして扱うsql.NullStringを返す。
func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// EscapeLike はLIKE句のワイルドカードをエスケープする。エスケープ文字は '\'。
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
