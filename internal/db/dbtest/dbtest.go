// Package dbtest はテスト用のインメモリSQLiteとデータ投入ヘルパーを提供する。
package dbtest

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/pkg/migration"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Password はCreateUserで作成したユーザーのパスワード。
const Password = "password123"

// New はマイグレーション適用済みのインメモリSQLiteを返す。
func New(t testing.TB) *sql.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("DB接続に失敗: %v", err)
	}
	// インメモリDBは接続ごとに別のDBになるため1接続に制限する
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.Run(context.Background(), sqlDB, db.Migrations, db.MigrationsDir, zap.NewNop()); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	return sqlDB
}

// CreateUser は有効化済みのユーザーを作成する。パスワードはPassword。
func CreateUser(t testing.TB, q *db.Queries, username string) db.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("パスワードハッシュの生成に失敗: %v", err)
	}

	ctx := context.Background()
	id := uuid.New().String()
	if err := q.CreateUser(ctx, db.CreateUserParams{
		ID:           id,
		Username:     username,
		Email:        strings.ToLower(username) + "@example.com",
		PasswordHash: string(hash),
		DisplayName:  "",
		CreatedAt:    time.Now().UTC(),
	}); err != nil {
		t.Fatalf("ユーザー作成に失敗: %v", err)
	}
	if err := q.ActivateUser(ctx, id, time.Now().UTC()); err != nil {
		t.Fatalf("ユーザー有効化に失敗: %v", err)
	}

	user, err := q.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("ユーザー取得に失敗: %v", err)
	}
	return user
}

// CreatePost は投稿を作成してIDを返す。
func CreatePost(t testing.TB, q *db.Queries, authorID, title string, createdAt time.Time) string {
	t.Helper()

	id := uuid.New().String()
	if err := q.CreatePost(context.Background(), db.CreatePostParams{
		ID:        id,
		AuthorID:  authorID,
		Title:     title,
		Content:   title + "の本文",
		CreatedAt: createdAt.UTC(),
	}); err != nil {
		t.Fatalf("投稿作成に失敗: %v", err)
	}
	return id
}
