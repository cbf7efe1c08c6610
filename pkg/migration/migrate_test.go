package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("DB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_body.up.sql": {Data: []byte("ALTER TABLE notes ADD COLUMN body TEXT NOT NULL DEFAULT '';")},
		"migrations/000001_init.up.sql":     {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY);")},
		"migrations/000001_init.down.sql":   {Data: []byte("DROP TABLE notes;")},
		"migrations/README.md":              {Data: []byte("ignored")},
	}

	t.Run("バージョン順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		if err := Run(context.Background(), db, fsys, "migrations", zap.NewNop()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		if _, err := db.Exec("INSERT INTO notes (id, body) VALUES ('n1', 'hello')"); err != nil {
			t.Errorf("マイグレーション後のINSERTに失敗: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用済み件数 = %d, want 2", count)
		}

		var name string
		if err := db.QueryRow("SELECT name FROM schema_migrations WHERE version = 2").Scan(&name); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if name != "add_body" {
			t.Errorf("name = %q, want %q", name, "add_body")
		}
	})

	t.Run("再実行しても適用済みのものはスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		for i := range 2 {
			if err := Run(context.Background(), db, fsys, "migrations", zap.NewNop()); err != nil {
				t.Fatalf("%d回目のRun() error = %v", i+1, err)
			}
		}
	})

	t.Run("不正なSQLでエラーが返りバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABLE;")},
		}
		if err := Run(context.Background(), db, broken, "m", zap.NewNop()); err == nil {
			t.Fatal("エラーが返されなかった")
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("適用済み件数 = %d, want 0", count)
		}
	})

	t.Run("バージョンが重複している場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		dup := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			"m/000001_b.up.sql": {Data: []byte("CREATE TABLE b (id TEXT);")},
		}
		if err := Run(context.Background(), db, dup, "m", zap.NewNop()); err == nil {
			t.Error("エラーが返されなかった")
		}
	})

	t.Run("追加されたファイルだけが適用されること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		first := fstest.MapFS{
			"m/000001_init.up.sql": {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY);")},
		}
		if err := Run(context.Background(), db, first, "m", zap.NewNop()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		next := fstest.MapFS{
			"m/000001_init.up.sql": first["m/000001_init.up.sql"],
			"m/000002_tags.up.sql": {Data: []byte("CREATE TABLE tags (id TEXT PRIMARY KEY);")},
		}
		if err := Run(context.Background(), db, next, "m", zap.NewNop()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if _, err := db.Exec("INSERT INTO tags (id) VALUES ('t1')"); err != nil {
			t.Errorf("追加のマイグレーションが適用されていない: %v", err)
		}
	})
}
