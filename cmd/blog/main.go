// ブログAPIサービスのエントリポイント。
// 認証、記事、コメント、タグ、画像、通知のAPIを1つのプロセスで提供する。
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nao1215/blog/internal/config"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/server"
	"github.com/nao1215/blog/pkg/logger"
	"github.com/nao1215/blog/pkg/migration"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// shutdownTimeout は停止シグナル受信後に処理中のリクエストを待つ時間。
const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Error("ブログサービスが異常終了", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
}

// dataSourceName はSQLiteファイルの接続文字列を返す。
// テーブル間の参照は外部キー制約を宣言せず、削除時の連鎖はサービスのトランザクションで行う。
func dataSourceName(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func run(cfg *config.Config, zl *zap.Logger) error {
	sqlDB, err := sql.Open("sqlite", dataSourceName(cfg.DatabasePath))
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer func() { _ = sqlDB.Close() }()

	if err := migration.Run(context.Background(), sqlDB, db.Migrations, db.MigrationsDir, zl); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(cfg, sqlDB, zl)
	if err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zl.Info("停止シグナルを受信、サーバーを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
