// Package migration はfs.FSに置いたSQLファイルでSQLiteのスキーマを更新する。
// 適用済みのバージョンは schema_migrations テーブルに記録する。
package migration

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// upSuffix は適用対象のファイル名の接尾辞。
const upSuffix = ".up.sql"

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME NOT NULL
)`

// step は1つのマイグレーションファイル。
type step struct {
	version int
	name    string
	file    string
}

// Run はdir配下の 000001_name.up.sql 形式のファイルを、未適用のものだけバージョン順に適用する。
// 1ファイルごとにトランザクションを分け、失敗したファイル以降は適用しない。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	steps, err := collect(fsys, dir)
	if err != nil {
		return fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	current, err := currentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	applied := 0
	for _, s := range steps {
		if s.version <= current {
			continue
		}
		if err := apply(ctx, db, fsys, s); err != nil {
			return fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", s.version, s.name, err)
		}
		applied++
		logger.Info("マイグレーションを適用", zap.Int("version", s.version), zap.String("name", s.name))
	}

	logger.Debug("マイグレーション完了", zap.Int("applied", applied), zap.Int("total", len(steps)))
	return nil
}

// currentVersion は適用済みの最大バージョンを返す。未適用の場合は0。
func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// collect はup.sqlファイルをバージョン順に並べて返す。重複したバージョンはエラーにする。
func collect(fsys fs.FS, dir string) ([]step, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var steps []step
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), upSuffix)
		if e.IsDir() || !ok {
			continue
		}
		rawVersion, name, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(rawVersion)
		if err != nil || version < 1 {
			continue
		}
		steps = append(steps, step{version: version, name: name, file: path.Join(dir, e.Name())})
	}

	slices.SortFunc(steps, func(a, b step) int { return cmp.Compare(a.version, b.version) })
	for i := 1; i < len(steps); i++ {
		if steps[i].version == steps[i-1].version {
			return nil, fmt.Errorf("バージョン %06d が重複しています", steps[i].version)
		}
	}
	return steps, nil
}

func apply(ctx context.Context, db *sql.DB, fsys fs.FS, s step) error {
	content, err := fs.ReadFile(fsys, s.file)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
		s.version, s.name, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
