// Package image は画像のアップロード、配信、削除を提供する。
// 画像の形式はファイルの中身から判定し、申告されたContent-Typeは使わない。
package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// allowedTypes は受け付ける画像形式と保存時の拡張子。
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Service は画像のビジネスロジックを実行する。
type Service struct {
	store    *db.Store
	dir      string
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

// NewService は新しいServiceを生成する。dirは画像ファイルの保存先。
func NewService(store *db.Store, dir string, maxBytes int64, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		dir:      dir,
		maxBytes: maxBytes,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// View は画像のJSONレスポンス構造。
type View struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	CreatedAt   string `json:"created_at"`
}

func toView(img db.Image) View {
	return View{
		ID:          img.ID,
		URL:         dto.ImageURL(db.NullString(img.ID)),
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Size:        img.Size,
		CreatedAt:   dto.FormatTime(img.CreatedAt),
	}
}

// MaxBytes はアップロード可能な最大サイズを返す。
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Upload は画像を保存して登録する。
func (s *Service) Upload(ctx context.Context, ownerID, filename string, r io.Reader) (View, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return View{}, apperror.Validation(fmt.Sprintf("ファイルの読み込みに失敗しました: %v", err))
	}
	if int64(len(data)) > s.maxBytes {
		return View{}, s.tooLarge()
	}
	if len(data) == 0 {
		return View{}, apperror.Validation("ファイルが空です")
	}

	contentType := mimetype.Detect(data).String()
	ext, ok := allowedTypes[contentType]
	if !ok {
		return View{}, apperror.Validation(fmt.Sprintf("対応していない画像形式です: %s", contentType))
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return View{}, apperror.Internal("画像の保存先の作成に失敗しました", err)
	}
	id := uuid.New().String()
	storagePath := filepath.Join(s.dir, id+ext)
	if err := os.WriteFile(storagePath, data, 0o644); err != nil {
		return View{}, apperror.Internal("画像の保存に失敗しました", err)
	}

	img := db.Image{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filepath.Base(filename),
		ContentType: contentType,
		Size:        int64(len(data)),
		StoragePath: storagePath,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateImage(ctx, db.CreateImageParams{
		ID:          img.ID,
		OwnerID:     img.OwnerID,
		Filename:    img.Filename,
		ContentType: img.ContentType,
		Size:        img.Size,
		StoragePath: img.StoragePath,
		CreatedAt:   img.CreatedAt,
	}); err != nil {
		s.removeFile(storagePath)
		return View{}, apperror.Internal("画像の登録に失敗しました", err)
	}
	return toView(img), nil
}

// Get は画像のレコードを取得する。
func (s *Service) Get(ctx context.Context, id string) (db.Image, error) {
	img, err := s.store.GetImage(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Image{}, apperror.NotFound("画像が見つかりません")
	}
	if err != nil {
		return db.Image{}, apperror.Internal("画像の取得に失敗しました", err)
	}
	return img, nil
}

// List はユーザーがアップロードした画像を新しい順に返す。
func (s *Service) List(ctx context.Context, ownerID string, page pagination.Page) (pagination.Result[View], error) {
	images, err := s.store.ListImagesByOwner(ctx, ownerID, page.Limit, page.Skip)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("画像一覧の取得に失敗しました", err)
	}
	total, err := s.store.CountImagesByOwner(ctx, ownerID)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("画像一覧の取得に失敗しました", err)
	}

	views := make([]View, 0, len(images))
	for _, img := range images {
		views = append(views, toView(img))
	}
	return pagination.NewResult(page, views, total), nil
}

// Delete は画像を削除し、アバターとカバー画像としての参照を外す。
// 所有者の確認はImageGuardで済んでいる前提。
func (s *Service) Delete(ctx context.Context, id string) error {
	img, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	now := s.now()
	if err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.ClearAvatarImage(ctx, id, now); err != nil {
			return err
		}
		if err := q.ClearPostCover(ctx, id); err != nil {
			return err
		}
		return q.DeleteImage(ctx, id)
	}); err != nil {
		return apperror.Internal("画像の削除に失敗しました", err)
	}

	s.removeFile(img.StoragePath)
	return nil
}

func (s *Service) tooLarge() error {
	return apperror.Validation(fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています", s.maxBytes))
}

// removeFile は画像ファイルを削除する。失敗はログに記録するだけにする。
func (s *Service) removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("画像ファイルの削除に失敗", zap.String("path", path), zap.Error(err))
	}
}
