package db

import (
	"context"
	"time"
)

const createImage = `INSERT INTO images (id, owner_id, filename, content_type, size, storage_path, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

// CreateImageParams はCreateImageの引数。
type CreateImageParams struct {
	ID          string
	OwnerID     string
	Filename    string
	ContentType string
	Size        int64
	StoragePath string
	CreatedAt   time.Time
}

// CreateImage は画像のメタデータを保存する。
func (q *Queries) CreateImage(ctx context.Context, arg CreateImageParams) error {
	_, err := q.db.ExecContext(ctx, createImage,
		arg.ID,
		arg.OwnerID,
		arg.Filename,
		arg.ContentType,
		arg.Size,
		arg.StoragePath,
		arg.CreatedAt,
	)
	return err
}

const imageColumns = `id, owner_id, filename, content_type, size, storage_path, created_at`

func scanImage(s scanner) (Image, error) {
	var i Image
	err := s.Scan(
		&i.ID,
		&i.OwnerID,
		&i.Filename,
		&i.ContentType,
		&i.Size,
		&i.StoragePath,
		&i.CreatedAt,
	)
	return i, err
}

const getImage = `SELECT ` + imageColumns + ` FROM images WHERE id = ?`

// GetImage はIDで画像を取得する。
func (q *Queries) GetImage(ctx context.Context, id string) (Image, error) {
	return scanImage(q.db.QueryRowContext(ctx, getImage, id))
}

const listImagesByOwner = `SELECT ` + imageColumns + ` FROM images
WHERE owner_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?`

// ListImagesByOwner はユーザーの画像を新しい順に返す。
func (q *Queries) ListImagesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]Image, error) {
	rows, err := q.db.QueryContext(ctx, listImagesByOwner, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Image
	for rows.Next() {
		i, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countImagesByOwner = `SELECT COUNT(*) FROM images WHERE owner_id = ?`

// CountImagesByOwner はユーザーの画像数を返す。
func (q *Queries) CountImagesByOwner(ctx context.Context, ownerID string) (int64, error) {
	return q.count(ctx, countImagesByOwner, ownerID)
}

const deleteImage = `DELETE FROM images WHERE id = ?`

// DeleteImage は画像のメタデータを削除する。
func (q *Queries) DeleteImage(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, deleteImage, id)
	return err
}
