// Package tag はタグの一覧と検索を提供する。
package tag

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/pagination"
)

// Service はタグの参照処理を実行する。
type Service struct {
	queries *db.Queries
}

// NewService は新しいServiceを生成する。
func NewService(queries *db.Queries) *Service {
	return &Service{queries: queries}
}

// View はタグのJSONレスポンス構造。
type View struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	PostCount int64  `json:"post_count"`
	CreatedAt string `json:"created_at"`
}

func toView(t db.TagWithCount) View {
	return View{ID: t.ID, Name: t.Name, PostCount: t.PostCount, CreatedAt: dto.FormatTime(t.CreatedAt)}
}

func toViews(tags []db.TagWithCount) []View {
	views := make([]View, 0, len(tags))
	for _, t := range tags {
		views = append(views, toView(t))
	}
	return views
}

// List は使用数の多い順にタグを返す。
func (s *Service) List(ctx context.Context, page pagination.Page) (pagination.Result[View], error) {
	tags, err := s.queries.ListTagsWithCount(ctx, page.Limit, page.Skip)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("タグ一覧の取得に失敗しました", err)
	}
	total, err := s.queries.CountTags(ctx)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("タグ一覧の取得に失敗しました", err)
	}
	return pagination.NewResult(page, toViews(tags), total), nil
}

// Search は名前の前方一致でタグを検索する。
func (s *Service) Search(ctx context.Context, prefix string, limit int) ([]View, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return []View{}, nil
	}
	tags, err := s.queries.SearchTags(ctx, db.EscapeLike(prefix), limit)
	if err != nil {
		return nil, apperror.Internal("タグの検索に失敗しました", err)
	}
	return toViews(tags), nil
}

// Get は名前でタグを取得する。
func (s *Service) Get(ctx context.Context, name string) (View, error) {
	t, err := s.queries.GetTagWithCount(ctx, strings.ToLower(name))
	if errors.Is(err, sql.ErrNoRows) {
		return View{}, apperror.NotFound("タグが見つかりません")
	}
	if err != nil {
		return View{}, apperror.Internal("タグの取得に失敗しました", err)
	}
	return toView(t), nil
}
