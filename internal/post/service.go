// Package post は投稿の作成、一覧、更新、削除といいねを提供する。
package post

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/event"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 200
	// maxContentLength は本文の最大文字数。
	maxContentLength = 20000
)

// Service は投稿のビジネスロジックを実行する。
type Service struct {
	store  *db.Store
	events event.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewService は新しいServiceを生成する。
func NewService(store *db.Store, events event.Publisher, logger *zap.Logger) *Service {
	return &Service{
		store:  store,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// View は投稿のJSONレスポンス構造。
type View struct {
	// ID は投稿ID。
	ID string `json:"id"`
	// Title はタイトル。
	Title string `json:"title"`
	// Content は本文。
	Content string `json:"content"`
	// Author は投稿者。
	Author dto.Author `json:"author"`
	// Tags はタグ名の一覧。
	Tags []string `json:"tags"`
	// CoverImageURL はカバー画像のURL。
	CoverImageURL string `json:"cover_image_url"`
	// ViewCount は閲覧数。
	ViewCount int64 `json:"view_count"`
	// LikeCount はいいね数。
	LikeCount int64 `json:"like_count"`
	// CommentCount は返信を含むコメント数。
	CommentCount int64 `json:"comment_count"`
	// LikedByMe は閲覧者がいいねしているかどうか。
	LikedByMe bool `json:"liked_by_me"`
	// CreatedAt は作成日時。
	CreatedAt string `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt string `json:"updated_at"`
}

func toView(r db.PostRow, tags []string) View {
	if tags == nil {
		tags = []string{}
	}
	return View{
		ID:            r.ID,
		Title:         r.Title,
		Content:       r.Content,
		Author:        dto.ToAuthor(r.Author),
		Tags:          tags,
		CoverImageURL: dto.ImageURL(r.CoverImageID),
		ViewCount:     r.ViewCount,
		LikeCount:     r.LikeCount,
		CommentCount:  r.CommentCount,
		LikedByMe:     r.LikedByMe,
		CreatedAt:     dto.FormatTime(r.CreatedAt),
		UpdatedAt:     dto.FormatTime(r.UpdatedAt),
	}
}

// CreateInput は投稿作成の入力。
type CreateInput struct {
	Title        string
	Content      string
	Tags         []string
	CoverImageID string
}

// Create は投稿を作成する。タグは正規化してから登録する。
func (s *Service) Create(ctx context.Context, authorID string, in CreateInput) (View, error) {
	title, content, err := validateText(in.Title, in.Content)
	if err != nil {
		return View{}, err
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return View{}, err
	}
	if in.CoverImageID != "" {
		if err := s.ensureOwnImage(ctx, authorID, in.CoverImageID); err != nil {
			return View{}, err
		}
	}

	now := s.now()
	postID := uuid.New().String()
	if err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.CreatePost(ctx, db.CreatePostParams{
			ID:           postID,
			AuthorID:     authorID,
			Title:        title,
			Content:      content,
			CoverImageID: db.NullString(in.CoverImageID),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return attachTags(ctx, q, postID, tags, now)
	}); err != nil {
		return View{}, apperror.Internal("投稿の作成に失敗しました", err)
	}

	return s.view(ctx, postID, authorID)
}

// Get は投稿を取得し、閲覧数を1増やす。
func (s *Service) Get(ctx context.Context, id, viewerID string) (View, error) {
	if err := s.store.IncrementPostViewCount(ctx, id); err != nil {
		return View{}, apperror.Internal("閲覧数の更新に失敗しました", err)
	}
	return s.view(ctx, id, viewerID)
}

// ListInput は投稿一覧の絞り込み条件。
type ListInput struct {
	ViewerID string
	// Author は投稿者のユーザー名。
	Author string
	Tag    string
	// Query はタイトルと本文の部分一致文字列。
	Query string
}

// List は条件に一致する投稿を新しい順に返す。存在しない投稿者を指定した場合は空の結果を返す。
func (s *Service) List(ctx context.Context, in ListInput, page pagination.Page) (pagination.Result[View], error) {
	arg := db.ListPostsParams{
		ViewerID: in.ViewerID,
		Tag:      strings.ToLower(strings.TrimSpace(in.Tag)),
		Query:    db.EscapeLike(strings.TrimSpace(in.Query)),
		Limit:    page.Limit,
		Offset:   page.Skip,
	}
	if in.Author != "" {
		u, err := s.store.GetUserByUsername(ctx, in.Author)
		if errors.Is(err, sql.ErrNoRows) {
			return pagination.NewResult[View](page, nil, 0), nil
		}
		if err != nil {
			return pagination.Result[View]{}, apperror.Internal("投稿者の取得に失敗しました", err)
		}
		arg.AuthorID = u.ID
	}

	rows, err := s.store.ListPostRows(ctx, arg)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("投稿一覧の取得に失敗しました", err)
	}
	total, err := s.store.CountPosts(ctx, arg)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("投稿一覧の取得に失敗しました", err)
	}
	return s.result(ctx, page, rows, total)
}

// ListByAuthor はユーザーの投稿を新しい順に返す。ユーザーが存在しない場合は404のエラーを返す。
func (s *Service) ListByAuthor(ctx context.Context, username, viewerID string, page pagination.Page) (pagination.Result[View], error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !u.IsActive) {
		return pagination.Result[View]{}, apperror.NotFound("ユーザーが見つかりません")
	}
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	return s.List(ctx, ListInput{ViewerID: viewerID, Author: u.Username}, page)
}

// Feed はフォロー中のユーザーと自分の投稿を新しい順に返す。
func (s *Service) Feed(ctx context.Context, userID string, page pagination.Page) (pagination.Result[View], error) {
	rows, err := s.store.ListFeedPostRows(ctx, db.ListFeedParams{UserID: userID, Limit: page.Limit, Offset: page.Skip})
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("フィードの取得に失敗しました", err)
	}
	total, err := s.store.CountFeedPosts(ctx, userID)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("フィードの取得に失敗しました", err)
	}
	return s.result(ctx, page, rows, total)
}

// UpdateInput は投稿更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title   *string
	Content *string
	Tags    *[]string
	// CoverImageID は空文字列の場合カバー画像を外す。
	CoverImageID *string
}

// Update は投稿を部分更新する。タグを置き換えた場合は使われなくなったタグを削除する。
// 所有者の確認はPostsGuardで済んでいる前提。
func (s *Service) Update(ctx context.Context, id, userID string, in UpdateInput) (View, error) {
	p, err := s.store.GetPost(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return View{}, apperror.NotFound("投稿が見つかりません")
	}
	if err != nil {
		return View{}, apperror.Internal("投稿の取得に失敗しました", err)
	}

	title, content := p.Title, p.Content
	if in.Title != nil {
		title = *in.Title
	}
	if in.Content != nil {
		content = *in.Content
	}
	if title, content, err = validateText(title, content); err != nil {
		return View{}, err
	}

	var tags []string
	if in.Tags != nil {
		if tags, err = NormalizeTags(*in.Tags); err != nil {
			return View{}, err
		}
	}

	cover := p.CoverImageID
	if in.CoverImageID != nil {
		if *in.CoverImageID != "" {
			if err := s.ensureOwnImage(ctx, userID, *in.CoverImageID); err != nil {
				return View{}, err
			}
		}
		cover = db.NullString(*in.CoverImageID)
	}

	now := s.now()
	if err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.UpdatePost(ctx, db.UpdatePostParams{
			ID:           id,
			Title:        title,
			Content:      content,
			CoverImageID: cover,
			UpdatedAt:    now,
		}); err != nil {
			return err
		}
		if in.Tags == nil {
			return nil
		}
		if err := q.DeletePostTagsByPost(ctx, id); err != nil {
			return err
		}
		if err := attachTags(ctx, q, id, tags, now); err != nil {
			return err
		}
		_, err := q.DeleteOrphanTags(ctx)
		return err
	}); err != nil {
		return View{}, apperror.Internal("投稿の更新に失敗しました", err)
	}

	return s.view(ctx, id, userID)
}

// Delete は投稿と、そのコメント、いいね、タグの関連付け、関連する通知を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		steps := []func(context.Context, string) error{
			q.DeleteNotificationsByPost,
			q.DeleteCommentLikesByPost,
			q.DeleteCommentsByPost,
			q.DeletePostLikesByPost,
			q.DeletePostTagsByPost,
			q.DeletePost,
		}
		for _, step := range steps {
			if err := step(ctx, id); err != nil {
				return err
			}
		}
		_, err := q.DeleteOrphanTags(ctx)
		return err
	})
	if err != nil {
		return apperror.Internal("投稿の削除に失敗しました", err)
	}
	return nil
}

// LikeResult はいいね操作後の状態。
type LikeResult struct {
	// Liked は操作後にいいねしているかどうか。
	Liked bool `json:"liked"`
	// LikeCount はいいね数。
	LikeCount int64 `json:"like_count"`
}

// Like は投稿にいいねする。既にいいね済みの場合は何もしない。
func (s *Service) Like(ctx context.Context, id, userID string) (LikeResult, error) {
	p, err := s.post(ctx, id)
	if err != nil {
		return LikeResult{}, err
	}

	created, err := s.store.CreatePostLike(ctx, id, userID, s.now())
	if err != nil {
		return LikeResult{}, apperror.Internal("いいねに失敗しました", err)
	}
	if created > 0 {
		s.publish(ctx, event.New(event.TypePostLiked, userID, p.AuthorID, event.WithPost(id)))
	}
	return s.likeResult(ctx, id, true)
}

// Unlike は投稿のいいねを取り消す。いいねしていない場合は何もしない。
func (s *Service) Unlike(ctx context.Context, id, userID string) (LikeResult, error) {
	p, err := s.post(ctx, id)
	if err != nil {
		return LikeResult{}, err
	}

	deleted, err := s.store.DeletePostLike(ctx, id, userID)
	if err != nil {
		return LikeResult{}, apperror.Internal("いいねの取り消しに失敗しました", err)
	}
	if deleted > 0 {
		s.publish(ctx, event.New(event.TypePostUnliked, userID, p.AuthorID, event.WithPost(id)))
	}
	return s.likeResult(ctx, id, false)
}

// Likers は投稿にいいねしたユーザーを新しい順に返す。
func (s *Service) Likers(ctx context.Context, id string, page pagination.Page) (pagination.Result[dto.User], error) {
	if _, err := s.post(ctx, id); err != nil {
		return pagination.Result[dto.User]{}, err
	}

	users, err := s.store.ListPostLikers(ctx, db.ListPostLikersParams{PostID: id, Limit: page.Limit, Offset: page.Skip})
	if err != nil {
		return pagination.Result[dto.User]{}, apperror.Internal("いいね一覧の取得に失敗しました", err)
	}
	total, err := s.store.CountPostLikes(ctx, id)
	if err != nil {
		return pagination.Result[dto.User]{}, apperror.Internal("いいね一覧の取得に失敗しました", err)
	}
	return pagination.NewResult(page, dto.ToUsers(users), total), nil
}

func (s *Service) likeResult(ctx context.Context, id string, liked bool) (LikeResult, error) {
	count, err := s.store.CountPostLikes(ctx, id)
	if err != nil {
		return LikeResult{}, apperror.Internal("いいね数の取得に失敗しました", err)
	}
	return LikeResult{Liked: liked, LikeCount: count}, nil
}

// post はIDで投稿を取得する。
func (s *Service) post(ctx context.Context, id string) (db.Post, error) {
	p, err := s.store.GetPost(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Post{}, apperror.NotFound("投稿が見つかりません")
	}
	if err != nil {
		return db.Post{}, apperror.Internal("投稿の取得に失敗しました", err)
	}
	return p, nil
}

// view は閲覧者から見た投稿を取得する。
func (s *Service) view(ctx context.Context, id, viewerID string) (View, error) {
	row, err := s.store.GetPostRow(ctx, id, viewerID)
	if errors.Is(err, sql.ErrNoRows) {
		return View{}, apperror.NotFound("投稿が見つかりません")
	}
	if err != nil {
		return View{}, apperror.Internal("投稿の取得に失敗しました", err)
	}
	tags, err := s.store.ListTagNamesByPostIDs(ctx, []string{id})
	if err != nil {
		return View{}, apperror.Internal("タグの取得に失敗しました", err)
	}
	return toView(row, tags[id]), nil
}

// result は投稿の行にタグを付けて一覧レスポンスを組み立てる。
func (s *Service) result(ctx context.Context, page pagination.Page, rows []db.PostRow, total int64) (pagination.Result[View], error) {
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	tags, err := s.store.ListTagNamesByPostIDs(ctx, ids)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("タグの取得に失敗しました", err)
	}

	items := make([]View, 0, len(rows))
	for _, r := range rows {
		items = append(items, toView(r, tags[r.ID]))
	}
	return pagination.NewResult(page, items, total), nil
}

// ensureOwnImage は画像が存在し、userIDがアップロードしたものであることを確認する。
func (s *Service) ensureOwnImage(ctx context.Context, userID, imageID string) error {
	img, err := s.store.GetImage(ctx, imageID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("画像が見つかりません")
	}
	if err != nil {
		return apperror.Internal("画像の取得に失敗しました", err)
	}
	if img.OwnerID != userID {
		return apperror.Forbidden("他のユーザーの画像は使用できません")
	}
	return nil
}

// publish はイベントを発行する。失敗はログに記録して処理を続ける。
func (s *Service) publish(ctx context.Context, e event.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("イベントの配送に失敗", zap.String("event_type", string(e.Type)), zap.Error(err))
	}
}

// attachTags はタグを登録して投稿に関連付ける。
func attachTags(ctx context.Context, q *db.Queries, postID string, tags []string, now time.Time) error {
	for _, name := range tags {
		tagID, err := q.UpsertTag(ctx, uuid.New().String(), name, now)
		if err != nil {
			return err
		}
		if err := q.AddPostTag(ctx, postID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// validateText はタイトルと本文を検証し、前後の空白を除いたタイトルを返す。
func validateText(title, content string) (string, string, error) {
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > maxTitleLength {
		return "", "", apperror.Validation("タイトルは1〜200文字で指定してください")
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(content)); n == 0 || utf8.RuneCountInString(content) > maxContentLength {
		return "", "", apperror.Validation("本文は1〜20000文字で指定してください")
	}
	return title, content, nil
}
