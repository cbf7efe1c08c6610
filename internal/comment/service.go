// Package comment は投稿へのコメントと返信、コメントへのいいねを提供する。
// 返信は1階層までで、返信への返信はスレッドの先頭コメントにぶら下げる。
package comment

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

// maxContentLength はコメント本文の最大文字数。
const maxContentLength = 2000

// Service はコメントのビジネスロジックを実行する。
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

// View はコメントのJSONレスポンス構造。
type View struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
	// ParentID はスレッドの先頭コメントID。トップレベルの場合はnull。
	ParentID   *string    `json:"parent_id"`
	Author     dto.Author `json:"author"`
	Content    string     `json:"content"`
	ReplyCount int64      `json:"reply_count"`
	LikeCount  int64      `json:"like_count"`
	LikedByMe  bool       `json:"liked_by_me"`
	CreatedAt  string     `json:"created_at"`
	UpdatedAt  string     `json:"updated_at"`
}

func toView(r db.CommentRow) View {
	v := View{
		ID:         r.ID,
		PostID:     r.PostID,
		Author:     dto.ToAuthor(r.Author),
		Content:    r.Content,
		ReplyCount: r.ReplyCount,
		LikeCount:  r.LikeCount,
		LikedByMe:  r.LikedByMe,
		CreatedAt:  dto.FormatTime(r.CreatedAt),
		UpdatedAt:  dto.FormatTime(r.UpdatedAt),
	}
	if r.ParentID.Valid {
		v.ParentID = &r.ParentID.String
	}
	return v
}

func toViews(rows []db.CommentRow) []View {
	views := make([]View, 0, len(rows))
	for _, r := range rows {
		views = append(views, toView(r))
	}
	return views
}

// List は投稿のトップレベルコメントを古い順に返す。
func (s *Service) List(ctx context.Context, postID, viewerID string, page pagination.Page) (pagination.Result[View], error) {
	if _, err := s.post(ctx, postID); err != nil {
		return pagination.Result[View]{}, err
	}

	rows, err := s.store.ListTopLevelCommentRows(ctx, db.ListCommentsParams{
		PostID:   postID,
		ViewerID: viewerID,
		Limit:    page.Limit,
		Offset:   page.Skip,
	})
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("コメント一覧の取得に失敗しました", err)
	}
	total, err := s.store.CountTopLevelComments(ctx, postID)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("コメント一覧の取得に失敗しました", err)
	}
	return pagination.NewResult(page, toViews(rows), total), nil
}

// Replies はコメントへの返信を古い順に返す。
func (s *Service) Replies(ctx context.Context, commentID, viewerID string, page pagination.Page) (pagination.Result[View], error) {
	if _, err := s.comment(ctx, commentID); err != nil {
		return pagination.Result[View]{}, err
	}

	rows, err := s.store.ListReplyRows(ctx, db.ListCommentsParams{
		ParentID: commentID,
		ViewerID: viewerID,
		Limit:    page.Limit,
		Offset:   page.Skip,
	})
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("返信一覧の取得に失敗しました", err)
	}
	total, err := s.store.CountReplies(ctx, commentID)
	if err != nil {
		return pagination.Result[View]{}, apperror.Internal("返信一覧の取得に失敗しました", err)
	}
	return pagination.NewResult(page, toViews(rows), total), nil
}

// CreateInput はコメント作成の入力。
type CreateInput struct {
	Content string
	// ParentID は返信先のコメントID。空の場合はトップレベルのコメントになる。
	ParentID string
}

// Create はコメントを作成する。
// トップレベルのコメントは投稿者に、返信は返信先コメントの投稿者に通知イベントを発行する。
func (s *Service) Create(ctx context.Context, postID, userID string, in CreateInput) (View, error) {
	content, err := validateContent(in.Content)
	if err != nil {
		return View{}, err
	}
	p, err := s.post(ctx, postID)
	if err != nil {
		return View{}, err
	}

	var parent, root db.Comment
	if in.ParentID != "" {
		if parent, err = s.comment(ctx, in.ParentID); err != nil {
			return View{}, err
		}
		if parent.PostID != postID {
			return View{}, apperror.Validation("返信先のコメントは同じ投稿のものを指定してください")
		}
		root = parent
		if parent.ParentID.Valid {
			if root, err = s.comment(ctx, parent.ParentID.String); err != nil {
				return View{}, err
			}
		}
	}

	id := uuid.New().String()
	if err := s.store.CreateComment(ctx, db.CreateCommentParams{
		ID:        id,
		PostID:    postID,
		AuthorID:  userID,
		ParentID:  db.NullString(root.ID),
		Content:   content,
		CreatedAt: s.now(),
	}); err != nil {
		return View{}, apperror.Internal("コメントの作成に失敗しました", err)
	}

	if root.ID == "" {
		s.publish(ctx, event.New(event.TypeCommentCreated, userID, p.AuthorID, event.WithPost(postID), event.WithComment(id)))
	} else {
		s.publish(ctx, event.New(event.TypeReplyCreated, userID, parent.AuthorID, event.WithPost(postID), event.WithComment(root.ID)))
	}
	return s.view(ctx, id, userID)
}

// Update はコメント本文を更新する。所有者の確認はCommentsGuardで済んでいる前提。
func (s *Service) Update(ctx context.Context, id, userID, content string) (View, error) {
	content, err := validateContent(content)
	if err != nil {
		return View{}, err
	}
	if _, err := s.comment(ctx, id); err != nil {
		return View{}, err
	}
	if err := s.store.UpdateComment(ctx, id, content, s.now()); err != nil {
		return View{}, apperror.Internal("コメントの更新に失敗しました", err)
	}
	return s.view(ctx, id, userID)
}

// Delete はコメントと返信、それらへのいいねと通知を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.store.ExecTx(ctx, func(q *db.Queries) error {
		if err := q.DeleteNotificationsByThread(ctx, id); err != nil {
			return err
		}
		if err := q.DeleteCommentLikesByThread(ctx, id); err != nil {
			return err
		}
		return q.DeleteThread(ctx, id)
	})
	if err != nil {
		return apperror.Internal("コメントの削除に失敗しました", err)
	}
	return nil
}

// LikeResult はいいね操作後の状態。
type LikeResult struct {
	Liked     bool  `json:"liked"`
	LikeCount int64 `json:"like_count"`
}

// Like はコメントにいいねする。既にいいね済みの場合は何もしない。
func (s *Service) Like(ctx context.Context, id, userID string) (LikeResult, error) {
	cm, err := s.comment(ctx, id)
	if err != nil {
		return LikeResult{}, err
	}

	created, err := s.store.CreateCommentLike(ctx, id, userID, s.now())
	if err != nil {
		return LikeResult{}, apperror.Internal("いいねに失敗しました", err)
	}
	if created > 0 {
		s.publish(ctx, event.New(event.TypeCommentLiked, userID, cm.AuthorID, event.WithPost(cm.PostID), event.WithComment(id)))
	}
	return s.likeResult(ctx, id, userID)
}

// Unlike はコメントのいいねを取り消す。
func (s *Service) Unlike(ctx context.Context, id, userID string) (LikeResult, error) {
	cm, err := s.comment(ctx, id)
	if err != nil {
		return LikeResult{}, err
	}

	deleted, err := s.store.DeleteCommentLike(ctx, id, userID)
	if err != nil {
		return LikeResult{}, apperror.Internal("いいねの取り消しに失敗しました", err)
	}
	if deleted > 0 {
		s.publish(ctx, event.New(event.TypeCommentUnliked, userID, cm.AuthorID, event.WithPost(cm.PostID), event.WithComment(id)))
	}
	return s.likeResult(ctx, id, userID)
}

func (s *Service) likeResult(ctx context.Context, id, userID string) (LikeResult, error) {
	row, err := s.store.GetCommentRow(ctx, id, userID)
	if err != nil {
		return LikeResult{}, apperror.Internal("いいね数の取得に失敗しました", err)
	}
	return LikeResult{Liked: row.LikedByMe, LikeCount: row.LikeCount}, nil
}

func (s *Service) view(ctx context.Context, id, viewerID string) (View, error) {
	row, err := s.store.GetCommentRow(ctx, id, viewerID)
	if err != nil {
		return View{}, apperror.Internal("コメントの取得に失敗しました", err)
	}
	return toView(row), nil
}

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

func (s *Service) comment(ctx context.Context, id string) (db.Comment, error) {
	cm, err := s.store.GetComment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return db.Comment{}, apperror.NotFound("コメントが見つかりません")
	}
	if err != nil {
		return db.Comment{}, apperror.Internal("コメントの取得に失敗しました", err)
	}
	return cm, nil
}

// publish はイベントを発行する。失敗はログに記録して処理を続ける。
func (s *Service) publish(ctx context.Context, e event.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("イベントの配送に失敗", zap.String("event_type", string(e.Type)), zap.Error(err))
	}
}

func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if n := utf8.RuneCountInString(content); n == 0 || n > maxContentLength {
		return "", apperror.Validation("コメントは1〜2000文字で指定してください")
	}
	return content, nil
}
