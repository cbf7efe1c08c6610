// Package user はユーザー検索、プロフィール、フォロー関係を提供する。
package user

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/event"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// maxDisplayNameLength は表示名の最大文字数。
	maxDisplayNameLength = 50
	// maxBioLength は自己紹介の最大文字数。
	maxBioLength = 500
)

// Service はユーザーのビジネスロジックを実行する。
type Service struct {
	store      *db.Store
	events     event.Publisher
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// NewService は新しいServiceを生成する。bcryptCostが0の場合はbcrypt.DefaultCostを使う。
func NewService(store *db.Store, events event.Publisher, logger *zap.Logger, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store:      store,
		events:     events,
		logger:     logger,
		bcryptCost: bcryptCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Profile はプロフィールのJSONレスポンス構造。
type Profile struct {
	dto.User
	// FollowerCount はフォロワー数。
	FollowerCount int64 `json:"follower_count"`
	// FollowingCount はフォロー数。
	FollowingCount int64 `json:"following_count"`
	// PostCount は投稿数。
	PostCount int64 `json:"post_count"`
	// FollowedByMe は閲覧者がフォローしているかどうか。
	FollowedByMe bool `json:"followed_by_me"`
}

// Search はユーザー名または表示名の前方一致で有効なユーザーを検索する。
func (s *Service) Search(ctx context.Context, query string, page pagination.Page) (pagination.Result[dto.User], error) {
	prefix := db.EscapeLike(strings.TrimSpace(query))

	users, err := s.store.SearchUsers(ctx, db.SearchUsersParams{Query: prefix, Limit: page.Limit, Offset: page.Skip})
	if err != nil {
		return pagination.Result[dto.User]{}, apperror.Internal("ユーザーの検索に失敗しました", err)
	}
	total, err := s.store.CountSearchUsers(ctx, prefix)
	if err != nil {
		return pagination.Result[dto.User]{}, apperror.Internal("ユーザーの検索に失敗しました", err)
	}
	return pagination.NewResult(page, dto.ToUsers(users), total), nil
}

// GetProfile はユーザーのプロフィールを集計値付きで返す。viewerIDは匿名の場合空文字列。
func (s *Service) GetProfile(ctx context.Context, username, viewerID string) (Profile, error) {
	u, err := s.activeUser(ctx, username)
	if err != nil {
		return Profile{}, err
	}

	stats, err := s.store.GetUserStats(ctx, u.ID)
	if err != nil {
		return Profile{}, apperror.Internal("プロフィールの集計に失敗しました", err)
	}

	followed := false
	if viewerID != "" && viewerID != u.ID {
		if followed, err = s.store.IsFollowing(ctx, viewerID, u.ID); err != nil {
			return Profile{}, apperror.Internal("フォロー状態の取得に失敗しました", err)
		}
	}

	return Profile{
		User:           dto.ToUser(u),
		FollowerCount:  stats.FollowerCount,
		FollowingCount: stats.FollowingCount,
		PostCount:      stats.PostCount,
		FollowedByMe:   followed,
	}, nil
}

// UpdateInput はプロフィール更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	DisplayName *string
	Bio         *string
	// AvatarImageID は空文字列の場合アバターを外す。
	AvatarImageID *string
}

// Update はプロフィールを更新する。アバターには自分がアップロードした画像だけを設定できる。
func (s *Service) Update(ctx context.Context, userID string, in UpdateInput) (db.User, error) {
	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return db.User{}, apperror.NotFound("ユーザーが見つかりません")
	}
	if err != nil {
		return db.User{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}

	params := db.UpdateUserProfileParams{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Bio:           u.Bio,
		AvatarImageID: u.AvatarImageID,
		UpdatedAt:     s.now(),
	}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayNameLength {
			return db.User{}, apperror.Validation("表示名は50文字以内で指定してください")
		}
		params.DisplayName = name
	}
	if in.Bio != nil {
		if utf8.RuneCountInString(*in.Bio) > maxBioLength {
			return db.User{}, apperror.Validation("自己紹介は500文字以内で指定してください")
		}
		params.Bio = *in.Bio
	}
	if in.AvatarImageID != nil {
		if *in.AvatarImageID != "" {
			if err := s.ensureOwnImage(ctx, userID, *in.AvatarImageID); err != nil {
				return db.User{}, err
			}
		}
		params.AvatarImageID = db.NullString(*in.AvatarImageID)
	}

	if err := s.store.UpdateUserProfile(ctx, params); err != nil {
		return db.User{}, apperror.Internal("プロフィールの更新に失敗しました", err)
	}

	updated, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return db.User{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	return updated, nil
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

// ChangePassword は現在のパスワードを確認してから新しいパスワードに変更する。
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < 8 || len(next) > 72 {
		return apperror.Validation("パスワードは8〜72バイトで指定してください")
	}

	u, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound("ユーザーが見つかりません")
	}
	if err != nil {
		return apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
		return apperror.Unauthorized("現在のパスワードが正しくありません")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
	if err != nil {
		return apperror.Internal("パスワードの処理に失敗しました", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash), s.now()); err != nil {
		return apperror.Internal("パスワードの更新に失敗しました", err)
	}
	return nil
}

// FollowResult はフォロー操作後の状態。
type FollowResult struct {
	// Following は操作後にフォローしているかどうか。
	Following bool `json:"following"`
	// FollowerCount は対象ユーザーのフォロワー数。
	FollowerCount int64 `json:"follower_count"`
}

// Follow はユーザーをフォローする。既にフォロー済みの場合は何もしない。
func (s *Service) Follow(ctx context.Context, followerID, username string) (FollowResult, error) {
	target, err := s.activeUser(ctx, username)
	if err != nil {
		return FollowResult{}, err
	}
	if target.ID == followerID {
		return FollowResult{}, apperror.Validation("自分自身はフォローできません")
	}

	created, err := s.store.CreateFollow(ctx, followerID, target.ID, s.now())
	if err != nil {
		return FollowResult{}, apperror.Internal("フォローに失敗しました", err)
	}
	if created > 0 {
		s.publish(ctx, event.New(event.TypeUserFollowed, followerID, target.ID))
	}
	return s.followResult(ctx, target.ID, true)
}

// Unfollow はフォローを解除する。フォローしていない場合は何もしない。
func (s *Service) Unfollow(ctx context.Context, followerID, username string) (FollowResult, error) {
	target, err := s.activeUser(ctx, username)
	if err != nil {
		return FollowResult{}, err
	}
	if target.ID == followerID {
		return FollowResult{}, apperror.Validation("自分自身のフォローは解除できません")
	}

	deleted, err := s.store.DeleteFollow(ctx, followerID, target.ID)
	if err != nil {
		return FollowResult{}, apperror.Internal("フォロー解除に失敗しました", err)
	}
	if deleted > 0 {
		s.publish(ctx, event.New(event.TypeUserUnfollowed, followerID, target.ID))
	}
	return s.followResult(ctx, target.ID, false)
}

func (s *Service) followResult(ctx context.Context, userID string, following bool) (FollowResult, error) {
	stats, err := s.store.GetUserStats(ctx, userID)
	if err != nil {
		return FollowResult{}, apperror.Internal("フォロワー数の取得に失敗しました", err)
	}
	return FollowResult{Following: following, FollowerCount: stats.FollowerCount}, nil
}

// Followers はユーザーのフォロワーを新しい順に返す。
func (s *Service) Followers(ctx context.Context, username string, page pagination.Page) (pagination.Result[dto.User], error) {
	return s.listFollows(ctx, username, page, s.store.ListFollowers, func(st db.UserStats) int64 { return st.FollowerCount })
}

// Following はユーザーがフォローしているユーザーを新しい順に返す。
func (s *Service) Following(ctx context.Context, username string, page pagination.Page) (pagination.Result[dto.User], error) {
	return s.listFollows(ctx, username, page, s.store.ListFollowing, func(st db.UserStats) int64 { return st.FollowingCount })
}

func (s *Service) listFollows(
	ctx context.Context,
	username string,
	page pagination.Page,
	list func(context.Context, db.ListFollowsParams) ([]db.User, error),
	total func(db.UserStats) int64,
) (pagination.Result[dto.User], error) {
	u, err := s.activeUser(ctx, username)
	if err != nil {
		return pagination.Result[dto.User]{}, err
	}

	users, err := list(ctx, db.ListFollowsParams{UserID: u.ID, Limit: page.Limit, Offset: page.Skip})
	if err != nil {
		return pagination.Result[dto.User]{}, apperror.Internal("フォロー一覧の取得に失敗しました", err)
	}
	stats, err := s.store.GetUserStats(ctx, u.ID)
	if err != nil {
		return pagination.Result[dto.User]{}, apperror.Internal("フォロー一覧の取得に失敗しました", err)
	}
	return pagination.NewResult(page, dto.ToUsers(users), total(stats)), nil
}

// activeUser はユーザー名で有効なユーザーを取得する。
func (s *Service) activeUser(ctx context.Context, username string) (db.User, error) {
	u, err := s.store.GetUserByUsername(ctx, username)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !u.IsActive) {
		return db.User{}, apperror.NotFound("ユーザーが見つかりません")
	}
	if err != nil {
		return db.User{}, apperror.Internal("ユーザーの取得に失敗しました", err)
	}
	return u, nil
}

// publish はイベントを発行する。失敗はログに記録して処理を続ける。
func (s *Service) publish(ctx context.Context, e event.Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.Warn("イベントの配送に失敗", zap.String("event_type", string(e.Type)), zap.Error(err))
	}
}
