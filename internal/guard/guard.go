// Package guard は認証後に実行するリソース所有者チェックのミドルウェアを提供する。
// いずれもmiddleware.JWTAuthの後に登録する。
package guard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"go.uber.org/zap"
)

// OwnerLoader はリソースIDから所有者のユーザーIDを取得する。
// リソースが存在しない場合はsql.ErrNoRowsを返す。
type OwnerLoader func(ctx context.Context, id string) (string, error)

// Owner はパスパラメータ :id のリソースが呼び出し元の所有物であることを確認するミドルウェアを返す。
// 存在しない場合は404、所有者でない場合は403を返す。
func Owner(resource string, load OwnerLoader, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			apperror.Respond(c, logger, apperror.Unauthorized("認証が必要です"))
			return
		}

		ownerID, err := load(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			apperror.Respond(c, logger, apperror.NotFound(fmt.Sprintf("%sが見つかりません", resource)))
			return
		}
		if err != nil {
			apperror.Respond(c, logger, apperror.Internal(fmt.Sprintf("%sの取得に失敗しました", resource), err))
			return
		}

		if ownerID != userID {
			apperror.Respond(c, logger, apperror.Forbidden(fmt.Sprintf("この%sへのアクセス権がありません", resource)))
			return
		}
		c.Next()
	}
}

// PostsGuard は投稿の作成者だけが通過できるミドルウェアを返す。
func PostsGuard(q *db.Queries, logger *zap.Logger) gin.HandlerFunc {
	return Owner("投稿", func(ctx context.Context, id string) (string, error) {
		p, err := q.GetPost(ctx, id)
		return p.AuthorID, err
	}, logger)
}

// CommentsGuard はコメントの投稿者だけが通過できるミドルウェアを返す。
func CommentsGuard(q *db.Queries, logger *zap.Logger) gin.HandlerFunc {
	return Owner("コメント", func(ctx context.Context, id string) (string, error) {
		cm, err := q.GetComment(ctx, id)
		return cm.AuthorID, err
	}, logger)
}

// ImageGuard は画像のアップロード者だけが通過できるミドルウェアを返す。
func ImageGuard(q *db.Queries, logger *zap.Logger) gin.HandlerFunc {
	return Owner("画像", func(ctx context.Context, id string) (string, error) {
		img, err := q.GetImage(ctx, id)
		return img.OwnerID, err
	}, logger)
}

// UserGuard はパスパラメータ :id が呼び出し元自身である場合だけ通過させる。
func UserGuard(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			apperror.Respond(c, logger, apperror.Unauthorized("認証が必要です"))
			return
		}
		if c.Param("id") != userID {
			apperror.Respond(c, logger, apperror.Forbidden("他のユーザーの情報は変更できません"))
			return
		}
		c.Next()
	}
}
