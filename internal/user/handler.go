package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// Handler はユーザーAPIのHTTPハンドラ。
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes はユーザーAPIに適用するミドルウェア。
type Routes struct {
	// Auth は認証必須のAuthGuard。
	Auth gin.HandlerFunc
	// OptionalAuth は匿名アクセスを許可する認証。
	OptionalAuth gin.HandlerFunc
	// Self はパスの :id が本人であることを確認するUserGuard。
	Self gin.HandlerFunc
}

// RegisterRoutes はユーザーAPIのルーティングを設定する。rgは /users のグループ。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, r Routes) {
	// ユーザー検索
	rg.GET("", h.handleSearch())
	// プロフィール取得
	rg.GET("/:username", r.OptionalAuth, h.handleProfile())
	// フォロワー一覧
	rg.GET("/:username/followers", h.handleFollowers())
	// フォロー一覧
	rg.GET("/:username/following", h.handleFollowing())
	// フォロー
	rg.POST("/:username/follow", r.Auth, h.handleFollow())
	// フォロー解除
	rg.DELETE("/:username/follow", r.Auth, h.handleUnfollow())
	// プロフィール更新
	rg.PUT("/:id", r.Auth, r.Self, h.handleUpdate())
	// パスワード変更
	rg.PUT("/:id/password", r.Auth, r.Self, h.handleChangePassword())
}

// updateRequest はプロフィール更新リクエストのJSON構造。
type updateRequest struct {
	// DisplayName は表示名。
	DisplayName *string `json:"display_name"`
	// Bio は自己紹介。
	Bio *string `json:"bio"`
	// AvatarImageID はアバター画像のID。空文字列でアバターを外す。
	AvatarImageID *string `json:"avatar_image_id"`
}

// changePasswordRequest はパスワード変更リクエストのJSON構造。
type changePasswordRequest struct {
	// CurrentPassword は現在のパスワード。
	CurrentPassword string `json:"current_password" binding:"required"`
	// NewPassword は新しいパスワード。
	NewPassword string `json:"new_password" binding:"required"`
}

// handleSearch はユーザー検索を処理するハンドラを返す。
func (h *Handler) handleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Search(c.Request.Context(), c.Query("q"), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleProfile はプロフィール取得を処理するハンドラを返す。
func (h *Handler) handleProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, err := h.service.GetProfile(c.Request.Context(), c.Param("username"), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

// handleUpdate はプロフィール更新を処理するハンドラを返す。
func (h *Handler) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		u, err := h.service.Update(c.Request.Context(), middleware.GetUserID(c), UpdateInput{
			DisplayName:   req.DisplayName,
			Bio:           req.Bio,
			AvatarImageID: req.AvatarImageID,
		})
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, dto.ToMe(u))
	}
}

// handleChangePassword はパスワード変更を処理するハンドラを返す。
func (h *Handler) handleChangePassword() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		if err := h.service.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleFollow はフォローを処理するハンドラを返す。
func (h *Handler) handleFollow() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Follow(c.Request.Context(), middleware.GetUserID(c), c.Param("username"))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleUnfollow はフォロー解除を処理するハンドラを返す。
func (h *Handler) handleUnfollow() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Unfollow(c.Request.Context(), middleware.GetUserID(c), c.Param("username"))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleFollowers はフォロワー一覧を返すハンドラを返す。
func (h *Handler) handleFollowers() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Followers(c.Request.Context(), c.Param("username"), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleFollowing はフォロー一覧を返すハンドラを返す。
func (h *Handler) handleFollowing() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Following(c.Request.Context(), c.Param("username"), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
