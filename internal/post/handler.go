package post

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// Handler は投稿APIのHTTPハンドラ。
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes は投稿APIに適用するミドルウェア。
type Routes struct {
	// Auth は認証必須のAuthGuard。
	Auth gin.HandlerFunc
	// OptionalAuth は匿名アクセスを許可する認証。
	OptionalAuth gin.HandlerFunc
	// Owner は投稿の作成者だけを通すPostsGuard。
	Owner gin.HandlerFunc
}

// RegisterRoutes は投稿APIのルーティングを設定する。rgは /posts のグループ。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, r Routes) {
	rg.POST("", r.Auth, h.handleCreate())
	rg.GET("", r.OptionalAuth, h.handleList())
	rg.GET("/feed", r.Auth, h.handleFeed())
	rg.GET("/:id", r.OptionalAuth, h.handleGet())
	rg.PUT("/:id", r.Auth, r.Owner, h.handleUpdate())
	rg.DELETE("/:id", r.Auth, r.Owner, h.handleDelete())
	rg.POST("/:id/like", r.Auth, h.handleLike())
	rg.DELETE("/:id/like", r.Auth, h.handleUnlike())
	rg.GET("/:id/likes", h.handleLikers())
}

// RegisterUserRoutes はユーザー配下の投稿一覧を設定する。rgは /users のグループ。
func (h *Handler) RegisterUserRoutes(rg *gin.RouterGroup, optionalAuth gin.HandlerFunc) {
	rg.GET("/:username/posts", optionalAuth, h.handleListByAuthor())
}

// createRequest は投稿作成リクエストのJSON構造。
type createRequest struct {
	// Title はタイトル。
	Title string `json:"title" binding:"required"`
	// Content は本文。
	Content string `json:"content" binding:"required"`
	// Tags はタグ名の一覧。
	Tags []string `json:"tags"`
	// CoverImageID はカバー画像のID。
	CoverImageID string `json:"cover_image_id"`
}

// updateRequest は投稿更新リクエストのJSON構造。省略したフィールドは変更しない。
type updateRequest struct {
	Title        *string   `json:"title"`
	Content      *string   `json:"content"`
	Tags         *[]string `json:"tags"`
	CoverImageID *string   `json:"cover_image_id"`
}

// handleCreate は投稿の作成を処理するハンドラを返す。
func (h *Handler) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		view, err := h.service.Create(c.Request.Context(), middleware.GetUserID(c), CreateInput{
			Title:        req.Title,
			Content:      req.Content,
			Tags:         req.Tags,
			CoverImageID: req.CoverImageID,
		})
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

// handleList は投稿一覧を返すハンドラを返す。
// クエリパラメータ tag、author、q で絞り込める。
func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.List(c.Request.Context(), ListInput{
			ViewerID: middleware.GetUserID(c),
			Author:   c.Query("author"),
			Tag:      c.Query("tag"),
			Query:    c.Query("q"),
		}, page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleListByAuthor はユーザーの投稿一覧を返すハンドラを返す。
func (h *Handler) handleListByAuthor() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.ListByAuthor(c.Request.Context(), c.Param("username"), middleware.GetUserID(c), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleFeed はフィードを返すハンドラを返す。
func (h *Handler) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Feed(c.Request.Context(), middleware.GetUserID(c), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleGet は投稿の取得を処理するハンドラを返す。
func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := h.service.Get(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// handleUpdate は投稿の更新を処理するハンドラを返す。
func (h *Handler) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		view, err := h.service.Update(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), UpdateInput(req))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// handleDelete は投稿の削除を処理するハンドラを返す。
func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleLike はいいねを処理するハンドラを返す。
func (h *Handler) handleLike() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Like(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleUnlike はいいねの取り消しを処理するハンドラを返す。
func (h *Handler) handleUnlike() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.Unlike(c.Request.Context(), c.Param("id"), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleLikers はいいねしたユーザーの一覧を返すハンドラを返す。
func (h *Handler) handleLikers() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Likers(c.Request.Context(), c.Param("id"), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
