package comment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// Handler はコメントAPIのHTTPハンドラ。
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes はコメントAPIに適用するミドルウェア。
type Routes struct {
	Auth         gin.HandlerFunc
	OptionalAuth gin.HandlerFunc
	// Owner はコメントの投稿者だけを通すCommentsGuard。
	Owner gin.HandlerFunc
}

// RegisterPostRoutes は投稿配下のコメントAPIを設定する。rgは /posts のグループ。
func (h *Handler) RegisterPostRoutes(rg *gin.RouterGroup, r Routes) {
	rg.GET("/:id/comments", r.OptionalAuth, h.handleList())
	rg.POST("/:id/comments", r.Auth, h.handleCreate())
}

// RegisterRoutes はコメント単体のAPIを設定する。rgは /comments のグループ。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, r Routes) {
	rg.GET("/:id/replies", r.OptionalAuth, h.handleReplies())
	rg.PUT("/:id", r.Auth, r.Owner, h.handleUpdate())
	rg.DELETE("/:id", r.Auth, r.Owner, h.handleDelete())
	rg.POST("/:id/like", r.Auth, h.handleLike())
	rg.DELETE("/:id/like", r.Auth, h.handleUnlike())
}

// createRequest はコメント作成リクエストのJSON構造。
type createRequest struct {
	// Content は本文。
	Content string `json:"content" binding:"required"`
	// ParentID は返信先のコメントID。
	ParentID string `json:"parent_id"`
}

// updateRequest はコメント更新リクエストのJSON構造。
type updateRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.List(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handler) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		view, err := h.service.Create(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), CreateInput{
			Content:  req.Content,
			ParentID: req.ParentID,
		})
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

func (h *Handler) handleReplies() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Replies(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handler) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		view, err := h.service.Update(c.Request.Context(), c.Param("id"), middleware.GetUserID(c), req.Content)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

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
