package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// Handler は通知APIのHTTPハンドラ。
type Handler struct {
	service *Service
	hub     *Hub
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, hub *Hub, logger *zap.Logger) *Handler {
	return &Handler{service: service, hub: hub, logger: logger}
}

// Routes は通知APIに適用するミドルウェア。
type Routes struct {
	Auth gin.HandlerFunc
	// StreamAuth はクエリパラメータのトークンも受け付けるAuthGuard。
	StreamAuth gin.HandlerFunc
}

// RegisterRoutes は通知APIのルーティングを設定する。rgは /notifications のグループ。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, r Routes) {
	rg.GET("/stream", r.StreamAuth, h.handleStream())

	authed := rg.Group("", r.Auth)
	// 通知一覧取得
	authed.GET("", h.handleList())
	// 集約ビュー
	authed.GET("/grouped", h.handleGrouped())
	// 未読数
	authed.GET("/unread-count", h.handleUnreadCount())
	// 全通知を既読にする
	authed.PUT("/read-all", h.handleMarkAllRead())
	// 指定した通知をまとめて既読にする
	authed.PUT("/read", h.handleMarkReadByIDs())
	// 通知を既読にする
	authed.PUT("/:id/read", h.handleMarkRead())
	// 通知を削除する
	authed.DELETE("/:id", h.handleDelete())
}

// markReadRequest はまとめて既読にするリクエストのJSON構造。
type markReadRequest struct {
	// IDs は既読にする通知のID。
	IDs []string `json:"ids" binding:"required,min=1,max=200"`
}

func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.List(c.Request.Context(), middleware.GetUserID(c), c.Query("unread") == "true", page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handler) handleGrouped() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Grouped(c.Request.Context(), middleware.GetUserID(c), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (h *Handler) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := h.service.UnreadCount(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

func (h *Handler) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) handleMarkAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := h.service.MarkAllRead(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func (h *Handler) handleMarkReadByIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		updated, err := h.service.MarkReadByIDs(c.Request.Context(), middleware.GetUserID(c), req.IDs)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

func (h *Handler) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.service.Delete(c.Request.Context(), c.Param("id"), middleware.GetUserID(c)); err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleStream は通知ストリームのWebSocket接続を処理するハンドラを返す。
func (h *Handler) handleStream() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.hub.Serve(c.Writer, c.Request, middleware.GetUserID(c))
	}
}
