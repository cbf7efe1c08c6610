package tag

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// Handler はタグAPIのHTTPハンドラ。
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes はタグAPIのルーティングを設定する。rgは /tags のグループ。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.handleList())
	rg.GET("/search", h.handleSearch())
	rg.GET("/:name", h.handleGet())
}

func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.List(c.Request.Context(), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleSearch はタグ検索を処理するハンドラを返す。結果はページネーションせず配列で返す。
func (h *Handler) handleSearch() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.Parse("", c.Query("limit"))
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		tags, err := h.service.Search(c.Request.Context(), c.Query("q"), page.Limit)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": tags})
	}
}

func (h *Handler) handleGet() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := h.service.Get(c.Request.Context(), c.Param("name"))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, t)
	}
}
