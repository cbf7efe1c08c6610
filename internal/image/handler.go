package image

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"github.com/nao1215/blog/pkg/pagination"
	"go.uber.org/zap"
)

// multipartOverhead はマルチパートの境界やヘッダーのために許容する追加バイト数。
const multipartOverhead = 1 << 20

// Handler は画像APIのHTTPハンドラ。
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Routes は画像APIに適用するミドルウェア。
type Routes struct {
	Auth gin.HandlerFunc
	// Owner は画像のアップロード者だけを通すImageGuard。
	Owner gin.HandlerFunc
}

// RegisterRoutes は画像APIのルーティングを設定する。rgは /images のグループ。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, r Routes) {
	rg.POST("", r.Auth, h.handleUpload())
	rg.GET("", r.Auth, h.handleList())
	rg.GET("/:id", h.handleServe())
	rg.DELETE("/:id", r.Auth, r.Owner, h.handleDelete())
}

// handleUpload はマルチパートの file フィールドで受け取った画像を保存する。
func (h *Handler) handleUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.service.MaxBytes()+multipartOverhead)

		file, header, err := c.Request.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				apperror.Respond(c, h.logger, h.service.tooLarge())
				return
			}
			apperror.Respond(c, h.logger, apperror.Validation("file フィールドに画像を指定してください"))
			return
		}
		defer func() { _ = file.Close() }()

		view, err := h.service.Upload(c.Request.Context(), middleware.GetUserID(c), header.Filename, file)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	}
}

// handleServe は画像の中身を保存時に判定したContent-Typeで返す。
func (h *Handler) handleServe() gin.HandlerFunc {
	return func(c *gin.Context) {
		img, err := h.service.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.Header("Content-Type", img.ContentType)
		c.Header("Cache-Control", "public, max-age=86400")
		c.File(img.StoragePath)
	}
}

func (h *Handler) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.List(c.Request.Context(), middleware.GetUserID(c), page)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, result)
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
