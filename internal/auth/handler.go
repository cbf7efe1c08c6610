package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/internal/dto"
	"github.com/nao1215/blog/pkg/apperror"
	"github.com/nao1215/blog/pkg/middleware"
	"go.uber.org/zap"
)

// Handler は認証APIのHTTPハンドラ。
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler は新しいHandlerを生成する。
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes は認証APIのルーティングを設定する。
// authはGET /me に適用する認証ミドルウェア。
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, auth gin.HandlerFunc) {
	// ユーザー登録
	rg.POST("/register", h.handleRegister())
	// 確認コードによるアカウント有効化
	rg.POST("/activate", h.handleActivate())
	// 確認コードの再送
	rg.POST("/resend", h.handleResend())
	// ログイン
	rg.POST("/login", h.handleLogin())
	// 認証済みユーザーの情報取得
	rg.GET("/me", auth, h.handleMe())
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Username はユーザー名。
	Username string `json:"username" binding:"required"`
	// Email はメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
	// DisplayName は表示名。
	DisplayName string `json:"display_name" binding:"max=50"`
}

// activateRequest はアカウント有効化リクエストのJSON構造。
type activateRequest struct {
	// Email は登録したメールアドレス。
	Email string `json:"email" binding:"required,email"`
	// Code はメールで受け取った6桁の確認コード。
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// resendRequest は確認コード再送リクエストのJSON構造。
type resendRequest struct {
	// Email は登録したメールアドレス。
	Email string `json:"email" binding:"required,email"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Login はユーザー名またはメールアドレス。
	Login string `json:"login" binding:"required"`
	// Password はパスワード。
	Password string `json:"password" binding:"required"`
}

// tokenResponse はトークン発行時のJSONレスポンス構造。
type tokenResponse struct {
	// Token はアクセストークン。
	Token string `json:"token"`
	// ExpiresAt はトークンの有効期限。
	ExpiresAt string `json:"expires_at"`
	// User は認証済みユーザーの情報。
	User dto.Me `json:"user"`
}

func toTokenResponse(r TokenResult) tokenResponse {
	return tokenResponse{
		Token:     r.Token,
		ExpiresAt: dto.FormatTime(r.ExpiresAt),
		User:      dto.ToMe(r.User),
	}
}

// handleRegister はユーザー登録を処理するハンドラを返す。
func (h *Handler) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		user, err := h.service.Register(c.Request.Context(), RegisterInput{
			Username:    req.Username,
			Email:       req.Email,
			Password:    req.Password,
			DisplayName: req.DisplayName,
		})
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusCreated, dto.ToMe(user))
	}
}

// handleActivate はアカウント有効化を処理するハンドラを返す。
// 成功した場合はそのままログイン状態となるトークンを返す。
func (h *Handler) handleActivate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req activateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Activate(c.Request.Context(), req.Email, req.Code)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, toTokenResponse(result))
	}
}

// handleResend は確認コードの再送を処理するハンドラを返す。
func (h *Handler) handleResend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		if err := h.service.Resend(c.Request.Context(), req.Email); err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "確認コードを送信しました"})
	}
}

// handleLogin はログインを処理するハンドラを返す。
func (h *Handler) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apperror.BadRequest(c, err)
			return
		}

		result, err := h.service.Login(c.Request.Context(), req.Login, req.Password)
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, toTokenResponse(result))
	}
}

// handleMe は認証済みユーザーの情報を返すハンドラを返す。
func (h *Handler) handleMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.service.Me(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			apperror.Respond(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, dto.ToMe(user))
	}
}
