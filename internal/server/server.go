// Package server はブログAPIの依存関係を組み立て、HTTPサーバーを起動する。
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/blog/internal/auth"
	"github.com/nao1215/blog/internal/comment"
	"github.com/nao1215/blog/internal/config"
	"github.com/nao1215/blog/internal/db"
	"github.com/nao1215/blog/internal/guard"
	"github.com/nao1215/blog/internal/image"
	"github.com/nao1215/blog/internal/janitor"
	"github.com/nao1215/blog/internal/notification"
	"github.com/nao1215/blog/internal/post"
	"github.com/nao1215/blog/internal/tag"
	"github.com/nao1215/blog/internal/user"
	"github.com/nao1215/blog/pkg/event"
	"github.com/nao1215/blog/pkg/metrics"
	"github.com/nao1215/blog/pkg/middleware"
	"go.uber.org/zap"
)

// limiterIdle はアクセスの無いクライアントのレートリミッターを残しておく期間。
const limiterIdle = 10 * time.Minute

// Server はブログAPIのHTTPサーバー。
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	janitor    *janitor.Janitor
	hub        *notification.Hub
	logger     *zap.Logger
}

// New は設定とDB接続から新しいServerを生成する。
// クライアントIPはTRUSTED_PROXIESに含まれるプロキシからの場合だけX-Forwarded-Forから判定する。
func New(cfg *config.Config, sqlDB *sql.DB, logger *zap.Logger) (*Server, error) {
	store := db.NewStore(sqlDB)
	bus := event.NewBus(logger)

	var mailer auth.Mailer = auth.NewLogMailer(logger)
	if cfg.MailAPIURL != "" {
		mailer = auth.NewHTTPMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	}

	hub := notification.NewHub(cfg.AllowedOrigins(), logger)
	notifications := notification.NewService(store, hub, cfg.NotificationGroupWindow, logger)
	notifications.Subscribe(bus)

	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies()); err != nil {
		return nil, fmt.Errorf("信頼するプロキシの設定に失敗: %w", err)
	}
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())
	router.Use(middleware.CORS(cfg.AllowedOrigins()))

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		janitor: janitor.New(store, janitor.Options{
			Schedule:        cfg.CleanupSchedule,
			InactiveUserTTL: cfg.InactiveUserTTL,
			LimiterIdle:     limiterIdle,
		}, logger, authLimiter),
		hub:    hub,
		logger: logger,
	}

	requireAuth := middleware.JWTAuth(cfg.JWTSecret)
	optionalAuth := middleware.OptionalJWTAuth(cfg.JWTSecret)

	api := router.Group("/api/v1")

	// 認証
	authService := auth.NewService(store, mailer, logger, auth.Options{
		JWTSecret:      cfg.JWTSecret,
		JWTTTL:         cfg.JWTTTL,
		CodeTTL:        cfg.ActivationCodeTTL,
		MaxAttempts:    cfg.ActivationMaxAttempts,
		ResendInterval: cfg.ActivationResendInterval,
	})
	auth.NewHandler(authService, logger).
		RegisterRoutes(api.Group("/auth", authLimiter.Handler()), requireAuth)

	// ユーザー
	users := api.Group("/users")
	user.NewHandler(user.NewService(store, bus, logger, 0), logger).RegisterRoutes(users, user.Routes{
		Auth:         requireAuth,
		OptionalAuth: optionalAuth,
		Self:         guard.UserGuard(logger),
	})

	// 記事
	posts := api.Group("/posts")
	postHandler := post.NewHandler(post.NewService(store, bus, logger), logger)
	postHandler.RegisterRoutes(posts, post.Routes{
		Auth:         requireAuth,
		OptionalAuth: optionalAuth,
		Owner:        guard.PostsGuard(store.Queries, logger),
	})
	postHandler.RegisterUserRoutes(users, optionalAuth)

	// コメント
	commentHandler := comment.NewHandler(comment.NewService(store, bus, logger), logger)
	commentRoutes := comment.Routes{
		Auth:         requireAuth,
		OptionalAuth: optionalAuth,
		Owner:        guard.CommentsGuard(store.Queries, logger),
	}
	commentHandler.RegisterPostRoutes(posts, commentRoutes)
	commentHandler.RegisterRoutes(api.Group("/comments"), commentRoutes)

	// タグ
	tag.NewHandler(tag.NewService(store.Queries), logger).RegisterRoutes(api.Group("/tags"))

	// 画像
	image.NewHandler(image.NewService(store, cfg.ImageDir, cfg.ImageMaxBytes, logger), logger).
		RegisterRoutes(api.Group("/images"), image.Routes{
			Auth:  requireAuth,
			Owner: guard.ImageGuard(store.Queries, logger),
		})

	// 通知
	notification.NewHandler(notifications, hub, logger).
		RegisterRoutes(api.Group("/notifications"), notification.Routes{
			Auth:       requireAuth,
			StreamAuth: middleware.JWTAuthWithQuery(cfg.JWTSecret),
		})

	// ヘルスチェック
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "blog"})
	})
	// メトリクス
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return s, nil
}

// Handler はルーティング済みのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は定期クリーンアップを開始してHTTPサーバーを起動する。
// Shutdownが呼ばれるまで戻らない。
func (s *Server) Run(ctx context.Context) error {
	if err := s.janitor.Start(ctx); err != nil {
		return err
	}

	s.logger.Info("HTTPサーバーを起動", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	}
	return nil
}

// Shutdown は新規リクエストの受付を止め、処理中のリクエストと定期クリーンアップの完了を待つ。
// WebSocket接続はHTTPサーバーの停止を待たずに切断する。
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	err := s.httpServer.Shutdown(ctx)
	s.janitor.Stop(ctx)
	if err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}
