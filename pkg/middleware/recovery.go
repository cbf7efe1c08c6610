package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery はハンドラーのパニックを500エラーに変換するGinミドルウェアを返す。
// パニック値とスタックトレースはerrorレベルで記録する。
// レスポンスの書き込み開始後にパニックした場合はステータスを変更できないため、処理を中断するだけにする。
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			fields := []zap.Field{
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			}
			if userID := GetUserID(c); userID != "" {
				fields = append(fields, zap.String("user_id", userID))
			}
			logger.Error("ハンドラーがパニック", fields...)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "内部サーバーエラーが発生しました"})
		}()
		c.Next()
	}
}
