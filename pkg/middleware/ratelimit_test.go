package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// TestRateLimiter はレート制限ミドルウェアを検証する。
func TestRateLimiter(t *testing.T) {
	t.Parallel()

	newRouter := func(rl *RateLimiter) *gin.Engine {
		router := gin.New()
		router.Use(rl.Handler())
		router.POST("/login", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
		return router
	}

	doLogin := func(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remoteAddr
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("バースト数を超えると429が返ること", func(t *testing.T) {
		t.Parallel()

		// 補充がほぼ発生しない低いレート
		router := newRouter(NewRateLimiter(0.001, 2))

		for i := range 2 {
			if w := doLogin(router, "192.0.2.1:1234"); w.Code != http.StatusOK {
				t.Fatalf("%d回目のステータスコード = %d, want %d", i+1, w.Code, http.StatusOK)
			}
		}

		w := doLogin(router, "192.0.2.1:1234")
		if w.Code != http.StatusTooManyRequests {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTooManyRequests)
		}
		if got := w.Header().Get("Retry-After"); got != "1" {
			t.Errorf("Retry-After = %q, want %q", got, "1")
		}
	})

	t.Run("クライアントIPごとに独立して制限されること", func(t *testing.T) {
		t.Parallel()

		router := newRouter(NewRateLimiter(0.001, 1))

		if w := doLogin(router, "192.0.2.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if w := doLogin(router, "192.0.2.2:1234"); w.Code != http.StatusOK {
			t.Errorf("別IPのステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("Cleanupで古いリミッターが削除されること", func(t *testing.T) {
		t.Parallel()

		rl := NewRateLimiter(1, 1)
		rl.allow("old", time.Now().Add(-time.Hour))
		rl.allow("new", time.Now())

		if removed := rl.Cleanup(10 * time.Minute); removed != 1 {
			t.Errorf("削除数 = %d, want 1", removed)
		}
		if _, ok := rl.limiters["new"]; !ok {
			t.Error("最近アクセスしたリミッターが削除された")
		}
	})
}
