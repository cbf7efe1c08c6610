// Package metrics はPrometheusメトリクスの登録と公開を行う。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry はアプリケーション固有のコレクタを保持する。
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blog",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	// NotificationsCreated は作成された通知数を種別ごとに数える。
	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Total number of notifications created.",
		},
		[]string{"type"},
	)

	// StreamConnections は接続中の通知ストリーム数。
	StreamConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blog",
			Subsystem: "notifications",
			Name:      "stream_connections",
			Help:      "Current number of open notification streams.",
		},
	)

	// ActivationCodesSent は送信したアクティベーションコード数。
	ActivationCodesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "auth",
			Name:      "activation_codes_sent_total",
			Help:      "Total number of activation codes sent.",
		},
	)

	// CleanupRemoved は定期クリーンアップで削除した件数を対象ごとに数える。
	CleanupRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blog",
			Subsystem: "janitor",
			Name:      "removed_total",
			Help:      "Total number of rows removed by the janitor.",
		},
		[]string{"target"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		NotificationsCreated,
		StreamConnections,
		ActivationCodesSent,
		CleanupRemoved,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler はメトリクスを公開するHTTPハンドラを返す。
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware はリクエスト数と処理時間を記録するGinミドルウェアを返す。
// ラベルにはURLではなくルートテンプレート（例: /api/v1/posts/:id）を使用する。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
