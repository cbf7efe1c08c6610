// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config はアプリケーション全体の設定。
type Config struct {
	// Port はHTTPサーバーの待ち受けポート。
	Port string `env:"PORT,default=8080"`
	// DatabasePath はSQLiteファイルのパス。
	DatabasePath string `env:"DATABASE_PATH,default=/data/blog.db"`
	// JWTSecret はアクセストークンの署名鍵。
	JWTSecret string `env:"JWT_SECRET,default=dev-secret-key"`
	// JWTTTL はアクセストークンの有効期間。
	JWTTTL time.Duration `env:"JWT_TTL,default=24h"`
	// AllowedOriginsRaw はCORSで許可するオリジンのカンマ区切り。
	AllowedOriginsRaw string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`

	// ImageDir は画像ファイルの保存ディレクトリ。
	ImageDir string `env:"IMAGE_DIR,default=/data/images"`
	// ImageMaxBytes はアップロード可能な画像の最大サイズ。
	ImageMaxBytes int64 `env:"IMAGE_MAX_BYTES,default=5242880"`

	// MailAPIURL はメール配信APIのベースURL。空の場合はログに出力する。
	MailAPIURL string `env:"MAIL_API_URL"`
	// MailAPIKey はメール配信APIのBearerキー。
	MailAPIKey string `env:"MAIL_API_KEY"`
	// MailFrom は送信元アドレス。
	MailFrom string `env:"MAIL_FROM,default=no-reply@blog.local"`

	// ActivationCodeTTL はアクティベーションコードの有効期間。
	ActivationCodeTTL time.Duration `env:"ACTIVATION_CODE_TTL,default=15m"`
	// ActivationMaxAttempts は1つのコードで許可する誤入力回数。
	ActivationMaxAttempts int `env:"ACTIVATION_MAX_ATTEMPTS,default=5"`
	// ActivationResendInterval はコード再送の最小間隔。
	ActivationResendInterval time.Duration `env:"ACTIVATION_RESEND_INTERVAL,default=1m"`
	// InactiveUserTTL は未有効化アカウントを削除するまでの期間。
	InactiveUserTTL time.Duration `env:"INACTIVE_USER_TTL,default=72h"`
	// CleanupSchedule は定期クリーンアップのcron式。
	CleanupSchedule string `env:"CLEANUP_SCHEDULE,default=@every 10m"`

	// TrustedProxiesRaw はX-Forwarded-Forを信頼するプロキシのIPまたはCIDRのカンマ区切り。
	// 空の場合はヘッダーを無視し、接続元アドレスをクライアントIPとする。
	TrustedProxiesRaw string `env:"TRUSTED_PROXIES"`

	// AuthRateLimit は認証APIのクライアントIPごとの毎秒リクエスト数。
	AuthRateLimit float64 `env:"AUTH_RATE_LIMIT,default=5"`
	// AuthRateBurst は認証APIのバースト数。
	AuthRateBurst int `env:"AUTH_RATE_BURST,default=10"`

	// NotificationGroupWindow はグループ化の対象とする最新通知の件数。
	NotificationGroupWindow int `env:"NOTIFICATION_GROUP_WINDOW,default=200"`

	// LogLevel はログレベル。
	LogLevel string `env:"LOG_LEVEL,default=info"`
	// LogFormat はログの出力形式（json または console）。
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load は.envファイルと環境変数から設定を読み込んで検証する。
// .envファイルのパスはENV_FILEで変更でき、ファイルが無い場合は無視する。
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s の読み込みに失敗: %w", envFile, err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("環境変数の解析に失敗: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// AllowedOrigins はCORSで許可するオリジンの一覧を返す。
func (c *Config) AllowedOrigins() []string {
	return splitList(c.AllowedOriginsRaw)
}

// TrustedProxies はクライアントIPの判定で信頼するプロキシの一覧を返す。
func (c *Config) TrustedProxies() []string {
	return splitList(c.TrustedProxiesRaw)
}

// splitList はカンマ区切りの値を空白を除いて分割する。
func splitList(raw string) []string {
	var items []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate は設定値を検証し、すべての問題をまとめたエラーを返す。
func (c *Config) Validate() error {
	var errs []error

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("PORT が不正です: %q", c.Port))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET が空です"))
	}
	for name, d := range map[string]time.Duration{
		"JWT_TTL":                    c.JWTTTL,
		"ACTIVATION_CODE_TTL":        c.ActivationCodeTTL,
		"ACTIVATION_RESEND_INTERVAL": c.ActivationResendInterval,
		"INACTIVE_USER_TTL":          c.InactiveUserTTL,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s は正の期間で指定してください: %v", name, d))
		}
	}
	if c.ImageMaxBytes <= 0 {
		errs = append(errs, fmt.Errorf("IMAGE_MAX_BYTES は正の値で指定してください: %d", c.ImageMaxBytes))
	}
	if c.ActivationMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("ACTIVATION_MAX_ATTEMPTS は1以上で指定してください: %d", c.ActivationMaxAttempts))
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst < 1 {
		errs = append(errs, fmt.Errorf("AUTH_RATE_LIMIT/AUTH_RATE_BURST が不正です: %v/%d", c.AuthRateLimit, c.AuthRateBurst))
	}
	for _, p := range c.TrustedProxies() {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES にIPまたはCIDRでない値があります: %q", p))
		}
	}
	if c.NotificationGroupWindow < 1 {
		errs = append(errs, fmt.Errorf("NOTIFICATION_GROUP_WINDOW は1以上で指定してください: %d", c.NotificationGroupWindow))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL が不正です: %q", c.LogLevel))
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT は json または console で指定してください: %q", c.LogFormat))
	}
	if c.CleanupSchedule == "" {
		errs = append(errs, errors.New("CLEANUP_SCHEDULE が空です"))
	}

	return errors.Join(errs...)
}
