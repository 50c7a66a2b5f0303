// Package config は環境変数からサービスの設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

// Config はリアルタイムサービスの設定。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port int `env:"PORT,default=8086" validate:"min=1,max=65535"`
	// DatabasePath はSQLiteのファイルパス。":memory:" でインメモリDBになる。
	DatabasePath string `env:"DATABASE_PATH,default=/data/realtime.db" validate:"required"`
	// JWTSecret はトークン検証用の秘密鍵。
	JWTSecret string `env:"JWT_SECRET,default=dev-secret-key" validate:"required"`
	// AllowedOrigins はカンマ区切りの許可Origin。
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	// RedisAddr が空でなければオンライン状態をRedisに記録する。
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0" validate:"min=0"`
	// PresenceTTL はRedisに保持するオンライン状態の有効期間。
	PresenceTTL time.Duration `env:"PRESENCE_TTL,default=2m" validate:"gt=0"`
	// ProfileServiceURL が空でなければ表示名をプロフィールサービスから取得する。
	ProfileServiceURL string `env:"PROFILE_SERVICE_URL" validate:"omitempty,url"`
	// ProfileCacheTTL はプロフィールの表示名をキャッシュする期間。
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL,default=5m"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error"`
	// WSWriteTimeout はWebSocketの1フレームの書き込み期限。
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT,default=10s" validate:"gt=0"`
	// WSPingInterval はWebSocketのping間隔。
	WSPingInterval time.Duration `env:"WS_PING_INTERVAL,default=30s" validate:"gt=0"`
	// ShutdownTimeout はグレースフルシャットダウンの期限。
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s" validate:"gt=0"`
	// NotificationListLimit は通知一覧で指定できる件数の上限。
	NotificationListLimit int `env:"NOTIFICATION_LIST_LIMIT,default=100" validate:"min=1"`
	// DevTokens が true の場合、開発用トークン発行エンドポイントを有効にする。
	DevTokens bool `env:"DEV_TOKENS,default=false"`
}

// Load は .env ファイル（存在すれば）と環境変数から設定を読み込む。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnvSet は指定された環境変数の集合から設定を読み込む。
func FromEnvSet(es env.EnvSet) (*Config, error) {
	var cfg Config
	if err := env.Unmarshal(es, &cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値を検証する。
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("設定値が不正です: %w", err)
	}
	return nil
}

// Origins は許可Originをスライスで返す。
func (c *Config) Origins() []string {
	origins := lo.Map(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) string {
		return strings.TrimSpace(o)
	})
	return lo.Compact(origins)
}

// Addr はHTTPサーバーのリッスンアドレスを返す。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
