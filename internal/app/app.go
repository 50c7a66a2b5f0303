// Package app はリアルタイムサービスの構成要素を組み立て、起動と停止を管理する。
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nao1215/socialhub/internal/config"
	"github.com/nao1215/socialhub/internal/gateway"
	"github.com/nao1215/socialhub/internal/messaging"
	"github.com/nao1215/socialhub/internal/notification"
	"github.com/nao1215/socialhub/internal/presence"
	"github.com/nao1215/socialhub/internal/profile"
	"github.com/nao1215/socialhub/internal/realtime"
	"github.com/nao1215/socialhub/internal/store"
	"github.com/nao1215/socialhub/pkg/middleware"
)

// serviceName はログとヘルスチェックで使うサービス名。
const serviceName = "realtime"

// redisPingTimeout は起動時のRedis疎通確認の期限。
const redisPingTimeout = 3 * time.Second

// App はリアルタイムサービス全体。
type App struct {
	cfg      *config.Config
	logger   zerolog.Logger
	store    *store.Store
	registry *realtime.Registry
	bus      *realtime.Bus
	gateway  *gateway.Handler
	redis    *redis.Client
	router   *gin.Engine
	server   *http.Server
}

// NewLogger はログレベル名からルートロガーを生成する。不明なレベルはinfoとして扱う。
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
}

// New は設定に従ってすべての構成要素を組み立てる。配信バスは起動済みの状態で返す。
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	st, err := store.Open(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	registry := realtime.NewRegistry()
	bus := realtime.NewBus(registry, logger)

	var (
		recorder    presence.Recorder = presence.NewLocalRecorder(registry)
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = redisClient.Close()
			_ = st.Close()
			return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
		}
		rr, err := presence.NewRedisRecorder(redisClient, cfg.PresenceTTL, logger)
		if err != nil {
			_ = redisClient.Close()
			_ = st.Close()
			return nil, err
		}
		recorder = rr
		logger.Info().Str("addr", cfg.RedisAddr).Msg("オンライン状態をRedisに記録します")
	}

	var names profile.Directory = profile.NewStaticDirectory(nil)
	if cfg.ProfileServiceURL != "" {
		names = profile.NewHTTPDirectory(cfg.ProfileServiceURL, cfg.ProfileCacheTTL, logger)
	}

	notifications := notification.NewService(st, bus, names, logger)
	messages := messaging.NewService(st, bus, notifications, logger)
	gw := gateway.NewHandler(registry, messages, recorder, gateway.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.Origins(),
		WriteTimeout:   cfg.WSWriteTimeout,
		PingInterval:   cfg.WSPingInterval,
		DevTokens:      cfg.DevTokens,
	}, logger)

	a := &App{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		registry: registry,
		bus:      bus,
		gateway:  gw,
		redis:    redisClient,
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.Origins()))

	gw.RegisterRoutes(router)

	// 認証必須のAPIエンドポイント
	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))
	{
		// 通知
		notification.NewHandler(notifications, cfg.NotificationListLimit, logger).RegisterRoutes(api)
		// 会話とメッセージ
		messaging.NewHandler(messages, logger).RegisterRoutes(api)
		// オンライン状態
		presence.NewHandler(recorder, logger).RegisterRoutes(api)
	}

	// ヘルスチェック
	router.GET("/health", a.handleHealth())

	a.router = router
	a.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bus.Start()
	return a, nil
}

// Handler はHTTPハンドラを返す。
func (a *App) Handler() http.Handler {
	return a.router
}

// Run はctxがキャンセルされるまでHTTPサーバーを動かし、その後グレースフルに停止する。
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", a.server.Addr).Msg("リアルタイムサービスを起動します")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info().Msg("停止要求を受け付けました")
	case err := <-errCh:
		if err != nil {
			serveErr = fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()
	return errors.Join(serveErr, a.Shutdown(shutdownCtx))
}

// Shutdown はHTTPサーバー、WebSocket接続、配信バス、Redis、DBの順に停止する。
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTPサーバーの停止に失敗: %w", err))
	}
	a.gateway.Shutdown()
	if err := a.bus.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("Redis接続のクローズに失敗: %w", err))
		}
	}
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info().Msg("リアルタイムサービスを停止しました")
	return errors.Join(errs...)
}

// handleHealth は疎通確認と配信状況を返すハンドラを返す。
func (a *App) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := a.bus.Stats()
		body := gin.H{
			"status":      "ok",
			"service":     serviceName,
			"connections": a.registry.ConnectionCount(),
			"rooms":       a.registry.RoomCount(),
			"bus": gin.H{
				"running":   a.bus.Running(),
				"published": stats.Published,
				"delivered": stats.Delivered,
				"failed":    stats.Failed,
			},
		}

		if err := a.store.Ping(c.Request.Context()); err != nil {
			a.logger.Error().Err(err).Msg("DBへの疎通確認に失敗しました")
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		c.JSON(http.StatusOK, body)
	}
}
