// リアルタイムサービスのエントリポイント。
// 通知の永続化とWebSocketによる配信、会話メッセージの送受信を1プロセスで提供する。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/socialhub/internal/app"
	"github.com/nao1215/socialhub/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := app.NewLogger("info")
		l.Fatal().Err(err).Msg("設定の読み込みに失敗")
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("リアルタイムサーバーの初期化に失敗")
	}

	if err := a.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("リアルタイムサービスが異常終了しました")
		stop()
		os.Exit(1)
	}
}
