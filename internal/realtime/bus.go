package realtime

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nao1215/socialhub/pkg/apperr"
	"github.com/nao1215/socialhub/pkg/event"
)

// Stats はBusの累積カウンタ。
type Stats struct {
	// Published はメンバーが1人以上いるルームへのpublish回数。
	Published int64 `json:"published"`
	// Delivered は送信に成功した件数。
	Delivered int64 `json:"delivered"`
	// Failed は送信に失敗した件数。
	Failed int64 `json:"failed"`
}

// Bus はルームへのイベントをメンバーの接続へ配信する。
// 配信は1回きりのベストエフォートで、確認応答や再送は行わない。
type Bus struct {
	registry *Registry
	logger   zerolog.Logger

	// mu は running を保護する。
	mu      sync.RWMutex
	running bool
	// inflight は実行中のPublish。
	inflight sync.WaitGroup

	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewBus は停止状態のBusを生成する。Start を呼ぶまでPublishは失敗する。
func NewBus(registry *Registry, logger zerolog.Logger) *Bus {
	return &Bus{
		registry: registry,
		logger:   logger.With().Str("component", "bus").Logger(),
	}
}

// Start はPublishの受け付けを開始する。
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	b.logger.Info().Msg("配信バスを開始しました")
}

// Stop は新しいPublishを拒否し、実行中のPublishの完了をctxの期限まで待つ。
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	wasRunning := b.running
	b.running = false
	b.mu.Unlock()
	if !wasRunning {
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info().Msg("配信バスを停止しました")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("配信中のイベントの完了待ちが中断されました: %w", ctx.Err())
	}
}

// Running はBusがPublishを受け付けているかどうかを返す。
func (b *Bus) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Publish はルームの現在のメンバー全員にイベントを配信し、送信に成功した件数を返す。
// メンバーがいない場合はペイロードを変換せずに0を返す。
// 個々の接続への送信失敗はログに記録するだけでエラーにはしない。
// Busが稼働していない場合は apperr.ErrBusClosed を返す。
func (b *Bus) Publish(ctx context.Context, room string, kind event.Kind, payload any) (int, error) {
	b.mu.RLock()
	if !b.running {
		b.mu.RUnlock()
		return 0, apperr.ErrBusClosed
	}
	b.inflight.Add(1)
	b.mu.RUnlock()
	defer b.inflight.Done()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	targets := b.registry.targets(room)
	if len(targets) == 0 {
		return 0, nil
	}

	env, err := event.New(room, kind, payload)
	if err != nil {
		return 0, err
	}
	b.published.Add(1)

	delivered := 0
	for _, c := range targets {
		if err := c.deliver(env); err != nil {
			b.failed.Add(1)
			b.logger.Warn().
				Err(err).
				Str("room", room).
				Str("kind", string(kind)).
				Str("connection_id", c.id).
				Str("user_id", c.userID).
				Msg("接続への配信に失敗")
			continue
		}
		delivered++
	}
	b.delivered.Add(int64(delivered))

	b.logger.Debug().
		Str("room", room).
		Str("kind", string(kind)).
		Int("members", len(targets)).
		Int("delivered", delivered).
		Msg("イベントを配信しました")
	return delivered, nil
}

// Stats は累積カウンタのスナップショットを返す。
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
	}
}
