package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/nao1215/socialhub/internal/realtime"
)

// DefaultTTL はRedisに保持するオンライン状態の有効期間。
const DefaultTTL = 2 * time.Minute

// keyPrefix はオンライン状態を保持するRedisキーの接頭辞。
const keyPrefix = "presence:user:"

// Recorder は接続の確立と切断をユーザーのオンライン状態に反映する。
type Recorder interface {
	Online(ctx context.Context, userID, connID string) error
	Offline(ctx context.Context, userID, connID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// LocalRecorder はRegistryの接続状況からオンライン状態を返す。
// 接続の登録・解除はRegistryが行うため、Online/Offlineは何もしない。
type LocalRecorder struct {
	registry *realtime.Registry
}

// NewLocalRecorder はRegistryを参照するRecorderを生成する。
func NewLocalRecorder(registry *realtime.Registry) *LocalRecorder {
	return &LocalRecorder{registry: registry}
}

// Online は何もしない。
func (r *LocalRecorder) Online(context.Context, string, string) error { return nil }

// Offline は何もしない。
func (r *LocalRecorder) Offline(context.Context, string, string) error { return nil }

// IsOnline はユーザーが1つ以上の接続を持つかを返す。
func (r *LocalRecorder) IsOnline(_ context.Context, userID string) (bool, error) {
	return r.registry.IsOnline(userID), nil
}

// redisClient はRedisRecorderが使うgo-redisのメソッド。
type redisClient interface {
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisRecorder はユーザーごとのRedisセットに「インスタンスID:接続ID」を保持する。
// キーにはTTLを設定し、インスタンスが異常終了しても状態が残り続けないようにする。
type RedisRecorder struct {
	client   redisClient
	instance string
	ttl      time.Duration
	logger   zerolog.Logger
}

// NewRedisRecorder はRedisを使うRecorderを生成する。ttlが0以下の場合はDefaultTTLを使う。
func NewRedisRecorder(client redisClient, ttl time.Duration, logger zerolog.Logger) (*RedisRecorder, error) {
	if client == nil {
		return nil, errors.New("redisクライアントが指定されていません")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRecorder{
		client:   client,
		instance: uuid.New().String(),
		ttl:      ttl,
		logger:   logger.With().Str("component", "presence").Logger(),
	}, nil
}

// Online は接続をユーザーのセットに追加し、TTLを延長する。
func (r *RedisRecorder) Online(ctx context.Context, userID, connID string) error {
	key := presenceKey(userID)
	if err := r.client.SAdd(ctx, key, r.member(connID)).Err(); err != nil {
		return fmt.Errorf("オンライン状態の記録に失敗: %w", err)
	}
	if err := r.client.Expire(ctx, key, r.ttl).Err(); err != nil {
		return fmt.Errorf("オンライン状態の有効期限設定に失敗: %w", err)
	}
	r.logger.Debug().Str("user_id", userID).Str("connection_id", connID).Msg("オンライン")
	return nil
}

// Offline は接続をユーザーのセットから取り除く。
func (r *RedisRecorder) Offline(ctx context.Context, userID, connID string) error {
	if err := r.client.SRem(ctx, presenceKey(userID), r.member(connID)).Err(); err != nil {
		return fmt.Errorf("オフライン状態の記録に失敗: %w", err)
	}
	r.logger.Debug().Str("user_id", userID).Str("connection_id", connID).Msg("オフライン")
	return nil
}

// IsOnline はいずれかのインスタンスにユーザーの接続があるかを返す。
func (r *RedisRecorder) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.SCard(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("オンライン状態の取得に失敗: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRecorder) member(connID string) string {
	return r.instance + ":" + connID
}

func presenceKey(userID string) string {
	return keyPrefix + userID
}
