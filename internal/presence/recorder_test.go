package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/socialhub/internal/realtime"
	"github.com/nao1215/socialhub/pkg/event"
)

// fakeRedis はセット操作だけを持つインメモリのredisClient。
type fakeRedis struct {
	mu      sync.Mutex
	sets    map[string]map[string]struct{}
	expires map[string]time.Duration
	err     error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		sets:    make(map[string]map[string]struct{}),
		expires: make(map[string]time.Duration),
	}
}

func (f *fakeRedis) SAdd(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	set, ok := f.sets[key]
	if !ok {
		set = make(map[string]struct{})
		f.sets[key] = set
	}
	var added int64
	for _, m := range members {
		s := m.(string)
		if _, ok := set[s]; !ok {
			set[s] = struct{}{}
			added++
		}
	}
	return redis.NewIntResult(added, nil)
}

func (f *fakeRedis) SRem(_ context.Context, key string, members ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var removed int64
	for _, m := range members {
		s := m.(string)
		if _, ok := f.sets[key][s]; ok {
			delete(f.sets[key], s)
			removed++
		}
	}
	if len(f.sets[key]) == 0 {
		delete(f.sets, key)
	}
	return redis.NewIntResult(removed, nil)
}

func (f *fakeRedis) SCard(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	return redis.NewIntResult(int64(len(f.sets[key])), nil)
}

func (f *fakeRedis) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	_, ok := f.sets[key]
	if ok {
		f.expires[key] = expiration
	}
	return redis.NewBoolResult(ok, nil)
}

type nopSender struct{}

func (nopSender) Send(*event.Envelope) error { return nil }

func TestNewRedisRecorder(t *testing.T) {
	t.Parallel()

	t.Run("クライアントがnilの場合はエラー", func(t *testing.T) {
		t.Parallel()
		_, err := NewRedisRecorder(nil, time.Minute, zerolog.Nop())
		require.Error(t, err)
	})

	t.Run("TTLが0の場合はデフォルト値を使う", func(t *testing.T) {
		t.Parallel()
		r, err := NewRedisRecorder(newFakeRedis(), 0, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, DefaultTTL, r.ttl)
	})
}

func TestRedisRecorder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("最後の接続が切れるまでオンライン", func(t *testing.T) {
		t.Parallel()
		client := newFakeRedis()
		r, err := NewRedisRecorder(client, time.Minute, zerolog.Nop())
		require.NoError(t, err)

		online, err := r.IsOnline(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, online)

		require.NoError(t, r.Online(ctx, "alice", "c1"))
		require.NoError(t, r.Online(ctx, "alice", "c2"))
		assert.Equal(t, time.Minute, client.expires["presence:user:alice"])

		require.NoError(t, r.Offline(ctx, "alice", "c1"))
		online, err = r.IsOnline(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, online)

		require.NoError(t, r.Offline(ctx, "alice", "c2"))
		online, err = r.IsOnline(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, online)
	})

	t.Run("インスタンスごとにメンバーが分かれる", func(t *testing.T) {
		t.Parallel()
		client := newFakeRedis()
		a, err := NewRedisRecorder(client, time.Minute, zerolog.Nop())
		require.NoError(t, err)
		b, err := NewRedisRecorder(client, time.Minute, zerolog.Nop())
		require.NoError(t, err)

		require.NoError(t, a.Online(ctx, "bob", "c1"))
		require.NoError(t, b.Online(ctx, "bob", "c1"))
		require.NoError(t, a.Offline(ctx, "bob", "c1"))

		online, err := a.IsOnline(ctx, "bob")
		require.NoError(t, err)
		assert.True(t, online)
	})

	t.Run("Redisのエラーをラップして返す", func(t *testing.T) {
		t.Parallel()
		client := newFakeRedis()
		client.err = errors.New("connection refused")
		r, err := NewRedisRecorder(client, time.Minute, zerolog.Nop())
		require.NoError(t, err)

		assert.ErrorIs(t, r.Online(ctx, "carol", "c1"), client.err)
		assert.ErrorIs(t, r.Offline(ctx, "carol", "c1"), client.err)
		_, err = r.IsOnline(ctx, "carol")
		assert.ErrorIs(t, err, client.err)
	})
}

func TestLocalRecorder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	registry := realtime.NewRegistry()
	r := NewLocalRecorder(registry)

	online, err := r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, registry.Register("c1", "alice", nopSender{}))
	require.NoError(t, r.Online(ctx, "alice", "c1"))
	online, err = r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)

	registry.OnDisconnect("c1")
	require.NoError(t, r.Offline(ctx, "alice", "c1"))
	online, err = r.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)
}
