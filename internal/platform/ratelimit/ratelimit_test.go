package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

func TestConfigValidation(t *testing.T) {
	_, err := NewMemory(Config{Limit: 0, Window: time.Minute})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRedis(nil, Config{Limit: 5})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMemoryFixedWindow(t *testing.T) {
	m, err := NewMemory(Config{Limit: 2, Window: time.Minute})
	require.NoError(t, err)
	now := fixedNow
	m.now = func() time.Time { return now }
	ctx := context.Background()

	d, _ := m.Allow(ctx, "1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.Equal(t, 34*time.Second, d.RetryAfter)

	d, _ = m.Allow(ctx, "1.2.3.4")
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = m.Allow(ctx, "1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	other, _ := m.Allow(ctx, "5.6.7.8")
	assert.True(t, other.Allowed, "keys are counted separately")

	now = now.Add(time.Minute)
	d, _ = m.Allow(ctx, "1.2.3.4")
	assert.True(t, d.Allowed, "a new window resets the count")
	assert.Len(t, m.counters, 1, "stale windows are pruned")
}

func TestMemoryConcurrentAllow(t *testing.T) {
	m, err := NewMemory(Config{Limit: 50, Window: time.Hour})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := m.Allow(context.Background(), "k")
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestRedisAllow(t *testing.T) {
	cfg := Config{Limit: 3, Window: time.Minute}
	key := windowKey("1.2.3.4", windowStart(fixedNow, cfg.Window))

	t.Run("under limit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		l, err := NewRedis(db, cfg)
		require.NoError(t, err)
		l.now = func() time.Time { return fixedNow }

		mock.ExpectIncr(key).SetVal(1)
		mock.ExpectExpire(key, cfg.Window).SetVal(true)

		d, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2, d.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("over limit", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		l, err := NewRedis(db, cfg)
		require.NoError(t, err)
		l.now = func() time.Time { return fixedNow }

		mock.ExpectIncr(key).SetVal(4)
		mock.ExpectExpire(key, cfg.Window).SetVal(true)

		d, err := l.Allow(context.Background(), "1.2.3.4")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 34*time.Second, d.RetryAfter)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis error", func(t *testing.T) {
		db, mock := redismock.NewClientMock()
		l, err := NewRedis(db, cfg)
		require.NoError(t, err)
		l.now = func() time.Time { return fixedNow }

		mock.ExpectIncr(key).SetErr(errors.New("connection reset"))

		_, err = l.Allow(context.Background(), "1.2.3.4")
		assert.Error(t, err)
	})
}

func TestWindowKey(t *testing.T) {
	assert.Equal(t, "ratelimit:ip:1741964940000", windowKey("ip", windowStart(fixedNow, time.Minute)))
}

func TestWindowKeySubSecondWindows(t *testing.T) {
	window := 500 * time.Millisecond
	first := windowKey("ip", windowStart(fixedNow, window))
	second := windowKey("ip", windowStart(fixedNow.Add(window), window))

	assert.Equal(t, "ratelimit:ip:1741964966000", first)
	assert.Equal(t, "ratelimit:ip:1741964966500", second)
}

func TestConnectPingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, RedisOptions{Addr: "127.0.0.1:1"}, func(opt *redis.Options) *redis.Client {
		opt.MaxRetries = -1
		opt.DialTimeout = 200 * time.Millisecond
		return redis.NewClient(opt)
	})
	assert.Error(t, err)
}
