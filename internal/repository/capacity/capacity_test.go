package capacity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ShannaChang/serverless-demo-for-aiops/internal/domain"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository"
	"github.com/ShannaChang/serverless-demo-for-aiops/internal/repository/memory"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	l := newMemoryLimiter(func() time.Time { return now })
	defer l.Close()
	ctx := context.Background()

	require.True(t, l.Allow(ctx, "k", 2, time.Second).Allowed)
	require.True(t, l.Allow(ctx, "k", 2, time.Second).Allowed)
	d := l.Allow(ctx, "k", 2, time.Second)
	require.False(t, d.Allowed)
	require.Equal(t, 2, d.Count)

	now = now.Add(time.Second)
	require.True(t, l.Allow(ctx, "k", 2, time.Second).Allowed)

	l.cleanup(now.Add(time.Hour))
	require.Empty(t, l.entries)
}

func TestMemoryLimiterZeroLimitDisables(t *testing.T) {
	l := NewMemoryLimiter()
	defer l.Close()
	for i := 0; i < 10; i++ {
		require.True(t, l.Allow(context.Background(), "k", 0, time.Second).Allowed)
	}
}

func TestRedisLimiterSharesCounter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	a := NewRedisLimiter(client, "test:", nil)
	b := NewRedisLimiter(client, "test:", nil)
	ctx := context.Background()

	require.True(t, a.Allow(ctx, "items:write", 1, time.Second).Allowed)
	require.False(t, b.Allow(ctx, "items:write", 1, time.Second).Allowed)

	mr.FastForward(2 * time.Second)
	require.True(t, b.Allow(ctx, "items:write", 1, time.Second).Allowed)
}

func TestRedisLimiterRearmsCounterWithoutExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLimiter(client, "test:", nil)
	ctx := context.Background()

	// A counter left behind without a TTL, as after a crash between INCR and PEXPIRE.
	require.NoError(t, mr.Set("test:items:write", "9"))
	require.Zero(t, mr.TTL("test:items:write"))

	d := l.Allow(ctx, "items:write", 5, time.Second)
	require.False(t, d.Allowed)
	require.Equal(t, 10, d.Count)
	require.Equal(t, time.Second, mr.TTL("test:items:write"))

	mr.FastForward(2 * time.Second)
	d = l.Allow(ctx, "items:write", 5, time.Second)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Count)
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedisLimiter(client, "", nil)
	mr.Close()

	require.True(t, l.Allow(context.Background(), "k", 1, time.Second).Allowed)
	require.True(t, l.Allow(context.Background(), "k", 1, time.Second).Allowed)
}

func TestStoreConcurrentPutsExceedSingleWriteUnit(t *testing.T) {
	limiter := NewMemoryLimiter()
	defer limiter.Close()
	store := Wrap(memory.NewItemStore(), limiter, "items", Units{Read: 1, Write: 1, Window: time.Minute})
	require.Zero(t, store.Retries())

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.PutItem(context.Background(), &domain.Item{ID: string(rune('a' + i)), Name: "n"})
		}(i)
	}
	wg.Wait()

	var ok, throttled int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repository.ErrThroughputExceeded):
			throttled++
			require.Equal(t, repository.CodeThroughputExceeded, repository.Code(err))
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 4, throttled)

	items, err := store.next.ScanItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestStoreScanConsumesReadUnit(t *testing.T) {
	limiter := NewMemoryLimiter()
	defer limiter.Close()
	store := Wrap(memory.NewItemStore(), limiter, "", Units{Read: 1, Write: 1, Window: time.Minute})

	_, err := store.ScanItems(context.Background())
	require.NoError(t, err)
	_, err = store.GetItem(context.Background(), "x")
	require.ErrorIs(t, err, repository.ErrThroughputExceeded)
}

func TestDefaultUnits(t *testing.T) {
	require.Equal(t, 1, DefaultUnits(true).Write)
	require.Equal(t, 10, DefaultUnits(false).Read)
	require.Equal(t, 5, DefaultUnits(false).Write)
}
