package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisLocker(redis.NewClient(&redis.Options{Addr: mr.Addr()})), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "appointment:a-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("rams:lock:appointment:a-1"))

	_, err = locker.Acquire(ctx, "appointment:a-1", 10*time.Second)
	assert.ErrorIs(t, err, ErrHeld)

	other, err := locker.Acquire(ctx, "appointment:a-2", 10*time.Second)
	require.NoError(t, err)
	other()

	release()
	release()
	assert.False(t, mr.Exists("rams:lock:appointment:a-1"))

	again, err := locker.Acquire(ctx, "appointment:a-1", 10*time.Second)
	require.NoError(t, err)
	again()
}

func TestRedisLockerExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	defer fresh()

	stale()
	assert.True(t, mr.Exists("rams:lock:k"))
}

func TestRedisLockerUnavailable(t *testing.T) {
	locker, mr := newRedisLocker(t)
	mr.Close()

	_, err := locker.Acquire(context.Background(), "k", time.Second)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrHeld))
}

func TestMemoryLockerSingleWinner(t *testing.T) {
	locker := NewMemoryLocker()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := locker.Acquire(context.Background(), "k", time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryLockerExpiry(t *testing.T) {
	locker := NewMemoryLocker()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	stale, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrHeld)

	now = now.Add(time.Second)
	fresh, err := locker.Acquire(ctx, "k", time.Second)
	require.NoError(t, err)

	stale()
	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, ErrHeld, "stale release must not drop the new lease")
	fresh()

	_, err = locker.Acquire(ctx, "k", time.Second)
	assert.NoError(t, err)
}

func TestMemoryLockerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryLocker().Acquire(ctx, "k", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}
