// Package locks provides short-lived per-key advisory locks.
package locks

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another holder owns the key.
var ErrHeld = errors.New("locks: key is held")

// Locker acquires an exclusive lease on key for at most ttl. The returned
// release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

const redisPrefix = "rams:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker leases keys with SET NX PX and releases them only when the
// stored token is still ours.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	if client == nil {
		panic("locks: redis client required")
	}
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	ok, err := l.client.SetNX(ctx, redisPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("locks: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{redisPrefix + key}, token).Err()
		})
	}, nil
}

func newToken() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("locks: token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// MemoryLocker leases keys within one process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]lease
	seq    uint64
	now    func() time.Time
}

type lease struct {
	id      uint64
	expires time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]lease), now: time.Now}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return nil, ErrHeld
	}
	l.seq++
	mine := lease{id: l.seq, expires: now.Add(ttl)}
	l.leases[key] = mine

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if cur, ok := l.leases[key]; ok && cur.id == mine.id {
				delete(l.leases, key)
			}
		})
	}, nil
}
