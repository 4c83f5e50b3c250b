package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
	"github.com/codigix/nobal-casting-sub004/pkg/config"
)

// KeyedLocker provides mutual exclusion per metric lock key.
// Lock blocks until the key is free or the wait budget runs out, in which
// case it returns an error wrapping apperrors.ErrLockTimeout.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// NewKeyedLocker selects the lock backend from config. A redis backend
// requires a non-nil client.
func NewKeyedLocker(cfg *config.OEEConfig, client *redis.Client, logger *zap.Logger) (KeyedLocker, error) {
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("lock backend %q requires a redis client", cfg.LockBackend)
		}
		return NewRedisLocker(client, cfg.LockTimeout, cfg.LockTTL, logger), nil
	case config.LockBackendMemory, "":
		return NewMemoryLocker(cfg.LockTimeout), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.LockBackend)
	}
}

func lockTimeoutError(ctx context.Context, key string) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s", apperrors.ErrLockTimeout, key)
}

// memoryLocker is an in-process keyed mutex. Entries are reference counted
// and removed once no holder or waiter remains.
type memoryLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	timeout time.Duration
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an in-process locker. A zero timeout waits for the
// caller's context only.
func NewMemoryLocker(timeout time.Duration) KeyedLocker {
	return &memoryLocker{
		entries: make(map[string]*lockEntry),
		timeout: timeout,
	}
}

func (l *memoryLocker) acquireEntry(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *memoryLocker) releaseEntry(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

func (l *memoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	e := l.acquireEntry(key)
	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.releaseEntry(key, e)
		return nil, lockTimeoutError(ctx, key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.releaseEntry(key, e)
		})
	}, nil
}

// size reports the number of live entries.
func (l *memoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

const redisLockPrefix = "oee:lock:"

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// redisLocker is a token lock over SET NX PX for multi-replica deployments.
// The TTL bounds how long a crashed holder can block a key.
type redisLocker struct {
	client  *redis.Client
	timeout time.Duration
	ttl     time.Duration
	logger  *zap.Logger
}

// NewRedisLocker creates a locker backed by Redis.
func NewRedisLocker(client *redis.Client, timeout, ttl time.Duration, logger *zap.Logger) KeyedLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLocker{
		client:  client,
		timeout: timeout,
		ttl:     ttl,
		logger:  logger.Named("redis-locker"),
	}
}

func (l *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	redisKey := redisLockPrefix + key
	token := uuid.NewString()
	backoff := 10 * time.Millisecond

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, lockTimeoutError(ctx, key)
			}
			return nil, fmt.Errorf("failed to acquire redis lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-time.After(backoff):
			if backoff < 200*time.Millisecond {
				backoff *= 2
			}
		case <-ctx.Done():
			return nil, lockTimeoutError(ctx, key)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release must run even if the caller's context is already done.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil {
				l.logger.Warn("Failed to release redis lock",
					zap.String("key", key),
					zap.Error(err))
			}
		})
	}, nil
}
