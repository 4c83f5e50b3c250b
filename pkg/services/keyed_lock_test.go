package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/codigix/nobal-casting-sub004/pkg/apperrors"
	"github.com/codigix/nobal-casting-sub004/pkg/config"
)

func TestMemoryLocker_SerializesSameKey(t *testing.T) {
	locker := NewMemoryLocker(5 * time.Second)
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "job_card:JC-1:2025-03-10")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestMemoryLocker_DistinctKeysDoNotBlock(t *testing.T) {
	locker := NewMemoryLocker(100 * time.Millisecond)
	ctx := context.Background()

	unlockA, err := locker.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := locker.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestMemoryLocker_Timeout(t *testing.T) {
	locker := NewMemoryLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(ctx, "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLockTimeout)
}

func TestMemoryLocker_CanceledContext(t *testing.T) {
	locker := NewMemoryLocker(time.Second)

	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLocker_RemovesIdleEntries(t *testing.T) {
	locker := NewMemoryLocker(20 * time.Millisecond).(*memoryLocker)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, locker.size())

	_, err = locker.Lock(ctx, "k")
	require.Error(t, err)
	assert.Equal(t, 1, locker.size(), "timed out waiter releases its reference")

	unlock()
	unlock() // second call is a no-op
	assert.Equal(t, 0, locker.size())

	unlock, err = locker.Lock(ctx, "k")
	require.NoError(t, err)
	unlock()
	assert.Equal(t, 0, locker.size())
}

func TestNewKeyedLocker(t *testing.T) {
	logger := zap.NewNop()

	l, err := NewKeyedLocker(&config.OEEConfig{LockBackend: config.LockBackendMemory, LockTimeout: time.Second}, nil, logger)
	require.NoError(t, err)
	assert.IsType(t, &memoryLocker{}, l)

	_, err = NewKeyedLocker(&config.OEEConfig{LockBackend: config.LockBackendRedis}, nil, logger)
	assert.Error(t, err)

	_, err = NewKeyedLocker(&config.OEEConfig{LockBackend: "etcd"}, nil, logger)
	assert.Error(t, err)
}
