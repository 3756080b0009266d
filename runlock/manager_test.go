/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package runlock

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/dirsync/errors"
)

func sequentialTokens() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("run-%d", n)
	}
}

func newTestManager(clock clockwork.Clock, opts ...Option) (*Manager, *MemoryBackend) {
	backend := NewMemoryBackend()
	opts = append([]Option{WithClock(clock), WithTokenSource(sequentialTokens())}, opts...)
	return New(backend, opts...), backend
}

func TestConcurrentAcquireAdmitsOne(t *testing.T) {
	m, _ := newTestManager(clockwork.NewFakeClock())
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	var tokens []string
	var rejected int

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := m.TryAcquire(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.True(t, errors.IsKind(err, errors.KindAlreadyRunning), "unexpected error: %v", err)
				rejected++
				return
			}
			tokens = append(tokens, token)
		}()
	}
	wg.Wait()

	require.Len(t, tokens, 1)
	assert.Equal(t, callers-1, rejected)

	active, err := m.IsActive(ctx, tokens[0])
	require.NoError(t, err)
	assert.True(t, active)
}

func TestReleaseIsIdempotent(t *testing.T) {
	m, _ := newTestManager(clockwork.NewFakeClock())
	ctx := context.Background()

	token, err := m.TryAcquire(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Release(ctx, token))
	require.NoError(t, m.Release(ctx, token))
	require.NoError(t, m.Release(ctx, "never-held"))

	state, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, state.Status)
	assert.Equal(t, token, state.LastRunToken)

	next, err := m.TryAcquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, token, next)
}

func TestStaleReleaseDoesNotFreeNewHolder(t *testing.T) {
	m, _ := newTestManager(clockwork.NewFakeClock())
	ctx := context.Background()

	first, err := m.TryAcquire(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, first))

	second, err := m.TryAcquire(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, first))

	active, err := m.IsActive(ctx, second)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestStopProtocol(t *testing.T) {
	m, _ := newTestManager(clockwork.NewFakeClock())
	ctx := context.Background()

	_, ok, err := m.RequestStop(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "no run is active")

	token, err := m.TryAcquire(ctx)
	require.NoError(t, err)

	stop, err := m.Checkpoint(ctx, token)
	require.NoError(t, err)
	assert.False(t, stop)

	stopped, ok, err := m.RequestStop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, token, stopped)

	again, ok, err := m.RequestStop(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, token, again)

	stop, err = m.Checkpoint(ctx, token)
	require.NoError(t, err)
	assert.True(t, stop)

	terminated, err := m.IsTerminated(ctx, token)
	require.NoError(t, err)
	assert.False(t, terminated, "still STOPPING until released")

	_, err = m.TryAcquire(ctx)
	assert.True(t, errors.IsKind(err, errors.KindAlreadyRunning))

	require.NoError(t, m.Release(ctx, token))
	terminated, err = m.IsTerminated(ctx, token)
	require.NoError(t, err)
	assert.True(t, terminated)
}

func TestLeaseTakeoverOnlyAfterExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m, _ := newTestManager(clock, WithLeaseTTL(time.Minute))
	ctx := context.Background()

	crashed, err := m.TryAcquire(ctx)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	_, err = m.TryAcquire(ctx)
	require.True(t, errors.IsKind(err, errors.KindAlreadyRunning))

	clock.Advance(2 * time.Second)
	taken, err := m.TryAcquire(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, crashed, taken)

	state, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, crashed, state.LastRunToken)

	stop, err := m.Checkpoint(ctx, crashed)
	require.NoError(t, err)
	assert.True(t, stop, "the old holder must notice it lost the lock")

	require.NoError(t, m.Release(ctx, crashed))
	active, err := m.IsActive(ctx, taken)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestHeartbeatKeepsLeaseAlive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m, _ := newTestManager(clock, WithLeaseTTL(time.Minute), WithHeartbeatInterval(10*time.Second))
	ctx := context.Background()

	token, err := m.TryAcquire(ctx)
	require.NoError(t, err)
	started := clock.Now()

	clock.Advance(5 * time.Second)
	_, err = m.Checkpoint(ctx, token)
	require.NoError(t, err)
	state, err := m.Current(ctx)
	require.NoError(t, err)
	assert.True(t, state.HeartbeatAt.Equal(started), "refresh is rate limited")

	for i := 0; i < 6; i++ {
		clock.Advance(20 * time.Second)
		stop, err := m.Checkpoint(ctx, token)
		require.NoError(t, err)
		require.False(t, stop)
	}

	_, err = m.TryAcquire(ctx)
	assert.True(t, errors.IsKind(err, errors.KindAlreadyRunning))
}

func TestLeaseDisabledByDefault(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m, _ := newTestManager(clock)
	ctx := context.Background()

	_, err := m.TryAcquire(ctx)
	require.NoError(t, err)

	clock.Advance(72 * time.Hour)
	_, err = m.TryAcquire(ctx)
	assert.True(t, errors.IsKind(err, errors.KindAlreadyRunning))
}

func TestForceRelease(t *testing.T) {
	m, _ := newTestManager(clockwork.NewFakeClock())
	ctx := context.Background()

	cleared, err := m.ForceRelease(ctx)
	require.NoError(t, err)
	assert.Empty(t, cleared)

	stuck, err := m.TryAcquire(ctx)
	require.NoError(t, err)

	cleared, err = m.ForceRelease(ctx)
	require.NoError(t, err)
	assert.Equal(t, stuck, cleared)

	terminated, err := m.IsTerminated(ctx, stuck)
	require.NoError(t, err)
	assert.True(t, terminated)

	_, err = m.TryAcquire(ctx)
	require.NoError(t, err)
}

type failingBackend struct {
	*MemoryBackend
	loadErr error
}

func (b *failingBackend) Load(ctx context.Context, key string) (State, bool, error) {
	if b.loadErr != nil {
		return State{}, false, b.loadErr
	}
	return b.MemoryBackend.Load(ctx, key)
}

func TestBackendFailureIsNotAlreadyRunning(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), loadErr: fmt.Errorf("throttled")}
	m := New(backend, WithClock(clockwork.NewFakeClock()))

	_, err := m.TryAcquire(context.Background())
	require.Error(t, err)
	assert.False(t, errors.IsKind(err, errors.KindAlreadyRunning))
}
