/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package teardown

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/suparena/dirsync/errors"
)

type fakeTarget struct {
	mu         sync.Mutex
	token      string
	running    bool
	stopErr    error
	checkErr   error
	stopsAfter int
	checks     int
}

func (f *fakeTarget) Stop(context.Context) (string, bool, error) {
	if f.stopErr != nil {
		return "", false, f.stopErr
	}
	return f.token, f.running, nil
}

func (f *fakeTarget) IsTerminated(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.stopsAfter > 0 && f.checks >= f.stopsAfter, nil
}

func (f *fakeTarget) Checks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks
}

type result struct {
	token string
	err   error
}

// drive runs Terminate and advances the fake clock whenever the terminator waits.
func drive(t *testing.T, term *Terminator, clock *clockwork.FakeClock, waits int) result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan result, 1)
	go func() {
		token, err := term.Terminate(ctx)
		done <- result{token, err}
	}()

	for i := 0; i < waits; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(DefaultInterval)
	}

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		t.Fatal("terminate did not return")
		return result{}
	}
}

func TestTerminateTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	core, logs := observer.New(zapcore.InfoLevel)
	target := &fakeTarget{token: "run-1", running: true}
	term := New(target, WithClock(clock), WithLogger(zap.New(core)))

	start := clock.Now()
	r := drive(t, term, clock, DefaultAttempts-1)

	assert.Equal(t, "run-1", r.token)
	assert.True(t, errors.IsKind(r.err, errors.KindTerminationTimeout))
	assert.Equal(t, DefaultAttempts, target.Checks())
	assert.Equal(t, 9*DefaultInterval, clock.Since(start))
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).
		FilterMessage("reconciliation run did not stop in time").Len())
}

func TestTerminateStopsEarly(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := &fakeTarget{token: "run-2", running: true, stopsAfter: 3}
	term := New(target, WithClock(clock))

	r := drive(t, term, clock, 2)
	require.NoError(t, r.err)
	assert.Equal(t, "run-2", r.token)
	assert.Equal(t, 3, target.Checks())
}

func TestTerminateNothingRunning(t *testing.T) {
	target := &fakeTarget{}
	token, err := New(target).Terminate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token)
	assert.Zero(t, target.Checks())
}

func TestTerminateStopFailureIsNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	target := &fakeTarget{stopErr: fmt.Errorf("lock table unavailable")}

	token, err := New(target, WithLogger(zap.New(core))).Terminate(context.Background())
	require.Error(t, err)
	assert.Empty(t, token)
	assert.True(t, errors.IsKind(err, errors.KindTerminationTimeout))
	assert.Contains(t, err.Error(), "lock table unavailable")
	assert.Zero(t, target.Checks())
	assert.Equal(t, 1, logs.FilterMessage("stop request failed, run state unknown").Len())
}

func TestTerminateCheckErrorsUseAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	target := &fakeTarget{token: "run-3", running: true, checkErr: fmt.Errorf("throttled")}
	term := New(target, WithClock(clock), WithAttempts(3), WithInterval(DefaultInterval))

	r := drive(t, term, clock, 2)
	assert.True(t, errors.IsKind(r.err, errors.KindTerminationTimeout))
	assert.Equal(t, 3, target.Checks())
}

func TestTerminateHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	target := &fakeTarget{token: "run-4", running: true}
	token, err := New(target, WithClock(clockwork.NewFakeClock())).Terminate(ctx)
	assert.Equal(t, "run-4", token)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, target.Checks())
}
