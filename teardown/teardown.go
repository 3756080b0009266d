/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package teardown stops the active run and waits, within a bound, for it to
// terminate. Running out of attempts is reported but never blocks the caller.
package teardown

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/errors"
)

const (
	DefaultAttempts = 10
	DefaultInterval = 10 * time.Second
)

// Target is the run-lifecycle surface the terminator drives.
type Target interface {
	Stop(ctx context.Context) (string, bool, error)
	IsTerminated(ctx context.Context, token string) (bool, error)
}

// Terminator implements the bounded stop-and-poll protocol.
type Terminator struct {
	target   Target
	attempts int
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger
}

// Option configures a Terminator.
type Option func(*Terminator)

// WithAttempts sets how many times IsTerminated is polled.
func WithAttempts(n int) Option {
	return func(t *Terminator) {
		if n > 0 {
			t.attempts = n
		}
	}
}

// WithInterval sets the wait between polls.
func WithInterval(d time.Duration) Option {
	return func(t *Terminator) {
		if d >= 0 {
			t.interval = d
		}
	}
}

// WithClock injects the clock used for waiting.
func WithClock(c clockwork.Clock) Option {
	return func(t *Terminator) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Terminator) { t.logger = l }
}

// New returns a Terminator for target.
func New(target Target, opts ...Option) *Terminator {
	t := &Terminator{
		target:   target,
		attempts: DefaultAttempts,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Terminate requests a stop and polls until the run is gone. It returns the
// stopped run token, or "" when nothing was running. A failed stop request or
// running out of attempts returns a KindTerminationTimeout error, which
// callers should log and move past.
func (t *Terminator) Terminate(ctx context.Context) (string, error) {
	token, ok, err := t.target.Stop(ctx)
	if err != nil {
		t.logger.Warn("stop request failed, run state unknown", zap.Error(err))
		return "", errors.Wrap(errors.KindTerminationTimeout, "request stop", err)
	}
	if !ok {
		t.logger.Info("no running reconciliation to stop")
		return "", nil
	}

	t.logger.Info("stop requested", zap.String("run_token", token))
	for attempt := 1; attempt <= t.attempts; attempt++ {
		done, err := t.target.IsTerminated(ctx, token)
		switch {
		case err != nil:
			t.logger.Warn("termination check failed",
				zap.String("run_token", token),
				zap.Int("attempt", attempt),
				zap.Error(err))
		case done:
			t.logger.Info("reconciliation run stopped",
				zap.String("run_token", token),
				zap.Int("attempt", attempt))
			return token, nil
		}

		if attempt == t.attempts {
			break
		}
		t.logger.Info("waiting for run to stop",
			zap.String("run_token", token),
			zap.Int("attempt", attempt),
			zap.Duration("interval", t.interval))
		select {
		case <-ctx.Done():
			return token, ctx.Err()
		case <-t.clock.After(t.interval):
		}
	}

	t.logger.Warn("reconciliation run did not stop in time",
		zap.String("run_token", token),
		zap.Int("attempts", t.attempts))
	return token, errors.New(errors.KindTerminationTimeout, "terminate",
		fmt.Sprintf("run %s did not stop after %d attempts", token, t.attempts))
}
