/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/errors"
)

const (
	// DefaultKey names the run state when none is configured.
	DefaultKey = "adsync"
	// DefaultHeartbeatInterval bounds how often Checkpoint writes the heartbeat.
	DefaultHeartbeatInterval = 30 * time.Second

	// casAttempts bounds how often a transition is retried after the state
	// moved underneath it (e.g. a heartbeat racing a stop request).
	casAttempts = 3
)

// Manager grants, tracks and releases the deployment-wide run lock.
type Manager struct {
	backend           Backend
	key               string
	clock             clockwork.Clock
	leaseTTL          time.Duration
	heartbeatInterval time.Duration
	newToken          func() string
	logger            *zap.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithKey sets the run-state key.
func WithKey(key string) Option {
	return func(m *Manager) {
		if key != "" {
			m.key = key
		}
	}
}

// WithClock injects the clock used for timestamps and lease expiry.
func WithClock(c clockwork.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLeaseTTL lets TryAcquire take over a lock whose heartbeat is older than ttl.
// Zero disables takeover; a stuck lock then needs ForceRelease.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.leaseTTL = ttl }
}

// WithHeartbeatInterval sets how often Checkpoint refreshes the heartbeat.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.heartbeatInterval = d
		}
	}
}

// WithTokenSource replaces the run token generator.
func WithTokenSource(f func() string) Option {
	return func(m *Manager) { m.newToken = f }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// New creates a Manager on backend.
func New(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:           backend,
		key:               DefaultKey,
		clock:             clockwork.NewRealClock(),
		heartbeatInterval: DefaultHeartbeatInterval,
		newToken:          uuid.NewString,
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key returns the run-state key.
func (m *Manager) Key() string {
	return m.key
}

// Current returns the stored run state, or an idle state if none exists.
func (m *Manager) Current(ctx context.Context) (State, error) {
	s, found, err := m.backend.Load(ctx, m.key)
	if err != nil {
		return State{}, fmt.Errorf("load run state: %w", err)
	}
	if !found {
		return State{LockKey: m.key, Status: StatusIdle}, nil
	}
	return s, nil
}

func (m *Manager) expired(s State, now time.Time) bool {
	return m.leaseTTL > 0 && now.Sub(s.HeartbeatAt) > m.leaseTTL
}

// TryAcquire moves the run state to RUNNING under a fresh run token.
// It fails with errors.KindAlreadyRunning while another run holds the lock.
func (m *Manager) TryAcquire(ctx context.Context) (string, error) {
	prev, found, err := m.backend.Load(ctx, m.key)
	if err != nil {
		return "", fmt.Errorf("load run state: %w", err)
	}

	now := m.clock.Now()
	if found && prev.Held() {
		if !m.expired(prev, now) {
			return "", errors.New(errors.KindAlreadyRunning, "acquire", fmt.Sprintf("run %s holds the lock", prev.RunToken))
		}
		m.logger.Warn("taking over expired run lock",
			zap.String("run_token", prev.RunToken),
			zap.Time("heartbeat_at", prev.HeartbeatAt),
			zap.Duration("lease_ttl", m.leaseTTL))
	}

	token := m.newToken()
	next := State{
		LockKey:        m.key,
		Status:         StatusRunning,
		RunToken:       token,
		StartedAt:      now,
		HeartbeatAt:    now,
		LastRunToken:   prev.LastRunToken,
		LastFinishedAt: prev.LastFinishedAt,
	}
	if found && prev.Held() {
		next.LastRunToken = prev.RunToken
	}

	var expected *State
	if found {
		expected = &prev
	}
	swapped, err := m.backend.CompareAndSwap(ctx, m.key, expected, next)
	if err != nil {
		return "", fmt.Errorf("acquire run state: %w", err)
	}
	if !swapped {
		return "", errors.New(errors.KindAlreadyRunning, "acquire", "another run acquired the lock first")
	}
	return token, nil
}

// transition applies fn to the state as long as token holds the lock,
// retrying when a concurrent writer changed the state first.
func (m *Manager) transition(ctx context.Context, token string, fn func(State) State) (bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		prev, found, err := m.backend.Load(ctx, m.key)
		if err != nil {
			return false, fmt.Errorf("load run state: %w", err)
		}
		if !found || !prev.HeldBy(token) {
			return false, nil
		}
		swapped, err := m.backend.CompareAndSwap(ctx, m.key, &prev, fn(prev))
		if err != nil {
			return false, err
		}
		if swapped {
			return true, nil
		}
	}
	return false, fmt.Errorf("run state for %s kept changing", token)
}

// Release returns the lock to IDLE. Releasing a token that no longer holds
// the lock is a no-op.
func (m *Manager) Release(ctx context.Context, token string) error {
	_, err := m.transition(ctx, token, func(prev State) State {
		return State{
			LockKey:        m.key,
			Status:         StatusIdle,
			LastRunToken:   token,
			LastFinishedAt: m.clock.Now(),
		}
	})
	if err != nil {
		return fmt.Errorf("release run state: %w", err)
	}
	return nil
}

// IsActive reports whether token currently holds the lock.
func (m *Manager) IsActive(ctx context.Context, token string) (bool, error) {
	s, err := m.Current(ctx)
	if err != nil {
		return false, err
	}
	return s.HeldBy(token), nil
}

// IsTerminated reports whether the run identified by token no longer holds the lock.
func (m *Manager) IsTerminated(ctx context.Context, token string) (bool, error) {
	active, err := m.IsActive(ctx, token)
	return !active, err
}

// RequestStop marks the current run STOPPING and returns its token.
// ok is false when no run holds the lock.
func (m *Manager) RequestStop(ctx context.Context) (string, bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		s, err := m.Current(ctx)
		if err != nil {
			return "", false, err
		}
		if !s.Held() {
			return "", false, nil
		}
		if s.Status == StatusStopping {
			return s.RunToken, true, nil
		}

		swapped, err := m.transition(ctx, s.RunToken, func(prev State) State {
			prev.Status = StatusStopping
			prev.StopRequestedAt = m.clock.Now()
			return prev
		})
		if err != nil {
			return "", false, fmt.Errorf("request stop: %w", err)
		}
		if swapped {
			return s.RunToken, true, nil
		}
	}
	return "", false, fmt.Errorf("request stop: run state kept changing")
}

// Checkpoint is consulted between operations of a run. It reports true when
// the run must halt, either because a stop was requested or the lock was lost.
// It refreshes the heartbeat at most once per heartbeat interval.
func (m *Manager) Checkpoint(ctx context.Context, token string) (bool, error) {
	s, err := m.Current(ctx)
	if err != nil {
		return false, err
	}
	if !s.HeldBy(token) {
		m.logger.Warn("run lock lost", zap.String("run_token", token), zap.String("holder", s.RunToken))
		return true, nil
	}
	if s.Status == StatusStopping {
		return true, nil
	}

	now := m.clock.Now()
	if now.Sub(s.HeartbeatAt) < m.heartbeatInterval {
		return false, nil
	}
	next := s
	next.HeartbeatAt = now
	if _, err := m.backend.CompareAndSwap(ctx, m.key, &s, next); err != nil {
		// A missed heartbeat only matters once the lease runs out.
		m.logger.Warn("heartbeat refresh failed", zap.String("run_token", token), zap.Error(err))
	}
	return false, nil
}

// ForceRelease clears whatever run holds the lock and returns its token.
// It is the operator path for a lock left behind by a crashed process.
func (m *Manager) ForceRelease(ctx context.Context) (string, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		s, err := m.Current(ctx)
		if err != nil {
			return "", err
		}
		if !s.Held() {
			return "", nil
		}
		swapped, err := m.transition(ctx, s.RunToken, func(prev State) State {
			return State{
				LockKey:        m.key,
				Status:         StatusIdle,
				LastRunToken:   prev.RunToken,
				LastFinishedAt: m.clock.Now(),
			}
		})
		if err != nil {
			return "", fmt.Errorf("force release: %w", err)
		}
		if swapped {
			m.logger.Warn("run lock force released", zap.String("run_token", s.RunToken))
			return s.RunToken, nil
		}
	}
	return "", fmt.Errorf("force release: run state kept changing")
}
