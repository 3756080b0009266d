/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package runlock

import (
	"context"
	"sync"
	"time"
)

// Status of the deployment-wide run state.
type Status string

const (
	StatusIdle     Status = "IDLE"
	StatusRunning  Status = "RUNNING"
	StatusStopping Status = "STOPPING"
)

// State is the singleton run-state record of one deployment.
type State struct {
	LockKey         string    `dynamodbav:"lock_key" json:"lockKey"`
	Status          Status    `dynamodbav:"status" json:"status"`
	RunToken        string    `dynamodbav:"run_token,omitempty" json:"runToken,omitempty"`
	StartedAt       time.Time `dynamodbav:"started_at" json:"startedAt"`
	HeartbeatAt     time.Time `dynamodbav:"heartbeat_at" json:"heartbeatAt"`
	StopRequestedAt time.Time `dynamodbav:"stop_requested_at" json:"stopRequestedAt"`
	LastRunToken    string    `dynamodbav:"last_run_token,omitempty" json:"lastRunToken,omitempty"`
	LastFinishedAt  time.Time `dynamodbav:"last_finished_at" json:"lastFinishedAt"`
}

// Held reports whether some run owns the lock.
func (s State) Held() bool {
	return s.Status == StatusRunning || s.Status == StatusStopping
}

// HeldBy reports whether the run identified by token owns the lock.
func (s State) HeldBy(token string) bool {
	return token != "" && s.Held() && s.RunToken == token
}

// Backend persists the run state.
type Backend interface {
	// Load returns the stored state. found is false if none was ever written.
	Load(ctx context.Context, key string) (state State, found bool, err error)
	// CompareAndSwap stores next only if the stored state still carries the
	// Status and RunToken of prev, as one indivisible operation. A nil prev
	// requires that no state exists. swapped is false when the condition failed.
	CompareAndSwap(ctx context.Context, key string, prev *State, next State) (swapped bool, err error)
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{states: make(map[string]State)}
}

func (b *MemoryBackend) Load(_ context.Context, key string) (State, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.states[key]
	return s, ok, nil
}

func (b *MemoryBackend) CompareAndSwap(_ context.Context, key string, prev *State, next State) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur, ok := b.states[key]
	switch {
	case prev == nil && ok:
		return false, nil
	case prev != nil && !ok:
		return false, nil
	case prev != nil && (cur.Status != prev.Status || cur.RunToken != prev.RunToken):
		return false, nil
	}
	b.states[key] = next
	return true, nil
}
