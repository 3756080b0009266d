/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package reconcile

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/datastore"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/events"
	"github.com/suparena/dirsync/identity"
)

// ID kinds allocated on Create.
const (
	KindUID = "uid"
	KindGID = "gid"
)

// IDAllocator hands out internal numeric ids.
type IDAllocator interface {
	NextID(ctx context.Context, kind string) (int64, error)
}

// CheckpointFunc is consulted before every operation. Returning true, or an
// error, halts the run after the operation in flight.
type CheckpointFunc func(ctx context.Context) (bool, error)

// Failure is one entity that could not be applied.
type Failure struct {
	Entity identity.EntityKey `json:"entity"`
	Action Action             `json:"action"`
	Kind   errors.Kind        `json:"kind"`
	Error  string             `json:"error"`
}

// Summary reports per-entity outcomes of one run.
type Summary struct {
	RunToken      string     `json:"runToken"`
	Succeeded     int        `json:"succeeded"`
	Failed        int        `json:"failed"`
	Skipped       int        `json:"skipped"`
	EventFailures int        `json:"eventFailures"`
	Halted        bool       `json:"halted"`
	Failures      []Failure  `json:"failures,omitempty"`
	Conflicts     []Conflict `json:"conflicts,omitempty"`
}

// Applier executes a Plan against the identity store.
type Applier struct {
	users   datastore.DataStore[identity.StoreUser]
	groups  datastore.DataStore[identity.StoreGroup]
	ids     IDAllocator
	emitter events.Emitter
	policy  Policy
	clock   clockwork.Clock
	logger  *zap.Logger
}

// ApplierOption configures an Applier.
type ApplierOption func(*Applier)

// WithPolicy sets the ownership policy.
func WithPolicy(p Policy) ApplierOption {
	return func(a *Applier) { a.policy = p }
}

// WithClock sets the clock used for record timestamps.
func WithClock(c clockwork.Clock) ApplierOption {
	return func(a *Applier) { a.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ApplierOption {
	return func(a *Applier) { a.logger = l }
}

// NewApplier returns an Applier writing through the given stores.
func NewApplier(
	users datastore.DataStore[identity.StoreUser],
	groups datastore.DataStore[identity.StoreGroup],
	ids IDAllocator,
	emitter events.Emitter,
	opts ...ApplierOption,
) *Applier {
	a := &Applier{
		users:   users,
		groups:  groups,
		ids:     ids,
		emitter: emitter,
		policy:  DefaultPolicy(),
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// applyRun carries the state of one Apply call.
type applyRun struct {
	*Applier
	token   string
	seq     int64
	summary Summary
}

// Apply performs the plan one operation at a time: user creates, updates and
// deletes, then group creates, updates and deletes. A failed entity is
// recorded and the run continues. Each successful write publishes exactly one
// event before the next operation starts.
func (a *Applier) Apply(ctx context.Context, runToken string, plan Plan, checkpoint CheckpointFunc) Summary {
	r := &applyRun{Applier: a, token: runToken}
	r.summary.RunToken = runToken
	r.summary.Conflicts = plan.Conflicts
	r.summary.Skipped = len(plan.Conflicts)
	for _, c := range plan.Conflicts {
		a.logger.Warn("skipping entity owned by another identity source",
			zap.String("entity", c.Entity.String()),
			zap.String("reason", c.Reason))
	}

	steps := make([]func(context.Context), 0, plan.Len())
	for _, list := range [][]UserOp{plan.UserCreates, plan.UserUpdates, plan.UserDeletes} {
		for _, op := range list {
			op := op
			steps = append(steps, func(ctx context.Context) { r.applyUser(ctx, op) })
		}
	}
	for _, list := range [][]GroupOp{plan.GroupCreates, plan.GroupUpdates, plan.GroupDeletes} {
		for _, op := range list {
			op := op
			steps = append(steps, func(ctx context.Context) { r.applyGroup(ctx, op) })
		}
	}

	for _, step := range steps {
		if checkpoint != nil {
			stop, err := checkpoint(ctx)
			if err != nil {
				a.logger.Error("checkpoint failed, halting run", zap.String("run_token", runToken), zap.Error(err))
				stop = true
			}
			if stop {
				r.summary.Halted = true
				break
			}
		}
		if ctx.Err() != nil {
			r.summary.Halted = true
			break
		}
		step(ctx)
	}
	return r.summary
}

func (r *applyRun) applyUser(ctx context.Context, op UserOp) {
	key := identity.EntityKey{Type: identity.EntityUser, Key: op.Key()}
	now := r.clock.Now().Unix()

	var (
		stored *identity.StoreUser
		err    error
	)
	switch op.Action {
	case ActionCreate:
		var uid int64
		uid, err = r.ids.NextID(ctx, KindUID)
		if err != nil {
			err = fmt.Errorf("allocate uid: %w", err)
			break
		}
		rec := identity.StoreUser{
			Username:       op.Desired.Username,
			UID:            uid,
			Role:           identity.RoleUser,
			IdentitySource: r.policy.source(),
			CreatedOn:      now,
			UpdatedOn:      now,
			SyncedOn:       now,
		}.ApplyDirectory(op.Desired)
		stored, err = r.users.Create(ctx, rec)
	case ActionUpdate:
		rec := op.Current.ApplyDirectory(op.Desired)
		rec.UpdatedOn = now
		rec.SyncedOn = now
		stored, err = r.users.Update(ctx, key.Key, rec, op.Current.Version)
	case ActionDelete:
		err = r.users.Delete(ctx, key.Key)
		stored = op.Current
	}

	r.finish(ctx, key, op.Action, stored, err)
}

func (r *applyRun) applyGroup(ctx context.Context, op GroupOp) {
	key := identity.EntityKey{Type: identity.EntityGroup, Key: op.Name}
	now := r.clock.Now().Unix()

	var (
		stored *identity.StoreGroup
		err    error
	)
	switch op.Action {
	case ActionCreate:
		var gid int64
		gid, err = r.ids.NextID(ctx, KindGID)
		if err != nil {
			err = fmt.Errorf("allocate gid: %w", err)
			break
		}
		role := identity.RoleUser
		if r.policy.SudoersGroup != "" && op.Name == r.policy.SudoersGroup {
			role = identity.RoleAdmin
		}
		stored, err = r.groups.Create(ctx, identity.StoreGroup{
			GroupName:      op.Name,
			Members:        identity.SortedSet(op.Members),
			GID:            gid,
			Role:           role,
			IdentitySource: r.policy.source(),
			CreatedOn:      now,
			UpdatedOn:      now,
			SyncedOn:       now,
		})
	case ActionUpdate:
		rec := *op.Current
		rec.Members = identity.SortedSet(op.Members)
		rec.UpdatedOn = now
		rec.SyncedOn = now
		stored, err = r.groups.Update(ctx, key.Key, rec, op.Current.Version)
	case ActionDelete:
		err = r.groups.Delete(ctx, key.Key)
		stored = op.Current
	}

	r.finish(ctx, key, op.Action, stored, err)
}

// finish records the outcome of one write and emits its event.
func (r *applyRun) finish(ctx context.Context, key identity.EntityKey, action Action, payload any, err error) {
	if err != nil {
		if action == ActionDelete && errors.IsNotFound(err) {
			r.summary.Skipped++
			r.logger.Info("entity already removed", zap.String("entity", key.String()))
			return
		}
		kind := errors.KindEntityApplyFailure
		if errors.IsVersionConflict(err) {
			kind = errors.KindVersionConflict
		}
		r.summary.Failed++
		r.summary.Failures = append(r.summary.Failures, Failure{
			Entity: key,
			Action: action,
			Kind:   kind,
			Error:  err.Error(),
		})
		r.logger.Error("failed to apply entity",
			zap.String("run_token", r.token),
			zap.String("entity", key.String()),
			zap.String("action", string(action)),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return
	}

	r.summary.Succeeded++
	r.seq++
	ev := identity.ChangeEvent{
		Entity:        key,
		EventType:     action.eventType(),
		OrderingGroup: key.OrderingGroup(),
		Sequence:      r.seq,
		RunToken:      r.token,
		OccurredAt:    r.clock.Now().UTC(),
		Payload:       payload,
	}
	if err := r.emitter.Publish(ctx, ev.OrderingGroup, ev.EventType, ev); err != nil {
		r.summary.EventFailures++
		r.logger.Error("failed to publish change event",
			zap.String("run_token", r.token),
			zap.String("entity", key.String()),
			zap.Int64("sequence", ev.Sequence),
			zap.Error(err))
		return
	}
	r.logger.Debug("entity applied",
		zap.String("entity", key.String()),
		zap.String("action", string(action)),
		zap.Int64("sequence", ev.Sequence))
}
