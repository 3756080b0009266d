/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/datastore"
	"github.com/suparena/dirsync/directory"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/identity"
	"github.com/suparena/dirsync/reconcile"
	"github.com/suparena/dirsync/runlock"
	"github.com/suparena/dirsync/storagemodels"
)

// Trigger sources recorded in the run history.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"

	// ScheduledDetailType is the only trigger detail-type that starts a run.
	ScheduledDetailType = "Scheduled Event"
)

// Deps are the collaborators of a Controller. Runs may be nil, which
// disables run history.
type Deps struct {
	Lock      *runlock.Manager
	Directory directory.Reader
	Users     datastore.DataStore[identity.StoreUser]
	Groups    datastore.DataStore[identity.StoreGroup]
	Runs      datastore.DataStore[identity.RunRecord]
	Applier   *reconcile.Applier
}

// Controller runs reconciliations under the deployment-wide lock.
type Controller struct {
	deps        Deps
	policy      reconcile.Policy
	checkConfig func() error
	clock       clockwork.Clock
	logger      *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithPolicy sets the ownership policy used to compute plans.
func WithPolicy(p reconcile.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithConfigCheck sets the check run before the lock is touched. It should
// return a KindConfigurationMissing error when the directory is not set up.
func WithConfigCheck(f func() error) Option {
	return func(c *Controller) { c.checkConfig = f }
}

// WithClock sets the clock used for run timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New returns a Controller. Lock, Users, Groups and Applier are required.
func New(deps Deps, opts ...Option) (*Controller, error) {
	switch {
	case deps.Lock == nil:
		return nil, errors.NewValidationError("lock", "run lock is required")
	case deps.Users == nil || deps.Groups == nil:
		return nil, errors.NewValidationError("store", "user and group stores are required")
	case deps.Applier == nil:
		return nil, errors.NewValidationError("applier", "applier is required")
	}

	c := &Controller{
		deps:   deps,
		policy: reconcile.DefaultPolicy(),
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start runs one reconciliation to completion.
func (c *Controller) Start(ctx context.Context) (reconcile.Summary, error) {
	return c.run(ctx, TriggerManual)
}

func (c *Controller) run(ctx context.Context, trigger string) (reconcile.Summary, error) {
	if c.checkConfig != nil {
		if err := c.checkConfig(); err != nil {
			return reconcile.Summary{}, err
		}
	}
	if c.deps.Directory == nil {
		return reconcile.Summary{}, errors.New(errors.KindConfigurationMissing, "start", "no directory reader configured")
	}

	token, err := c.deps.Lock.TryAcquire(ctx)
	if err != nil {
		return reconcile.Summary{}, err
	}
	defer func() {
		if err := c.deps.Lock.Release(context.WithoutCancel(ctx), token); err != nil {
			c.logger.Error("failed to release run lock", zap.String("run_token", token), zap.Error(err))
		}
	}()

	started := c.clock.Now()
	logger := c.logger.With(zap.String("run_token", token), zap.String("trigger", trigger))
	logger.Info("reconciliation run started")

	summary, err := c.reconcile(ctx, token, logger)
	c.record(ctx, trigger, started, summary, err)
	if err != nil {
		logger.Error("reconciliation run failed", zap.Error(err))
		return summary, err
	}

	logger.Info("reconciliation run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("event_failures", summary.EventFailures),
		zap.Bool("halted", summary.Halted),
		zap.Duration("elapsed", c.clock.Since(started)))
	return summary, nil
}

// reconcile reads the directory, then the store, and applies the delta.
// Nothing is written unless both reads succeed.
func (c *Controller) reconcile(ctx context.Context, token string, logger *zap.Logger) (reconcile.Summary, error) {
	summary := reconcile.Summary{RunToken: token}

	snap, err := directory.ReadSnapshot(ctx, c.deps.Directory, logger)
	if err != nil {
		return summary, err
	}

	users, err := c.deps.Users.List(ctx)
	if err != nil {
		return summary, errors.Wrap(errors.KindEntityApplyFailure, "list users", err)
	}
	groups, err := c.deps.Groups.List(ctx)
	if err != nil {
		return summary, errors.Wrap(errors.KindEntityApplyFailure, "list groups", err)
	}

	plan := reconcile.ComputePlan(snap, users, groups, c.policy)
	logger.Info("reconciliation plan computed",
		zap.Int("user_creates", len(plan.UserCreates)),
		zap.Int("user_updates", len(plan.UserUpdates)),
		zap.Int("user_deletes", len(plan.UserDeletes)),
		zap.Int("group_creates", len(plan.GroupCreates)),
		zap.Int("group_updates", len(plan.GroupUpdates)),
		zap.Int("group_deletes", len(plan.GroupDeletes)),
		zap.Int("conflicts", len(plan.Conflicts)))

	return c.deps.Applier.Apply(ctx, token, plan, func(ctx context.Context) (bool, error) {
		return c.deps.Lock.Checkpoint(ctx, token)
	}), nil
}

// record stores the outcome of a run. Failing to record never fails the run.
func (c *Controller) record(ctx context.Context, trigger string, started time.Time, summary reconcile.Summary, runErr error) {
	if c.deps.Runs == nil {
		return
	}

	rec := identity.RunRecord{
		RunToken:   summary.RunToken,
		Trigger:    trigger,
		StartedAt:  strfmt.DateTime(started.UTC()).String(),
		FinishedAt: strfmt.DateTime(c.clock.Now().UTC()).String(),
		Succeeded:  summary.Succeeded,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Halted:     summary.Halted,
	}
	switch {
	case runErr != nil:
		rec.Status = identity.RunFailed
		rec.Error = runErr.Error()
	case summary.Halted:
		rec.Status = identity.RunHalted
	case summary.Failed > 0:
		rec.Status = identity.RunPartial
	default:
		rec.Status = identity.RunSucceeded
	}

	if _, err := c.deps.Runs.Create(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.Error("failed to record run history",
			zap.String("run_token", rec.RunToken),
			zap.Error(err))
	}
}

// Stop marks the active run STOPPING and returns its token at once. ok is
// false when nothing is running.
func (c *Controller) Stop(ctx context.Context) (string, bool, error) {
	token, ok, err := c.deps.Lock.RequestStop(ctx)
	if err != nil {
		return "", false, err
	}
	if ok {
		c.logger.Info("stop requested", zap.String("run_token", token))
	}
	return token, ok, nil
}

// IsTerminated reports whether the run identified by token no longer holds
// the lock. It never blocks on the run.
func (c *Controller) IsTerminated(ctx context.Context, token string) (bool, error) {
	return c.deps.Lock.IsTerminated(ctx, token)
}

// Status returns the current run state.
func (c *Controller) Status(ctx context.Context) (runlock.State, error) {
	return c.deps.Lock.Current(ctx)
}

// ForceRelease clears the lock regardless of holder and returns the token
// it held. Used by operators to recover from a crashed run.
func (c *Controller) ForceRelease(ctx context.Context) (string, error) {
	token, err := c.deps.Lock.ForceRelease(ctx)
	if err != nil {
		return "", err
	}
	if token != "" {
		c.logger.Warn("run lock force released", zap.String("run_token", token))
	}
	return token, nil
}

// History returns the most recent runs, newest first.
func (c *Controller) History(ctx context.Context, limit int) ([]identity.RunRecord, error) {
	if c.deps.Runs == nil {
		return nil, nil
	}
	opts := []storagemodels.ListOption{storagemodels.WithDescending()}
	if limit > 0 {
		opts = append(opts, storagemodels.WithLimit(limit))
	}
	return c.deps.Runs.List(ctx, opts...)
}

// Trigger is the scheduler event that may start a run.
type Trigger struct {
	ID         string          `json:"id,omitempty"`
	DetailType string          `json:"detail-type"`
	Source     string          `json:"source,omitempty"`
	Time       string          `json:"time,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// ParseTrigger decodes a trigger event.
func ParseTrigger(data []byte) (Trigger, error) {
	var t Trigger
	if err := json.Unmarshal(data, &t); err != nil {
		return Trigger{}, errors.NewValidationError("trigger", fmt.Sprintf("malformed event: %v", err))
	}
	return t, nil
}

// HandleTrigger starts a run for a scheduled trigger. Any other detail-type
// is rejected. A missing configuration or a run already in progress is
// logged as a warning and not returned.
func (c *Controller) HandleTrigger(ctx context.Context, t Trigger) (*reconcile.Summary, error) {
	if t.DetailType != ScheduledDetailType {
		return nil, errors.NewValidationError("detail-type",
			fmt.Sprintf("only %q triggers are supported, got %q", ScheduledDetailType, t.DetailType))
	}

	summary, err := c.run(ctx, TriggerScheduled)
	switch errors.KindOf(err) {
	case errors.KindUnknown:
		if err != nil {
			return nil, err
		}
		return &summary, nil
	case errors.KindAlreadyRunning, errors.KindConfigurationMissing:
		c.logger.Warn("scheduled reconciliation skipped", zap.Error(err))
		return nil, nil
	default:
		return nil, err
	}
}
