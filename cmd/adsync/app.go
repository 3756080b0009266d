/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/suparena/dirsync"
	"github.com/suparena/dirsync/config"
	"github.com/suparena/dirsync/controller"
	"github.com/suparena/dirsync/datastore/ddb"
	"github.com/suparena/dirsync/directory"
	"github.com/suparena/dirsync/directory/file"
	"github.com/suparena/dirsync/directory/ldap"
	"github.com/suparena/dirsync/events"
	"github.com/suparena/dirsync/events/sqs"
	"github.com/suparena/dirsync/reconcile"
	"github.com/suparena/dirsync/runlock"
	"github.com/suparena/dirsync/teardown"
)

// app is the wired process.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	ctrl       *controller.Controller
	terminator *teardown.Terminator
}

type appFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error)

// newApp wires the AWS-backed stores and event sink.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	clientOpts := ddb.ClientOptions{
		Region:    cfg.Store.Region,
		Endpoint:  cfg.Store.Endpoint,
		AccessKey: cfg.Store.AccessKey,
		SecretKey: cfg.Store.SecretKey,
	}
	client, err := ddb.NewClient(ctx, clientOpts)
	if err != nil {
		return nil, err
	}
	stores, err := dirsync.NewDynamoStores(client, cfg.Store, cfg.Sync)
	if err != nil {
		return nil, err
	}

	var emitter events.Emitter
	if cfg.Events.QueueURL == "" {
		logger.Warn("no events queue configured, change events are not delivered")
		emitter = events.NewDiscard(logger)
	} else {
		awsCfg, err := ddb.LoadAWSConfig(ctx, clientOpts)
		if err != nil {
			return nil, err
		}
		emitter, err = sqs.New(sqs.NewClient(awsCfg), cfg.Events.QueueURL, logger)
		if err != nil {
			return nil, err
		}
	}

	return assemble(cfg, logger, stores, emitter)
}

// assemble builds the controller on top of the given stores.
func assemble(cfg *config.Config, logger *zap.Logger, stores *dirsync.Stores, emitter events.Emitter) (*app, error) {
	reader, err := newReader(cfg.Directory, logger)
	if err != nil {
		return nil, err
	}

	policy := reconcile.Policy{
		IdentitySource: cfg.Sync.IdentitySource,
		ProtectedUsers: cfg.Sync.ProtectedUsers,
		SudoersGroup:   cfg.Directory.SudoersGroup,
	}
	lock := runlock.New(stores.RunState,
		runlock.WithKey(cfg.Lock.Key),
		runlock.WithLeaseTTL(cfg.Lock.LeaseTTL),
		runlock.WithHeartbeatInterval(cfg.Lock.HeartbeatInterval),
		runlock.WithLogger(logger))
	applier := reconcile.NewApplier(stores.Users, stores.Groups, stores.IDs, emitter,
		reconcile.WithPolicy(policy),
		reconcile.WithLogger(logger))

	ctrl, err := controller.New(controller.Deps{
		Lock:      lock,
		Directory: reader,
		Users:     stores.Users,
		Groups:    stores.Groups,
		Runs:      stores.Runs,
		Applier:   applier,
	},
		controller.WithPolicy(policy),
		controller.WithConfigCheck(cfg.Directory.RequireDirectory),
		controller.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		ctrl:   ctrl,
		terminator: teardown.New(ctrl,
			teardown.WithAttempts(cfg.Teardown.Attempts),
			teardown.WithInterval(cfg.Teardown.Interval),
			teardown.WithLogger(logger)),
	}, nil
}

// newReader picks the snapshot file when configured, else LDAP. It returns
// a nil reader while the directory is not configured; the controller then
// reports the missing settings.
func newReader(d config.DirectoryConfig, logger *zap.Logger) (directory.Reader, error) {
	if d.SnapshotFile != "" {
		return file.New(d.SnapshotFile), nil
	}
	if len(d.Missing()) > 0 {
		return nil, nil
	}
	r, err := ldap.New(d.LDAP(), logger)
	if err != nil {
		return nil, fmt.Errorf("ldap reader: %w", err)
	}
	return r, nil
}
