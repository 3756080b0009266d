/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dirsync

import (
	"fmt"

	"github.com/suparena/dirsync/config"
	"github.com/suparena/dirsync/datastore"
	"github.com/suparena/dirsync/datastore/ddb"
	"github.com/suparena/dirsync/datastore/mock"
	"github.com/suparena/dirsync/identity"
	"github.com/suparena/dirsync/reconcile"
	"github.com/suparena/dirsync/runlock"
)

// Stores bundles every durable collaborator of a reconciliation run.
type Stores struct {
	Users    datastore.DataStore[identity.StoreUser]
	Groups   datastore.DataStore[identity.StoreGroup]
	Runs     datastore.DataStore[identity.RunRecord]
	IDs      reconcile.IDAllocator
	RunState runlock.Backend
}

// NewDynamoStores builds the stores on DynamoDB. Identity records, run
// history and id counters share cfg.Table; the run state lives in
// cfg.LockTable, or cfg.Table when unset.
func NewDynamoStores(client ddb.API, cfg config.StoreConfig, syncCfg config.SyncConfig) (*Stores, error) {
	users, err := ddb.New[identity.StoreUser](client, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}
	groups, err := ddb.New[identity.StoreGroup](client, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("group store: %w", err)
	}
	runs, err := ddb.New[identity.RunRecord](client, cfg.Table)
	if err != nil {
		return nil, fmt.Errorf("run history store: %w", err)
	}

	lockTable := cfg.LockTable
	if lockTable == "" {
		lockTable = cfg.Table
	}
	return &Stores{
		Users:  users,
		Groups: groups,
		Runs:   runs,
		IDs: ddb.NewCounter(client, cfg.Table, map[string]int64{
			reconcile.KindUID: syncCfg.UIDBase,
			reconcile.KindGID: syncCfg.GIDBase,
		}),
		RunState: ddb.NewRunStateTable(client, lockTable),
	}, nil
}

// NewMemoryStores builds process-local stores. Ids start after base.
func NewMemoryStores(base int64) *Stores {
	return &Stores{
		Users:    mock.New[identity.StoreUser](),
		Groups:   mock.New[identity.StoreGroup](),
		Runs:     mock.New[identity.RunRecord](),
		IDs:      mock.NewCounter(base),
		RunState: runlock.NewMemoryBackend(),
	}
}
