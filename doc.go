/*
Package dirsync reconciles an authoritative directory (LDAP / Active
Directory) into the identity store.

A reconciliation run reads a complete directory snapshot, lists the store,
computes the create/update/delete delta for users and groups and applies it
one entity at a time, publishing one change event per applied write. At most
one run is active across the deployment; the run lock is a single record
mutated only by conditional writes.

Packages:
  - datastore, datastore/ddb, datastore/mock: versioned identity store
  - directory, directory/ldap, directory/file: snapshot readers
  - reconcile: delta computation and the apply engine
  - runlock: run-state lock with stop requests and lease takeover
  - controller: run lifecycle, triggers and run history
  - teardown: bounded stop-and-wait protocol
  - events, events/sqs: change event emitters

Basic Usage:

	stores, _ := dirsync.NewDynamoStores(client, cfg.Store, cfg.Sync)
	lock := runlock.New(stores.RunState)
	applier := reconcile.NewApplier(stores.Users, stores.Groups, stores.IDs, emitter)
	ctrl, _ := controller.New(controller.Deps{
		Lock:      lock,
		Directory: reader,
		Users:     stores.Users,
		Groups:    stores.Groups,
		Runs:      stores.Runs,
		Applier:   applier,
	})
	summary, err := ctrl.Start(ctx)
*/
package dirsync
