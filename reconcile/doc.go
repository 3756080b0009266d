// Package reconcile computes and applies the delta between a directory
// snapshot and the identity store.
//
// ComputePlan is pure. The Applier performs a Plan one write at a time:
//
//	user creates -> user updates -> user deletes ->
//	group creates -> group updates -> group deletes
//
// Updates are conditioned on the version read at the start of the run. A
// failed entity is recorded in the Summary and never aborts the run.
package reconcile
