// Package controller owns the lifecycle of a reconciliation run.
//
// A run goes through:
//
//	config check -> TryAcquire -> directory snapshot -> store listing ->
//	ComputePlan -> Apply -> run history -> Release
//
// A missing configuration is reported before the lock is touched, and the
// lock is released on every path once acquired. Stop and IsTerminated form
// the non-blocking surface used by teardown automation.
package controller
