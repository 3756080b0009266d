/*
Package runlock enforces that at most one reconciliation run is active across
a deployment.

The lock is a single State record mutated only through Backend.CompareAndSwap,
conditioned on the Status and RunToken that were just observed:

	IDLE --TryAcquire--> RUNNING --RequestStop--> STOPPING
	  ^                     |                        |
	  +------Release--------+------------------------+

The run token returned by TryAcquire is the run identity: RequestStop returns
it, and IsTerminated reports whether it still holds the lock. Runs call
Checkpoint between operations to observe a stop request and to refresh the
heartbeat.

A process that dies mid-run leaves the state RUNNING. With a lease TTL
configured, TryAcquire takes over a lock whose heartbeat is older than the
TTL; without one, an operator clears it with ForceRelease.
*/
package runlock
