/*
Package datastore defines the identity store client used by dirsync.

	type DataStore[T Entity[T]] interface {
	    GetOne(ctx context.Context, key string) (*T, error)
	    Create(ctx context.Context, entity T) (*T, error)
	    Update(ctx context.Context, key string, entity T, expectedVersion int64) (*T, error)
	    Delete(ctx context.Context, key string) error
	    List(ctx context.Context, opts ...storagemodels.ListOption) ([]T, error)
	}

Every write is a single conditional operation on one record; there is no
cross-record transaction. Update carries the version read earlier in the same
run so a concurrent external mutation surfaces as errors.ErrVersionConflict
instead of being overwritten.

Implementations:
  - ddb: DynamoDB single-table implementation, plus the run-state table and
    the numeric id counter
  - mock: in-memory implementation for tests
*/
package datastore
