/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package datastore

import (
	"context"

	"github.com/suparena/dirsync/storagemodels"
)

// Entity is a versioned record addressable by a natural key.
type Entity[T any] interface {
	StoreKey() string
	StoreVersion() int64
	EntityType() string
	WithVersion(v int64) T
}

// DataStore is the identity store client consumed by the reconciliation engine.
//
// Create fails with errors.ErrAlreadyExists when the key is taken. Update is
// conditioned on expectedVersion and fails with errors.ErrVersionConflict on a
// mismatch; on success the stored version is expectedVersion+1. GetOne and
// Delete fail with errors.ErrNotFound for a missing key.
type DataStore[T Entity[T]] interface {
	GetOne(ctx context.Context, key string) (*T, error)

	Create(ctx context.Context, entity T) (*T, error)

	Update(ctx context.Context, key string, entity T, expectedVersion int64) (*T, error)

	Delete(ctx context.Context, key string) error

	List(ctx context.Context, opts ...storagemodels.ListOption) ([]T, error)
}
