/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package mock provides in-memory implementations of the identity store for testing
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/suparena/dirsync/datastore"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/storagemodels"
)

// DataStore is an in-memory datastore.DataStore[T] with version checks and error injection
type DataStore[T datastore.Entity[T]] struct {
	mu          sync.RWMutex
	data        map[string]T
	ops         []string
	failFunc    func(op, key string) error
	createError error
	updateError error
	deleteError error
	listError   error
}

// New creates a new mock DataStore
func New[T datastore.Entity[T]]() *DataStore[T] {
	return &DataStore[T]{
		data: make(map[string]T),
	}
}

// WithFailFunc installs a hook consulted before every write; a non-nil result fails that write
func (m *DataStore[T]) WithFailFunc(f func(op, key string) error) *DataStore[T] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failFunc = f
	return m
}

// WithCreateError makes Create operations return an error
func (m *DataStore[T]) WithCreateError(err error) *DataStore[T] {
	m.createError = err
	return m
}

// WithUpdateError makes Update operations return an error
func (m *DataStore[T]) WithUpdateError(err error) *DataStore[T] {
	m.updateError = err
	return m
}

// WithDeleteError makes Delete operations return an error
func (m *DataStore[T]) WithDeleteError(err error) *DataStore[T] {
	m.deleteError = err
	return m
}

// WithListError makes List operations return an error
func (m *DataStore[T]) WithListError(err error) *DataStore[T] {
	m.listError = err
	return m
}

// GetOne retrieves a record by key
func (m *DataStore[T]) GetOne(ctx context.Context, key string) (*T, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entity, exists := m.data[key]; exists {
		return &entity, nil
	}

	var zero T
	return nil, errors.NewNotFoundError(zero.EntityType(), key)
}

// Create stores a new record at version 1
func (m *DataStore[T]) Create(ctx context.Context, entity T) (*T, error) {
	if m.createError != nil {
		return nil, m.createError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := entity.StoreKey()
	if key == "" {
		return nil, errors.NewValidationError("key", "unable to extract key from entity")
	}
	if err := m.fail("create", key); err != nil {
		return nil, err
	}
	if _, exists := m.data[key]; exists {
		return nil, errors.NewAlreadyExistsError(entity.EntityType(), key)
	}

	stored := entity.WithVersion(1)
	m.data[key] = stored
	m.ops = append(m.ops, "create:"+key)
	return &stored, nil
}

// Update replaces a record if its version still equals expectedVersion
func (m *DataStore[T]) Update(ctx context.Context, key string, entity T, expectedVersion int64) (*T, error) {
	if m.updateError != nil {
		return nil, m.updateError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("update", key); err != nil {
		return nil, err
	}
	current, exists := m.data[key]
	if !exists {
		return nil, errors.NewNotFoundError(entity.EntityType(), key)
	}
	if current.StoreVersion() != expectedVersion {
		return nil, errors.NewVersionConflictError(entity.EntityType(), key, expectedVersion)
	}

	stored := entity.WithVersion(expectedVersion + 1)
	m.data[key] = stored
	m.ops = append(m.ops, "update:"+key)
	return &stored, nil
}

// Delete removes a record by key
func (m *DataStore[T]) Delete(ctx context.Context, key string) error {
	if m.deleteError != nil {
		return m.deleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("delete", key); err != nil {
		return err
	}
	if _, exists := m.data[key]; !exists {
		var zero T
		return errors.NewNotFoundError(zero.EntityType(), key)
	}

	delete(m.data, key)
	m.ops = append(m.ops, "delete:"+key)
	return nil
}

// List returns all records ordered by key
func (m *DataStore[T]) List(ctx context.Context, opts ...storagemodels.ListOption) ([]T, error) {
	if m.listError != nil {
		return nil, m.listError
	}
	options := storagemodels.ApplyListOptions(opts...)

	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if options.Descending {
		sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	}
	if options.Limit > 0 && len(keys) > options.Limit {
		keys = keys[:options.Limit]
	}

	results := make([]T, 0, len(keys))
	for _, k := range keys {
		results = append(results, m.data[k])
	}
	return results, nil
}

// Helper methods for testing

// SetData directly sets the internal data map (for testing)
func (m *DataStore[T]) SetData(data map[string]T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]T, len(data))
	for k, v := range data {
		m.data[k] = v
	}
}

// Seed stores records as-is, keyed by their StoreKey
func (m *DataStore[T]) Seed(entities ...T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entities {
		m.data[e.StoreKey()] = e
	}
}

// GetData returns a copy of the internal data map (for testing)
func (m *DataStore[T]) GetData() map[string]T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]T, len(m.data))
	for k, v := range m.data {
		result[k] = v
	}
	return result
}

// Ops returns the successful writes in order, as "op:key"
func (m *DataStore[T]) Ops() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.ops...)
}

// ResetOps forgets the recorded writes
func (m *DataStore[T]) ResetOps() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = nil
}

// Count returns the number of stored records
func (m *DataStore[T]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Clear removes all data
func (m *DataStore[T]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]T)
	m.ops = nil
}

func (m *DataStore[T]) fail(op, key string) error {
	if m.failFunc == nil {
		return nil
	}
	if err := m.failFunc(op, key); err != nil {
		return fmt.Errorf("%s %s: %w", op, key, err)
	}
	return nil
}
