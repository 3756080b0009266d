/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package dirsync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suparena/dirsync/config"
	"github.com/suparena/dirsync/datastore/ddb"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/identity"
	"github.com/suparena/dirsync/reconcile"
)

func TestNewDynamoStores(t *testing.T) {
	_, err := NewDynamoStores(nil, config.StoreConfig{}, config.SyncConfig{})
	assert.True(t, errors.IsValidationError(err))

	stores, err := NewDynamoStores(nil, config.StoreConfig{Table: "identity"}, config.SyncConfig{UIDBase: 10000, GIDBase: 20000})
	require.NoError(t, err)
	assert.IsType(t, &ddb.DataStore[identity.StoreUser]{}, stores.Users)
	assert.IsType(t, &ddb.Counter{}, stores.IDs)
	assert.IsType(t, &ddb.RunStateTable{}, stores.RunState)
}

func TestNewMemoryStores(t *testing.T) {
	stores := NewMemoryStores(500)
	ctx := context.Background()

	id, err := stores.IDs.NextID(ctx, reconcile.KindUID)
	require.NoError(t, err)
	assert.Equal(t, int64(501), id)

	_, err = stores.Users.Create(ctx, identity.StoreUser{Username: "alice"})
	require.NoError(t, err)
	users, err := stores.Users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, found, err := stores.RunState.Load(ctx, "adsync")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}
