/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedSet(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedSet([]string{"c", " a", "b", "a", ""}))
	assert.NotNil(t, SortedSet(nil))
	assert.Empty(t, SortedSet(nil))
}

func TestSameDirectoryFieldsIgnoresInternalFields(t *testing.T) {
	stored := StoreUser{
		Username:    "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		Enabled:     true,
		Groups:      []string{"ops", "dev"},
		UID:         5001,
		Role:        RoleAdmin,
		Version:     7,
	}
	dir := DirectoryUser{
		Username:    "alice",
		DisplayName: "Alice",
		Email:       "alice@example.com",
		Enabled:     true,
		Groups:      []string{"dev", "ops"},
	}

	assert.True(t, stored.SameDirectoryFields(dir))

	dir.Email = "alice@corp.example.com"
	assert.False(t, stored.SameDirectoryFields(dir))

	updated := stored.ApplyDirectory(dir)
	assert.Equal(t, "alice@corp.example.com", updated.Email)
	assert.True(t, updated.SameDirectoryFields(dir))

	dir.LoginShell = "/bin/zsh"
	assert.False(t, updated.SameDirectoryFields(dir))
	updated = updated.ApplyDirectory(dir)
	assert.Equal(t, "/bin/zsh", updated.LoginShell)
	assert.Equal(t, int64(5001), updated.UID)
	assert.Equal(t, RoleAdmin, updated.Role)
	assert.Equal(t, int64(7), updated.Version)
}

func TestEntityKeyOrderingGroup(t *testing.T) {
	key := EntityKey{Type: EntityGroup, Key: "engineers"}
	assert.Equal(t, "GROUP#engineers", key.HashKey())
	assert.Equal(t, "GROUP#engineers-GROUP#engineers", key.OrderingGroup())
}
