/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshotYAML = `
users:
  - username: alice
    display_name: Alice
    email: alice@example.com
    enabled: true
    groups: [ops]
groups:
  - name: ops
    members: [alice]
`

func TestReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshotYAML), 0o600))
	r := New(path)

	users, err := r.ReadUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].DisplayName)
	assert.True(t, users[0].Enabled)
	assert.Equal(t, []string{"ops"}, users[0].Groups)

	groups, err := r.ReadGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"alice"}, groups[0].Members)
}

func TestReaderFailsExplicitly(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.yaml")).ReadUsers(context.Background())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users: [\n"), 0o600))
	_, err = New(path).ReadGroups(context.Background())
	assert.Error(t, err)
}
