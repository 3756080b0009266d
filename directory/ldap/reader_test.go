/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ldap

import (
	"context"
	"fmt"
	"strings"
	"testing"

	goldap "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	bindErr  error
	results  map[string][]*goldap.Entry // keyed by a substring of the filter
	searches []*goldap.SearchRequest
	closed   int
}

func (f *fakeConn) Bind(string, string) error { return f.bindErr }

func (f *fakeConn) SearchWithPaging(req *goldap.SearchRequest, _ uint32) (*goldap.SearchResult, error) {
	f.searches = append(f.searches, req)
	for marker, entries := range f.results {
		if strings.Contains(req.Filter, marker) {
			return &goldap.SearchResult{Entries: entries}, nil
		}
	}
	return &goldap.SearchResult{}, nil
}

func newTestReader(t *testing.T, fc *fakeConn) *Reader {
	t.Helper()
	r, err := New(Config{
		URI:         "ldaps://corp.example.com",
		UsersOU:     "OU=Users,DC=corp,DC=example,DC=com",
		GroupsOU:    "OU=Groups,DC=corp,DC=example,DC=com",
		UsersFilter: "(department=research)",
		BindDN:      "CN=svc,DC=corp,DC=example,DC=com",
	}, nil)
	require.NoError(t, err)
	r.dial = func(context.Context) (conn, func(), error) {
		return fc, func() { fc.closed++ }, nil
	}
	return r
}

func TestReadUsers(t *testing.T) {
	fc := &fakeConn{results: map[string][]*goldap.Entry{
		"(objectClass=user)": {
			goldap.NewEntry("CN=Alice,OU=Users,DC=corp,DC=example,DC=com", map[string][]string{
				"sAMAccountName":     {"Alice"},
				"displayName":        {"Alice Liddell"},
				"mail":               {"alice@example.com"},
				"userAccountControl": {"512"},
				"loginShell":         {"/bin/bash"},
				"homeDirectory":      {"/home/alice"},
				"memberOf": {
					"CN=ops,OU=Groups,DC=corp,DC=example,DC=com",
					"CN=Domain Users,CN=Users,DC=corp,DC=example,DC=com",
				},
			}),
			goldap.NewEntry("CN=Bob,OU=Users,DC=corp,DC=example,DC=com", map[string][]string{
				"uid":                {"bob"},
				"sAMAccountName":     {"BOB.S"},
				"cn":                 {"Bob"},
				"userAccountControl": {"514"},
			}),
			goldap.NewEntry("CN=NoName,OU=Users,DC=corp,DC=example,DC=com", map[string][]string{}),
			goldap.NewEntry("CN=Posix Only,OU=Users,DC=corp,DC=example,DC=com", map[string][]string{"uid": {"posix"}}),
		},
	}}
	r := newTestReader(t, fc)

	users, err := r.ReadUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "Alice Liddell", users[0].DisplayName)
	assert.True(t, users[0].Enabled)
	assert.Equal(t, "/bin/bash", users[0].LoginShell)
	assert.Equal(t, "/home/alice", users[0].HomeDir)
	assert.Equal(t, []string{"ops"}, users[0].Groups, "memberOf outside the groups OU is ignored")

	assert.Equal(t, "bob.s", users[1].Username, "keyed on sAMAccountName, never uid")
	assert.Equal(t, "Bob", users[1].DisplayName)
	assert.False(t, users[1].Enabled)

	require.Len(t, fc.searches, 1)
	assert.Equal(t, "(&(objectClass=user)(department=research))", fc.searches[0].Filter)
	assert.Equal(t, 1, fc.closed)
}

func TestReadGroups(t *testing.T) {
	groupDN := "CN=eng (all),OU=Groups,DC=corp,DC=example,DC=com"
	fc := &fakeConn{results: map[string][]*goldap.Entry{
		"(objectClass=group)": {
			goldap.NewEntry(groupDN, map[string][]string{"cn": {"eng (all)"}}),
		},
		"memberOf=": {
			goldap.NewEntry("CN=Alice,OU=Users,DC=corp,DC=example,DC=com", map[string][]string{"sAMAccountName": {"ALICE"}}),
		},
	}}
	r := newTestReader(t, fc)

	groups, err := r.ReadGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "eng (all)", groups[0].Name)
	assert.Equal(t, []string{"alice"}, groups[0].Members)

	require.Len(t, fc.searches, 2)
	memberSearch := fc.searches[1]
	assert.Contains(t, memberSearch.Filter, goldap.EscapeFilter(groupDN))
	assert.Equal(t, "OU=Users,DC=corp,DC=example,DC=com", memberSearch.BaseDN)
}

func TestReadGroupsReturnsMembersOutsideUsersOU(t *testing.T) {
	fc := &fakeConn{results: map[string][]*goldap.Entry{
		"(objectClass=group)": {
			goldap.NewEntry("CN=ops,OU=Groups,DC=corp,DC=example,DC=com", map[string][]string{"cn": {"ops"}}),
		},
		"memberOf=": {
			goldap.NewEntry("CN=Carol,OU=Contractors,DC=corp,DC=example,DC=com", map[string][]string{
				"sAMAccountName": {"Carol"},
				"displayName":    {"Carol C"},
				"mail":           {"carol@example.com"},
				"loginShell":     {"/bin/zsh"},
			}),
		},
	}}
	r := newTestReader(t, fc)
	r.cfg.BaseDN = "DC=corp,DC=example,DC=com"

	groups, err := r.ReadGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Accounts, 1)

	carol := groups[0].Accounts[0]
	assert.Equal(t, "carol", carol.Username)
	assert.Equal(t, "Carol C", carol.DisplayName)
	assert.Equal(t, "carol@example.com", carol.Email)
	assert.Equal(t, "/bin/zsh", carol.LoginShell)
	assert.True(t, carol.Enabled)
	assert.Equal(t, "DC=corp,DC=example,DC=com", fc.searches[1].BaseDN)
}

func TestBindFailureFailsRead(t *testing.T) {
	r := newTestReader(t, &fakeConn{bindErr: fmt.Errorf("invalid credentials")})

	_, err := r.ReadUsers(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter(""))
	assert.NoError(t, ValidateFilter("(sAMAccountName=*)"))
	assert.Error(t, ValidateFilter("sAMAccountName=*"))
	assert.Error(t, ValidateFilter("(sAMAccountName=*"))
	assert.Error(t, ValidateFilter("(&(cn=a)"))

	_, err := New(Config{UsersFilter: "objectClass=person"}, nil)
	assert.Error(t, err)
}

func TestEnabled(t *testing.T) {
	assert.True(t, enabled(""))
	assert.True(t, enabled("512"))
	assert.False(t, enabled("514"))
	assert.True(t, enabled("garbage"))
}
