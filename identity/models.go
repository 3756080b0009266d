/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package identity

import (
	"slices"
	"strings"
)

// Entity types used for keys, events and the type registry.
const (
	EntityUser  = "USER"
	EntityGroup = "GROUP"
	EntityRun   = "RUN"
)

// Roles assigned at creation time.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// DefaultIdentitySource marks records owned by the directory sync.
const DefaultIdentitySource = "SSO"

// DirectoryUser is a user as read from the directory. Never persisted.
type DirectoryUser struct {
	Username    string   `yaml:"username" json:"username"`
	DisplayName string   `yaml:"display_name" json:"displayName"`
	Email       string   `yaml:"email" json:"email"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
	LoginShell  string   `yaml:"login_shell" json:"loginShell"`
	HomeDir     string   `yaml:"home_dir" json:"homeDir"`
	Groups      []string `yaml:"groups" json:"groups"`
}

// DirectoryGroup is a group as read from the directory. Never persisted.
//
// Accounts holds the full entries of members found through the group when the
// reader has them. Those users are part of the snapshot even when they live
// outside the users OU.
type DirectoryGroup struct {
	Name     string          `yaml:"name" json:"name"`
	Members  []string        `yaml:"members" json:"members"`
	Accounts []DirectoryUser `yaml:"-" json:"-"`
}

// StoreUser is the durable user record. UID, Role, IdentitySource and
// CreatedOn are managed internally and survive every directory update.
type StoreUser struct {
	Username       string   `dynamodbav:"username" json:"username"`
	DisplayName    string   `dynamodbav:"display_name" json:"displayName"`
	Email          string   `dynamodbav:"email" json:"email"`
	Enabled        bool     `dynamodbav:"enabled" json:"enabled"`
	LoginShell     string   `dynamodbav:"login_shell" json:"loginShell"`
	HomeDir        string   `dynamodbav:"home_dir" json:"homeDir"`
	Groups         []string `dynamodbav:"additional_groups" json:"additionalGroups"`
	UID            int64    `dynamodbav:"uid" json:"uid"`
	Role           string   `dynamodbav:"role" json:"role"`
	IdentitySource string   `dynamodbav:"identity_source" json:"identitySource"`
	Version        int64    `dynamodbav:"version" json:"version"`
	CreatedOn      int64    `dynamodbav:"created_on" json:"createdOn"`
	UpdatedOn      int64    `dynamodbav:"updated_on" json:"updatedOn"`
	SyncedOn       int64    `dynamodbav:"synced_on" json:"syncedOn"`
}

func (u StoreUser) StoreKey() string { return u.Username }
func (u StoreUser) StoreVersion() int64 { return u.Version }
func (u StoreUser) EntityType() string { return EntityUser }
func (u StoreUser) WithVersion(v int64) StoreUser {
	u.Version = v
	return u
}

// StoreGroup is the durable group record. GID, Role, IdentitySource and
// CreatedOn are managed internally.
type StoreGroup struct {
	GroupName      string   `dynamodbav:"group_name" json:"groupName"`
	Members        []string `dynamodbav:"members" json:"members"`
	GID            int64    `dynamodbav:"gid" json:"gid"`
	Role           string   `dynamodbav:"role" json:"role"`
	IdentitySource string   `dynamodbav:"identity_source" json:"identitySource"`
	Version        int64    `dynamodbav:"version" json:"version"`
	CreatedOn      int64    `dynamodbav:"created_on" json:"createdOn"`
	UpdatedOn      int64    `dynamodbav:"updated_on" json:"updatedOn"`
	SyncedOn       int64    `dynamodbav:"synced_on" json:"syncedOn"`
}

func (g StoreGroup) StoreKey() string { return g.GroupName }
func (g StoreGroup) StoreVersion() int64 { return g.Version }
func (g StoreGroup) EntityType() string { return EntityGroup }
func (g StoreGroup) WithVersion(v int64) StoreGroup {
	g.Version = v
	return g
}

// SameDirectoryFields reports whether u already carries the directory-managed
// fields of d. Internally managed fields are ignored.
func (u StoreUser) SameDirectoryFields(d DirectoryUser) bool {
	return u.DisplayName == d.DisplayName &&
		u.Email == d.Email &&
		u.Enabled == d.Enabled &&
		u.LoginShell == d.LoginShell &&
		u.HomeDir == d.HomeDir &&
		SameSet(u.Groups, d.Groups)
}

// ApplyDirectory returns a copy of u with the directory-managed fields of d.
func (u StoreUser) ApplyDirectory(d DirectoryUser) StoreUser {
	u.DisplayName = d.DisplayName
	u.Email = d.Email
	u.Enabled = d.Enabled
	u.LoginShell = d.LoginShell
	u.HomeDir = d.HomeDir
	u.Groups = SortedSet(d.Groups)
	return u
}

// SameMembers reports whether g has exactly the given members.
func (g StoreGroup) SameMembers(members []string) bool {
	return SameSet(g.Members, members)
}

// SortedSet returns a sorted copy of values without duplicates or blanks.
// The result is never nil so stored lists marshal as empty lists.
func SortedSet(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SameSet compares two string lists as sets.
func SameSet(a, b []string) bool {
	return slices.Equal(SortedSet(a), SortedSet(b))
}
