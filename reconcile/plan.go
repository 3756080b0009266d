/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package reconcile

import (
	"sort"

	"github.com/suparena/dirsync/directory"
	"github.com/suparena/dirsync/identity"
)

// DefaultProtectedUser is never updated or deleted by a run.
const DefaultProtectedUser = "clusteradmin"

// Policy scopes what a run may touch.
type Policy struct {
	// IdentitySource marks store records owned by the directory sync.
	IdentitySource string
	// ProtectedUsers are never updated or deleted.
	ProtectedUsers []string
	// SudoersGroup is created with the admin role.
	SudoersGroup string
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		IdentitySource: identity.DefaultIdentitySource,
		ProtectedUsers: []string{DefaultProtectedUser},
	}
}

func (p Policy) source() string {
	if p.IdentitySource == "" {
		return identity.DefaultIdentitySource
	}
	return p.IdentitySource
}

func (p Policy) protected() map[string]bool {
	out := make(map[string]bool, len(p.ProtectedUsers))
	for _, u := range p.ProtectedUsers {
		out[directory.NormalizeUsername(u)] = true
	}
	return out
}

// Action is the kind of write an operation performs.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) eventType() identity.EventType {
	switch a {
	case ActionCreate:
		return identity.EventCreated
	case ActionUpdate:
		return identity.EventUpdated
	default:
		return identity.EventDeleted
	}
}

// UserOp is one planned user write. Current is the store record read at
// the start of the run, nil for a Create.
type UserOp struct {
	Action  Action
	Desired identity.DirectoryUser
	Current *identity.StoreUser
}

// Key returns the username the operation targets.
func (o UserOp) Key() string {
	if o.Current != nil {
		return o.Current.Username
	}
	return o.Desired.Username
}

// GroupOp is one planned group write.
type GroupOp struct {
	Action  Action
	Name    string
	Members []string
	Current *identity.StoreGroup
}

// Conflict is a directory entity the run will not touch.
type Conflict struct {
	Entity identity.EntityKey
	Reason string
}

// Plan holds the ordered operations of one run.
type Plan struct {
	UserCreates  []UserOp
	UserUpdates  []UserOp
	UserDeletes  []UserOp
	GroupCreates []GroupOp
	GroupUpdates []GroupOp
	GroupDeletes []GroupOp
	Conflicts    []Conflict
}

// Len is the number of writes in the plan.
func (p Plan) Len() int {
	return len(p.UserCreates) + len(p.UserUpdates) + len(p.UserDeletes) +
		len(p.GroupCreates) + len(p.GroupUpdates) + len(p.GroupDeletes)
}

// Empty reports whether the plan performs no writes.
func (p Plan) Empty() bool {
	return p.Len() == 0
}

// ComputePlan diffs a directory snapshot against the store records read at
// the start of the run. Only directory-managed fields are compared. Store
// records from another identity source are never touched, and a directory
// entity colliding with one becomes a Conflict. Group members that are not
// users of the snapshot are dropped. Every list is sorted by key.
func ComputePlan(snap directory.Snapshot, users []identity.StoreUser, groups []identity.StoreGroup, policy Policy) Plan {
	var plan Plan
	source := policy.source()
	protected := policy.protected()

	storeUsers := make(map[string]identity.StoreUser, len(users))
	for _, u := range users {
		storeUsers[u.Username] = u
	}
	dirUsers := make(map[string]bool, len(snap.Users))

	for _, d := range snap.Users {
		dirUsers[d.Username] = true
		if protected[d.Username] {
			continue
		}
		cur, ok := storeUsers[d.Username]
		switch {
		case !ok:
			plan.UserCreates = append(plan.UserCreates, UserOp{Action: ActionCreate, Desired: d})
		case cur.IdentitySource != source:
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Entity: identity.EntityKey{Type: identity.EntityUser, Key: d.Username},
				Reason: "store record owned by identity source " + cur.IdentitySource,
			})
		case !cur.SameDirectoryFields(d):
			cur := cur
			plan.UserUpdates = append(plan.UserUpdates, UserOp{Action: ActionUpdate, Desired: d, Current: &cur})
		}
	}
	for _, u := range users {
		if dirUsers[u.Username] || protected[u.Username] || u.IdentitySource != source {
			continue
		}
		u := u
		plan.UserDeletes = append(plan.UserDeletes, UserOp{Action: ActionDelete, Current: &u})
	}

	storeGroups := make(map[string]identity.StoreGroup, len(groups))
	for _, g := range groups {
		storeGroups[g.GroupName] = g
	}
	dirGroups := make(map[string]bool, len(snap.Groups))

	for _, d := range snap.Groups {
		dirGroups[d.Name] = true
		members := make([]string, 0, len(d.Members))
		for _, m := range d.Members {
			if dirUsers[m] {
				members = append(members, m)
			}
		}
		members = identity.SortedSet(members)

		cur, ok := storeGroups[d.Name]
		switch {
		case !ok:
			plan.GroupCreates = append(plan.GroupCreates, GroupOp{Action: ActionCreate, Name: d.Name, Members: members})
		case cur.IdentitySource != source:
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Entity: identity.EntityKey{Type: identity.EntityGroup, Key: d.Name},
				Reason: "store record owned by identity source " + cur.IdentitySource,
			})
		case !cur.SameMembers(members):
			cur := cur
			plan.GroupUpdates = append(plan.GroupUpdates, GroupOp{Action: ActionUpdate, Name: d.Name, Members: members, Current: &cur})
		}
	}
	for _, g := range groups {
		if dirGroups[g.GroupName] || g.IdentitySource != source {
			continue
		}
		g := g
		plan.GroupDeletes = append(plan.GroupDeletes, GroupOp{Action: ActionDelete, Name: g.GroupName, Current: &g})
	}

	sortUsers := func(ops []UserOp) {
		sort.Slice(ops, func(i, j int) bool { return ops[i].Key() < ops[j].Key() })
	}
	sortGroups := func(ops []GroupOp) {
		sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	}
	sortUsers(plan.UserCreates)
	sortUsers(plan.UserUpdates)
	sortUsers(plan.UserDeletes)
	sortGroups(plan.GroupCreates)
	sortGroups(plan.GroupUpdates)
	sortGroups(plan.GroupDeletes)
	sort.Slice(plan.Conflicts, func(i, j int) bool {
		return plan.Conflicts[i].Entity.String() < plan.Conflicts[j].Entity.String()
	})
	return plan
}
