/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package directory

import (
	"context"
	"sort"
	"strings"

	"github.com/go-openapi/strfmt"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/identity"
)

// Reader reads the complete current state of the directory. Both calls must
// fail on connectivity or authentication errors rather than return partial data.
type Reader interface {
	ReadUsers(ctx context.Context) ([]identity.DirectoryUser, error)
	ReadGroups(ctx context.Context) ([]identity.DirectoryGroup, error)
}

// Snapshot is one normalized read of the directory.
type Snapshot struct {
	Users  []identity.DirectoryUser
	Groups []identity.DirectoryGroup
}

// ReadSnapshot reads users and groups from r and normalizes them.
// Any read failure is reported as errors.KindDirectoryReadFailure.
func ReadSnapshot(ctx context.Context, r Reader, logger *zap.Logger) (Snapshot, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	groups, err := r.ReadGroups(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindDirectoryReadFailure, "read groups", err)
	}
	users, err := r.ReadUsers(ctx)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindDirectoryReadFailure, "read users", err)
	}

	snap := Normalize(users, groups, logger)
	logger.Info("directory snapshot read",
		zap.Int("users", len(snap.Users)),
		zap.Int("groups", len(snap.Groups)))
	return snap, nil
}

// NormalizeUsername trims and lower-cases a directory account name.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Normalize cleans a raw read: usernames are lower-cased, duplicates merged,
// invalid emails blanked, and memberships cross-filled so that a user lists a
// group exactly when the group lists the user. Members found only through a
// group join the snapshot as users; the first entry read for a username wins.
// Memberships referring to groups absent from the snapshot are dropped.
// Output is sorted by key.
func Normalize(users []identity.DirectoryUser, groups []identity.DirectoryGroup, logger *zap.Logger) Snapshot {
	if logger == nil {
		logger = zap.NewNop()
	}

	userByName := make(map[string]*identity.DirectoryUser, len(users))
	addUser := func(u identity.DirectoryUser) *identity.DirectoryUser {
		name := NormalizeUsername(u.Username)
		if name == "" {
			logger.Warn("skipping directory user without a username")
			return nil
		}
		existing, ok := userByName[name]
		if !ok {
			email := strings.TrimSpace(u.Email)
			if email != "" && !strfmt.IsEmail(email) {
				logger.Warn("blanking invalid email", zap.String("username", name), zap.String("email", email))
				email = ""
			}
			existing = &identity.DirectoryUser{
				Username:    name,
				DisplayName: strings.TrimSpace(u.DisplayName),
				Email:       email,
				Enabled:     u.Enabled,
				LoginShell:  strings.TrimSpace(u.LoginShell),
				HomeDir:     strings.TrimSpace(u.HomeDir),
			}
			userByName[name] = existing
		}
		existing.Groups = append(existing.Groups, u.Groups...)
		return existing
	}
	for _, u := range users {
		addUser(u)
	}

	groupByName := make(map[string]*identity.DirectoryGroup, len(groups))
	for _, g := range groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			logger.Warn("skipping directory group without a name")
			continue
		}
		existing, ok := groupByName[name]
		if !ok {
			existing = &identity.DirectoryGroup{Name: name}
			groupByName[name] = existing
		}
		for _, a := range g.Accounts {
			if u := addUser(a); u != nil {
				existing.Members = append(existing.Members, u.Username)
			}
		}
		for _, m := range g.Members {
			m = NormalizeUsername(m)
			if m == "" {
				continue
			}
			if _, ok := userByName[m]; !ok {
				logger.Debug("adding user found through group membership",
					zap.String("username", m), zap.String("group", name))
				userByName[m] = &identity.DirectoryUser{Username: m, Enabled: true}
			}
			existing.Members = append(existing.Members, m)
		}
	}

	// Cross-fill in both directions, then dedupe.
	for _, u := range userByName {
		for _, g := range u.Groups {
			if group, ok := groupByName[strings.TrimSpace(g)]; ok {
				group.Members = append(group.Members, u.Username)
			}
		}
	}
	for _, g := range groupByName {
		for _, m := range g.Members {
			if u, ok := userByName[m]; ok {
				u.Groups = append(u.Groups, g.Name)
			}
		}
	}

	snap := Snapshot{
		Users:  make([]identity.DirectoryUser, 0, len(userByName)),
		Groups: make([]identity.DirectoryGroup, 0, len(groupByName)),
	}
	for _, u := range userByName {
		var known []string
		for _, g := range identity.SortedSet(u.Groups) {
			if _, ok := groupByName[g]; ok {
				known = append(known, g)
			}
		}
		u.Groups = identity.SortedSet(known)
		snap.Users = append(snap.Users, *u)
	}
	for _, g := range groupByName {
		g.Members = identity.SortedSet(g.Members)
		snap.Groups = append(snap.Groups, *g)
	}

	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Username < snap.Users[j].Username })
	sort.Slice(snap.Groups, func(i, j int) bool { return snap.Groups[i].Name < snap.Groups[j].Name })
	return snap
}

// Static is a Reader over fixed data. Err, when set, fails both reads.
type Static struct {
	Users  []identity.DirectoryUser
	Groups []identity.DirectoryGroup
	Err    error
}

func (s *Static) ReadUsers(context.Context) ([]identity.DirectoryUser, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]identity.DirectoryUser(nil), s.Users...), nil
}

func (s *Static) ReadGroups(context.Context) ([]identity.DirectoryGroup, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]identity.DirectoryGroup(nil), s.Groups...), nil
}
