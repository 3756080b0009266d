/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package ldap

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	goldap "github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/directory"
	"github.com/suparena/dirsync/identity"
)

const (
	defaultUserFilter  = "(objectClass=user)"
	defaultGroupFilter = "(objectClass=group)"

	// accountDisable is the ACCOUNTDISABLE bit of userAccountControl.
	accountDisable = 0x2

	DefaultPageSize = 500
	DefaultTimeout  = 30 * time.Second
)

var userAttributes = []string{"sAMAccountName", "cn", "displayName", "mail", "userAccountControl", "loginShell", "homeDirectory", "memberOf"}
var groupAttributes = []string{"cn", "sAMAccountName"}

// Config holds the connection and search settings.
type Config struct {
	URI          string
	BaseDN       string
	UsersOU      string
	GroupsOU     string
	UsersFilter  string
	GroupsFilter string
	BindDN       string
	BindPassword string
	PageSize     uint32
	Timeout      time.Duration
}

// conn is the part of *goldap.Conn the reader needs.
type conn interface {
	Bind(username, password string) error
	SearchWithPaging(req *goldap.SearchRequest, pagingSize uint32) (*goldap.SearchResult, error)
}

type dialFunc func(ctx context.Context) (conn, func(), error)

// Reader reads users and groups from Active Directory.
type Reader struct {
	cfg    Config
	dial   dialFunc
	logger *zap.Logger
}

// New validates cfg and returns a Reader.
func New(cfg Config, logger *zap.Logger) (*Reader, error) {
	if err := ValidateFilter(cfg.UsersFilter); err != nil {
		return nil, fmt.Errorf("users filter: %w", err)
	}
	if err := ValidateFilter(cfg.GroupsFilter); err != nil {
		return nil, fmt.Errorf("groups filter: %w", err)
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Reader{cfg: cfg, logger: logger}
	r.dial = r.dialURL
	return r, nil
}

func (r *Reader) dialURL(ctx context.Context) (conn, func(), error) {
	c, err := goldap.DialURL(r.cfg.URI, goldap.DialWithDialer(&net.Dialer{Timeout: r.cfg.Timeout}))
	if err != nil {
		return nil, nil, err
	}
	c.SetTimeout(r.cfg.Timeout)
	return c, func() { c.Close() }, nil
}

// ValidateFilter rejects filters that are not parenthesised or do not compile.
// An empty filter is valid.
func ValidateFilter(filter string) error {
	if filter == "" {
		return nil
	}
	if !strings.HasPrefix(filter, "(") || !strings.HasSuffix(filter, ")") {
		return fmt.Errorf("invalid LDAP filter %q: filter must start with \"(\" and end with \")\"", filter)
	}
	if _, err := goldap.CompileFilter(filter); err != nil {
		return fmt.Errorf("invalid LDAP filter %q: %w", filter, err)
	}
	return nil
}

func combine(base, extra string) string {
	if extra == "" {
		return base
	}
	return "(&" + base + extra + ")"
}

func (r *Reader) session(ctx context.Context, fn func(conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, closeFn, err := r.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", r.cfg.URI, err)
	}
	defer closeFn()

	if err := c.Bind(r.cfg.BindDN, r.cfg.BindPassword); err != nil {
		return fmt.Errorf("bind as %s: %w", r.cfg.BindDN, err)
	}
	return fn(c)
}

func (r *Reader) search(c conn, base, filter string, attrs []string) ([]*goldap.Entry, error) {
	req := goldap.NewSearchRequest(
		base, goldap.ScopeWholeSubtree, goldap.NeverDerefAliases,
		0, 0, false, filter, attrs, nil,
	)
	res, err := c.SearchWithPaging(req, r.cfg.PageSize)
	if err != nil {
		return nil, fmt.Errorf("search %s %s: %w", base, filter, err)
	}
	return res.Entries, nil
}

// ReadUsers returns every user under the users OU with its group memberships.
func (r *Reader) ReadUsers(ctx context.Context) ([]identity.DirectoryUser, error) {
	var users []identity.DirectoryUser
	err := r.session(ctx, func(c conn) error {
		r.logger.Info("fetching LDAP users", zap.String("base", r.cfg.UsersOU))
		entries, err := r.search(c, r.cfg.UsersOU, combine(defaultUserFilter, r.cfg.UsersFilter), userAttributes)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if u, ok := r.convertUser(e); ok {
				users = append(users, u)
			}
		}
		return nil
	})
	return users, err
}

// ReadGroups returns every group under the groups OU with its members. Members
// are searched under the base DN, so the full entries of users outside the
// users OU come back in Accounts.
func (r *Reader) ReadGroups(ctx context.Context) ([]identity.DirectoryGroup, error) {
	var groups []identity.DirectoryGroup
	err := r.session(ctx, func(c conn) error {
		r.logger.Info("fetching LDAP groups", zap.String("base", r.cfg.GroupsOU))
		entries, err := r.search(c, r.cfg.GroupsOU, combine(defaultGroupFilter, r.cfg.GroupsFilter), groupAttributes)
		if err != nil {
			return err
		}

		memberBase := r.cfg.UsersOU
		if r.cfg.BaseDN != "" {
			memberBase = r.cfg.BaseDN
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			name := e.GetAttributeValue("cn")
			if name == "" {
				continue
			}
			filter := combine(defaultUserFilter, "(memberOf="+goldap.EscapeFilter(e.DN)+")")
			members, err := r.search(c, memberBase, combine(filter, r.cfg.UsersFilter), userAttributes)
			if err != nil {
				return err
			}
			g := identity.DirectoryGroup{Name: name}
			for _, m := range members {
				if u, ok := r.convertUser(m); ok {
					g.Members = append(g.Members, u.Username)
					g.Accounts = append(g.Accounts, u)
				}
			}
			groups = append(groups, g)
		}
		return nil
	})
	return groups, err
}

// convertUser keys the user on sAMAccountName. Entries without one are skipped.
func (r *Reader) convertUser(e *goldap.Entry) (identity.DirectoryUser, bool) {
	username := directory.NormalizeUsername(e.GetAttributeValue("sAMAccountName"))
	if username == "" {
		r.logger.Debug("skipping LDAP entry without sAMAccountName", zap.String("dn", e.DN))
		return identity.DirectoryUser{}, false
	}

	display := e.GetAttributeValue("displayName")
	if display == "" {
		display = e.GetAttributeValue("cn")
	}

	return identity.DirectoryUser{
		Username:    username,
		DisplayName: display,
		Email:       e.GetAttributeValue("mail"),
		Enabled:     enabled(e.GetAttributeValue("userAccountControl")),
		LoginShell:  e.GetAttributeValue("loginShell"),
		HomeDir:     e.GetAttributeValue("homeDirectory"),
		Groups:      r.groupNames(e.GetAttributeValues("memberOf")),
	}, true
}

// groupNames maps memberOf DNs under the groups OU to their common names.
func (r *Reader) groupNames(dns []string) []string {
	suffix := strings.ToLower(r.cfg.GroupsOU)
	var names []string
	for _, raw := range dns {
		if suffix != "" && !strings.HasSuffix(strings.ToLower(raw), suffix) {
			continue
		}
		dn, err := goldap.ParseDN(raw)
		if err != nil || len(dn.RDNs) == 0 || len(dn.RDNs[0].Attributes) == 0 {
			r.logger.Debug("ignoring unparsable memberOf", zap.String("dn", raw))
			continue
		}
		names = append(names, dn.RDNs[0].Attributes[0].Value)
	}
	return names
}

func enabled(userAccountControl string) bool {
	if userAccountControl == "" {
		return true
	}
	flags, err := strconv.ParseInt(userAccountControl, 10, 64)
	if err != nil {
		return true
	}
	return flags&accountDisable == 0
}
