/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

// Package config loads dirsync configuration.
//
// Values come from Default, then an optional YAML file, then DIRSYNC_*
// environment variables. Directory settings may legitimately be absent
// until the directory is configured; Directory.Missing reports which.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/suparena/dirsync/directory/ldap"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/identity"
	"github.com/suparena/dirsync/logging"
	"github.com/suparena/dirsync/reconcile"
	"github.com/suparena/dirsync/runlock"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DIRSYNC_"

// Config is the complete process configuration.
type Config struct {
	Directory DirectoryConfig `yaml:"directory"`
	Store     StoreConfig     `yaml:"store"`
	Lock      LockConfig      `yaml:"lock"`
	Events    EventsConfig    `yaml:"events"`
	Sync      SyncConfig      `yaml:"sync"`
	Teardown  TeardownConfig  `yaml:"teardown"`
	Log       logging.Config  `yaml:"log"`
}

// DirectoryConfig holds the directory connection settings.
type DirectoryConfig struct {
	URI          string `yaml:"uri"`
	BaseDN       string `yaml:"base_dn"`
	UsersOU      string `yaml:"users_ou"`
	GroupsOU     string `yaml:"groups_ou"`
	// UsersFilter and GroupsFilter narrow the object class searches.
	UsersFilter  string `yaml:"users_filter"`
	GroupsFilter string `yaml:"groups_filter"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	SudoersGroup string `yaml:"sudoers_group"`

	// SnapshotFile replaces the LDAP connection with a YAML snapshot.
	SnapshotFile string `yaml:"snapshot_file"`

	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StoreConfig locates the identity store table.
type StoreConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Table     string `yaml:"table"`
	LockTable string `yaml:"lock_table"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// LockConfig tunes the run lock.
type LockConfig struct {
	Key               string        `yaml:"key"`
	LeaseTTL          time.Duration `yaml:"lease_ttl"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// EventsConfig selects the change event sink. An empty QueueURL keeps events
// in memory.
type EventsConfig struct {
	QueueURL string `yaml:"queue_url"`
}

// SyncConfig scopes what a run owns.
type SyncConfig struct {
	IdentitySource string   `yaml:"identity_source"`
	ProtectedUsers []string `yaml:"protected_users"`
	UIDBase        int64    `yaml:"uid_base"`
	GIDBase        int64    `yaml:"gid_base"`
}

// TeardownConfig bounds the wait for a stopped run.
type TeardownConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the configuration used before the file and environment
// are applied. Directory connection settings have no defaults.
func Default() *Config {
	return &Config{
		Directory: DirectoryConfig{
			PageSize: ldap.DefaultPageSize,
			Timeout:  ldap.DefaultTimeout,
		},
		Store: StoreConfig{
			Region: "us-east-1",
		},
		Lock: LockConfig{
			Key:               runlock.DefaultKey,
			HeartbeatInterval: runlock.DefaultHeartbeatInterval,
		},
		Sync: SyncConfig{
			IdentitySource: identity.DefaultIdentitySource,
			ProtectedUsers: []string{reconcile.DefaultProtectedUser},
			UIDBase:        10000,
			GIDBase:        10000,
		},
		Teardown: TeardownConfig{
			Attempts: 10,
			Interval: 10 * time.Second,
		},
		Log: logging.Config{Level: "info"},
	}
}

// Load builds the configuration from path (skipped when empty) and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays DIRSYNC_* variables, e.g. DIRSYNC_DIRECTORY_URI.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"DIRECTORY_URI":           &c.Directory.URI,
		"DIRECTORY_BASE_DN":       &c.Directory.BaseDN,
		"DIRECTORY_USERS_OU":      &c.Directory.UsersOU,
		"DIRECTORY_GROUPS_OU":     &c.Directory.GroupsOU,
		"DIRECTORY_USERS_FILTER":  &c.Directory.UsersFilter,
		"DIRECTORY_GROUPS_FILTER": &c.Directory.GroupsFilter,
		"DIRECTORY_BIND_DN":       &c.Directory.BindDN,
		"DIRECTORY_BIND_PASSWORD": &c.Directory.BindPassword,
		"DIRECTORY_SUDOERS_GROUP": &c.Directory.SudoersGroup,
		"DIRECTORY_SNAPSHOT_FILE": &c.Directory.SnapshotFile,
		"STORE_REGION":            &c.Store.Region,
		"STORE_ENDPOINT":          &c.Store.Endpoint,
		"STORE_TABLE":             &c.Store.Table,
		"STORE_LOCK_TABLE":        &c.Store.LockTable,
		"STORE_ACCESS_KEY":        &c.Store.AccessKey,
		"STORE_SECRET_KEY":        &c.Store.SecretKey,
		"LOCK_KEY":                &c.Lock.Key,
		"EVENTS_QUEUE_URL":        &c.Events.QueueURL,
		"SYNC_IDENTITY_SOURCE":    &c.Sync.IdentitySource,
		"LOG_LEVEL":               &c.Log.Level,
	}
	durations := map[string]*time.Duration{
		"DIRECTORY_TIMEOUT":       &c.Directory.Timeout,
		"LOCK_LEASE_TTL":          &c.Lock.LeaseTTL,
		"LOCK_HEARTBEAT_INTERVAL": &c.Lock.HeartbeatInterval,
		"TEARDOWN_INTERVAL":       &c.Teardown.Interval,
	}
	ints := map[string]*int{
		"DIRECTORY_PAGE_SIZE": &c.Directory.PageSize,
		"TEARDOWN_ATTEMPTS":   &c.Teardown.Attempts,
	}
	int64s := map[string]*int64{
		"SYNC_UID_BASE": &c.Sync.UIDBase,
		"SYNC_GID_BASE": &c.Sync.GIDBase,
	}

	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	for name, dst := range durations {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = d
		}
	}
	for name, dst := range ints {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	for name, dst := range int64s {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}
	if v, ok := lookup(EnvPrefix + "SYNC_PROTECTED_USERS"); ok {
		c.Sync.ProtectedUsers = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "LOG_DEV"); ok {
		c.Log.Dev = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Missing lists the required directory settings that are not set. A
// snapshot file stands in for the LDAP connection settings.
func (d DirectoryConfig) Missing() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if d.SnapshotFile == "" {
		check("directory.uri", d.URI)
		check("directory.base_dn", d.BaseDN)
		check("directory.users_ou", d.UsersOU)
		check("directory.groups_ou", d.GroupsOU)
		check("directory.bind_dn", d.BindDN)
	}
	check("directory.sudoers_group", d.SudoersGroup)
	return missing
}

// RequireDirectory fails with errors.KindConfigurationMissing when any
// required directory setting is absent.
func (d DirectoryConfig) RequireDirectory() error {
	if missing := d.Missing(); len(missing) > 0 {
		return errors.New(errors.KindConfigurationMissing, "config",
			"directory configuration missing: "+strings.Join(missing, ", "))
	}
	return nil
}

// Validate rejects malformed values. Absent directory settings are not an
// error here; see Missing.
func (c *Config) Validate() error {
	var errs []error

	if c.Directory.UsersFilter != "" {
		if err := ldap.ValidateFilter(c.Directory.UsersFilter); err != nil {
			errs = append(errs, fmt.Errorf("directory.users_filter: %w", err))
		}
	}
	if c.Directory.GroupsFilter != "" {
		if err := ldap.ValidateFilter(c.Directory.GroupsFilter); err != nil {
			errs = append(errs, fmt.Errorf("directory.groups_filter: %w", err))
		}
	}
	if c.Directory.PageSize < 0 {
		errs = append(errs, fmt.Errorf("directory.page_size must not be negative"))
	}
	if c.Store.Table == "" {
		errs = append(errs, fmt.Errorf("store.table is required"))
	}
	if c.Lock.Key == "" {
		errs = append(errs, fmt.Errorf("lock.key is required"))
	}
	if c.Teardown.Attempts < 1 {
		errs = append(errs, fmt.Errorf("teardown.attempts must be at least 1"))
	}

	for name, d := range map[string]time.Duration{
		"directory.timeout":       c.Directory.Timeout,
		"lock.lease_ttl":          c.Lock.LeaseTTL,
		"lock.heartbeat_interval": c.Lock.HeartbeatInterval,
		"teardown.interval":       c.Teardown.Interval,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.Lock.LeaseTTL > 0 && c.Lock.HeartbeatInterval >= c.Lock.LeaseTTL {
		errs = append(errs, fmt.Errorf("lock.heartbeat_interval must be shorter than lock.lease_ttl"))
	}

	return stderrors.Join(errs...)
}

// LDAP converts the directory section into reader settings.
func (d DirectoryConfig) LDAP() ldap.Config {
	return ldap.Config{
		URI:          d.URI,
		BaseDN:       d.BaseDN,
		UsersOU:      d.UsersOU,
		GroupsOU:     d.GroupsOU,
		UsersFilter:  d.UsersFilter,
		GroupsFilter: d.GroupsFilter,
		BindDN:       d.BindDN,
		BindPassword: d.BindPassword,
		PageSize:     uint32(d.PageSize),
		Timeout:      d.Timeout,
	}
}
