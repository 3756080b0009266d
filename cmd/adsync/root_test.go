/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suparena/dirsync"
	"github.com/suparena/dirsync/config"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/events"
	"github.com/suparena/dirsync/identity"
	"github.com/suparena/dirsync/runlock"
)

const snapshotYAML = `
users:
  - username: Alice
    display_name: Alice
    email: alice@example.com
    enabled: true
  - username: bob
    enabled: true
groups:
  - name: sudoers
    members: [alice]
`

type cli struct {
	t        *testing.T
	dir      string
	config   string
	stores   *dirsync.Stores
	recorder *events.Recorder
}

func newCLI(t *testing.T, withDirectory bool) *cli {
	t.Helper()
	dir := t.TempDir()
	snapshot := filepath.Join(dir, "snapshot.yaml")
	require.NoError(t, os.WriteFile(snapshot, []byte(snapshotYAML), 0o600))

	body := "store:\n  table: identity\nteardown:\n  attempts: 2\n  interval: 0s\n"
	if withDirectory {
		body += "directory:\n  snapshot_file: " + snapshot + "\n  sudoers_group: sudoers\n"
	}
	cfgPath := filepath.Join(dir, "dirsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	return &cli{
		t:        t,
		dir:      dir,
		config:   cfgPath,
		stores:   dirsync.NewMemoryStores(2000),
		recorder: events.NewRecorder(),
	}
}

// exec runs one command against the shared in-memory stores.
func (c *cli) exec(stdin string, args ...string) (string, error) {
	c.t.Helper()
	opts := &RootOptions{
		newApp: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
			return assemble(cfg, logger, c.stores, c.recorder)
		},
	}
	cmd := newRootCommand(opts)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", c.config, "--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	c := newCLI(t, true)

	out, err := c.exec("", "run", "--format", "json")
	require.NoError(t, err)

	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.EqualValues(t, 3, summary["succeeded"])

	sudoers, err := c.stores.Groups.GetOne(context.Background(), "sudoers")
	require.NoError(t, err)
	assert.Equal(t, identity.RoleAdmin, sudoers.Role)
	assert.Len(t, c.recorder.Events(), 3)

	out, err = c.exec("", "run")
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded: 0")

	out, err = c.exec("", "history", "--format", "json")
	require.NoError(t, err)
	var runs []identity.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &runs))
	assert.Len(t, runs, 2)

	out, err = c.exec("", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: IDLE")
}

func TestRunWithoutDirectory(t *testing.T) {
	c := newCLI(t, false)

	_, err := c.exec("", "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, errors.IsKind(err, errors.KindConfigurationMissing))

	out, err := c.exec(`{"detail-type":"Scheduled Event"}`, "trigger")
	require.NoError(t, err)
	assert.Contains(t, out, "Skipped")
}

func TestTriggerCommand(t *testing.T) {
	c := newCLI(t, true)

	_, err := c.exec(`{"detail-type":"AWS API Call via CloudTrail"}`, "trigger")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Zero(t, len(c.recorder.Events()))

	eventPath := filepath.Join(c.dir, "event.json")
	require.NoError(t, os.WriteFile(eventPath, []byte(`{"detail-type":"Scheduled Event","source":"aws.events"}`), 0o600))
	out, err := c.exec("", "trigger", "--event", eventPath)
	require.NoError(t, err)
	assert.Contains(t, out, "succeeded: 3")

	_, err = c.exec("not json", "trigger")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestStopAndRelease(t *testing.T) {
	c := newCLI(t, true)
	ctx := context.Background()

	holder := runlock.New(c.stores.RunState, runlock.WithTokenSource(func() string { return "crashed-run" }))
	_, err := holder.TryAcquire(ctx)
	require.NoError(t, err)

	_, err = c.exec("", "run")
	require.Error(t, err)
	assert.Equal(t, ExitBusy, GetExitCode(err))

	out, err := c.exec("", "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop requested for run crashed-run")

	out, err = c.exec("", "stop", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Run crashed-run did not stop in time")

	out, err = c.exec("", "release")
	require.NoError(t, err)
	assert.Contains(t, out, "Released run crashed-run")

	out, err = c.exec("", "stop", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "No run in progress")

	_, err = c.exec("", "run")
	require.NoError(t, err)
}

type unavailableBackend struct{ runlock.Backend }

func (unavailableBackend) Load(context.Context, string) (runlock.State, bool, error) {
	return runlock.State{}, false, fmt.Errorf("lock table unavailable")
}

func TestStopWaitSurvivesBackendFailure(t *testing.T) {
	c := newCLI(t, true)
	c.stores.RunState = unavailableBackend{c.stores.RunState}

	out, err := c.exec("", "stop", "--wait")
	require.NoError(t, err)
	assert.Contains(t, out, "Stop request failed")
	assert.Contains(t, out, "lock table unavailable")

	_, err = c.exec("", "stop")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestVersionAndFormat(t *testing.T) {
	c := newCLI(t, true)

	out, err := c.exec("", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "adsync version "+dirsync.Version)

	_, err = c.exec("", "version", "--format", "yaml")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
