/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suparena/dirsync"
	"github.com/suparena/dirsync/controller"
	"github.com/suparena/dirsync/errors"
	"github.com/suparena/dirsync/reconcile"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation to completion",
		Long: `Run one reconciliation: read the directory, diff it against the identity
store and apply the delta. An interrupt requests a cooperative stop; the run
halts after the write in flight.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer syncLogger(a.logger)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			stopOnSignal(ctx, a)

			summary, err := a.ctrl.Start(ctx)
			if err != nil {
				return runError(err)
			}
			return opts.printer(cmd).print(summary, func(w io.Writer) { printSummary(w, summary) })
		},
	}
}

// stopOnSignal turns SIGINT/SIGTERM into a stop request for the active run.
func stopOnSignal(ctx context.Context, a *app) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, stopping run", zap.String("signal", sig.String()))
			if _, _, err := a.ctrl.Stop(context.WithoutCancel(ctx)); err != nil {
				a.logger.Error("stop request failed", zap.Error(err))
			}
		case <-ctx.Done():
		}
	}()
}

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(opts *RootOptions) *cobra.Command {
	var eventPath string

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Handle a scheduler event",
		Long: `Handle a scheduler event read from --event (or stdin). Only events whose
detail-type is "Scheduled Event" start a run. A run already in progress or a
missing directory configuration is logged and exits successfully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readEvent(cmd, eventPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "read event", err)
			}
			trigger, err := controller.ParseTrigger(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "parse event", err)
			}

			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer syncLogger(a.logger)

			summary, err := a.ctrl.HandleTrigger(cmd.Context(), trigger)
			if err != nil {
				if errors.IsValidationError(err) {
					return WrapExitError(ExitCommandError, "rejected event", err)
				}
				return runError(err)
			}
			if summary == nil {
				return opts.printer(cmd).print(map[string]string{"status": "skipped"}, func(w io.Writer) {
					fmt.Fprintln(w, "Skipped: no run started")
				})
			}
			return opts.printer(cmd).print(summary, func(w io.Writer) { printSummary(w, *summary) })
		},
	}

	cmd.Flags().StringVar(&eventPath, "event", "-", "path to the event JSON, - for stdin")
	return cmd
}

func readEvent(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

// NewStopCommand creates the stop command.
func NewStopCommand(opts *RootOptions) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Request the active run to stop",
		Long: `Mark the active run STOPPING and print its run token. With --wait, poll
until the run has released the lock, up to teardown.attempts polls spaced by
teardown.interval. Running out of attempts is reported but not an error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer syncLogger(a.logger)

			result := map[string]any{"stopped": false}
			if wait {
				token, err := a.terminator.Terminate(cmd.Context())
				switch {
				case errors.IsKind(err, errors.KindTerminationTimeout):
					a.logger.Warn("teardown incomplete", zap.Error(err))
					result["runToken"] = token
					result["terminated"] = false
					result["error"] = err.Error()
				case err != nil:
					return WrapExitError(ExitFailure, "stop", err)
				default:
					result["runToken"] = token
					result["stopped"] = token != ""
					result["terminated"] = true
				}
			} else {
				token, ok, err := a.ctrl.Stop(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "stop", err)
				}
				result["runToken"] = token
				result["stopped"] = ok
			}

			return opts.printer(cmd).print(result, func(w io.Writer) {
				token, _ := result["runToken"].(string)
				switch {
				case token == "" && result["terminated"] == false:
					fmt.Fprintf(w, "Stop request failed: %s\n", result["error"])
				case token == "":
					fmt.Fprintln(w, "No run in progress")
				case result["terminated"] == false:
					fmt.Fprintf(w, "Run %s did not stop in time\n", token)
				default:
					fmt.Fprintf(w, "Stop requested for run %s\n", token)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the run to terminate")
	return cmd
}

// NewStatusCommand creates the status command.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the run lock state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer syncLogger(a.logger)

			state, err := a.ctrl.Status(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "status", err)
			}
			return opts.printer(cmd).print(state, func(w io.Writer) {
				fmt.Fprintf(w, "Status: %s\n", state.Status)
				if state.RunToken != "" {
					fmt.Fprintf(w, "Run: %s (started %s)\n", state.RunToken, state.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
				}
				if state.LastRunToken != "" {
					fmt.Fprintf(w, "Last run: %s\n", state.LastRunToken)
				}
			})
		},
	}
}

// NewReleaseCommand creates the release command.
func NewReleaseCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "release",
		Short: "Force release the run lock",
		Long: `Clear the run lock regardless of its holder. Use only when the process
that held it is known to be gone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer syncLogger(a.logger)

			token, err := a.ctrl.ForceRelease(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "release", err)
			}
			return opts.printer(cmd).print(map[string]string{"releasedRunToken": token}, func(w io.Writer) {
				if token == "" {
					fmt.Fprintln(w, "Lock was not held")
					return
				}
				fmt.Fprintf(w, "Released run %s\n", token)
			})
		},
	}
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer syncLogger(a.logger)

			runs, err := a.ctrl.History(cmd.Context(), limit)
			if err != nil {
				return WrapExitError(ExitFailure, "history", err)
			}
			return opts.printer(cmd).print(runs, func(w io.Writer) {
				for _, r := range runs {
					fmt.Fprintf(w, "%s  %-9s  %-9s  ok=%d failed=%d skipped=%d  %s\n",
						r.StartedAt, r.Status, r.Trigger, r.Succeeded, r.Failed, r.Skipped, r.RunToken)
				}
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := dirsync.GetVersionInfo()
			return opts.printer(cmd).print(info, func(w io.Writer) {
				fmt.Fprintf(w, "adsync version %s\n", info.Version)
				fmt.Fprintf(w, "Git commit: %s\n", info.GitCommit)
				fmt.Fprintf(w, "Build date: %s\n", info.BuildDate)
				fmt.Fprintf(w, "Go version: %s\n", info.GoVersion)
			})
		},
	}
}

// runError maps a run failure to an exit code.
func runError(err error) error {
	switch errors.KindOf(err) {
	case errors.KindAlreadyRunning:
		return WrapExitError(ExitBusy, "run", err)
	case errors.KindConfigurationMissing:
		return WrapExitError(ExitCommandError, "run", err)
	default:
		return WrapExitError(ExitFailure, "run", err)
	}
}

func printSummary(w io.Writer, s reconcile.Summary) {
	fmt.Fprintf(w, "Run %s\n", s.RunToken)
	fmt.Fprintf(w, "  succeeded: %d\n  failed: %d\n  skipped: %d\n", s.Succeeded, s.Failed, s.Skipped)
	if s.EventFailures > 0 {
		fmt.Fprintf(w, "  event failures: %d\n", s.EventFailures)
	}
	if s.Halted {
		fmt.Fprintln(w, "  halted before completion")
	}
	for _, f := range s.Failures {
		fmt.Fprintf(w, "  ! %s %s: %s\n", f.Action, f.Entity, f.Error)
	}
}
