/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/suparena/dirsync/config"
	"github.com/suparena/dirsync/logging"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
	Format     string
	Verbose    bool

	// newApp overrides the wiring (for testing).
	newApp appFactory
}

// NewRootCommand creates the root command of the adsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adsync",
		Short: "Reconcile the directory into the identity store",
		Long: `adsync synchronizes users, groups and memberships from LDAP / Active
Directory into the identity store. At most one reconciliation runs at a time
across the deployment.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats), nil)
			}
			return loadEnvFile(opts.EnvFile, cmd.Flags().Changed("env-file"))
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("DIRSYNC_CONFIG"), "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before the config")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewStopCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewReleaseCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadEnvFile loads a dotenv file. A missing default file is ignored.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return WrapExitError(ExitCommandError, "env file", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return WrapExitError(ExitCommandError, "env file", err)
	}
	return nil
}

// load reads the configuration and wires the process.
func (o *RootOptions) load(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}

	logCfg := cfg.Log
	if o.Verbose {
		logCfg.Level = "debug"
	}
	logger, err := logging.NewWithWriter(logCfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "init logger", err)
	}

	factory := o.newApp
	if factory == nil {
		factory = newApp
	}
	a, err := factory(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "init", err)
	}
	return a, nil
}

func (o *RootOptions) printer(cmd *cobra.Command) printer {
	return printer{format: o.Format, w: cmd.OutOrStdout()}
}

func syncLogger(l *zap.Logger) {
	_ = l.Sync()
}
