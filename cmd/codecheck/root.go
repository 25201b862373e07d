// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/codecheck/pkg/logging"
	"github.com/AleutianAI/codecheck/services/codecheck/config"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// app carries state shared by subcommands after PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "codecheck",
		Short:         "Static validation of generated Python code",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(a),
		newCheckCmd(a),
		newRulesCmd(a),
		newAuditCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}

	// Commands other than serve log warnings and above unless --log-level is set.
	if cmd.Name() != "serve" && a.logLevel == "" && level < logging.LevelWarn {
		level = logging.LevelWarn
	}

	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "codecheck",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(a.logger.Slog())
	return nil
}

// validatorOptions builds the engine options shared by serve and check.
func (a *app) validatorOptions() (validate.Options, error) {
	catalog, err := config.LoadCatalog(a.cfg.Catalog.Path)
	if err != nil {
		return validate.Options{}, fmt.Errorf("load catalog: %w", err)
	}
	return validate.Options{
		Catalog:      catalog,
		Thresholds:   a.cfg.Thresholds,
		AuditTimeout: a.cfg.Audit.Timeout,
		Logger:       a.logger.Slog(),
	}, nil
}
