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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/codecheck/pkg/ux"
	"github.com/AleutianAI/codecheck/pkg/validation"
	"github.com/AleutianAI/codecheck/services/codecheck/audit"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

func newAuditCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect stored validation audit records",
	}
	cmd.AddCommand(newAuditListCmd(a))
	return cmd
}

func newAuditListCmd(a *app) *cobra.Command {
	var (
		path   string
		actor  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.cfg.Audit.Path
			}
			if path == "" {
				return errors.New("no audit path: set audit.path, CODECHECK_AUDIT_PATH or --path")
			}

			actorID, err := validation.SanitizeActorID(actor)
			if err != nil {
				return err
			}

			cfg := audit.DefaultConfig(path)
			cfg.GCInterval = 0
			cfg.Retention = a.cfg.Audit.Retention
			store, err := audit.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), audit.Filter{ActorID: actorID, Limit: limit})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printAuditTable(cmd, records)
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "audit store directory (defaults to audit.path)")
	cmd.Flags().StringVar(&actor, "actor", "", "only records for this actor")
	cmd.Flags().IntVar(&limit, "limit", audit.DefaultListLimit, "maximum records to print")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func printAuditTable(cmd *cobra.Command, records []validate.AuditRecord) error {
	theme := ux.ThemeFor(cmd.OutOrStdout(), true)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(theme.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return theme.Title
			}
			return lipgloss.NewStyle()
		}).
		Headers("CREATED", "ACTOR", "STAGE", "VALID", "ERRORS", "WARNINGS", "WORKFLOW")
	for _, r := range records {
		counts := validate.CountBySeverity(r.Diagnostics)
		workflow := "-"
		if r.WorkflowID != nil {
			workflow = fmt.Sprintf("%d", *r.WorkflowID)
		}
		t.Row(
			r.CreatedAt.Local().Format(time.DateTime),
			r.ActorID,
			string(r.Stage),
			fmt.Sprintf("%t", r.Valid),
			fmt.Sprintf("%d", counts[validate.SeverityError]),
			fmt.Sprintf("%d", counts[validate.SeverityWarning]),
			workflow,
		)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return err
}
