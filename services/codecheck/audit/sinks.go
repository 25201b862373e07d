// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// NopSink discards audit records.
type NopSink struct{}

// Record implements validate.AuditSink.
func (NopSink) Record(context.Context, validate.AuditRecord) error { return nil }

// LogSink writes a summary of each record as a structured log line. The
// code snippet itself is not logged.
type LogSink struct {
	Logger *slog.Logger
}

// Record implements validate.AuditSink.
func (s LogSink) Record(ctx context.Context, rec validate.AuditRecord) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counts := validate.CountBySeverity(rec.Diagnostics)
	attrs := []any{
		slog.String("actor_id", rec.ActorID),
		slog.String("stage", string(rec.Stage)),
		slog.Bool("valid", rec.Valid),
		slog.Int("errors", counts[validate.SeverityError]),
		slog.Int("warnings", counts[validate.SeverityWarning]),
		slog.Int("snippet_chars", len([]rune(rec.CodeSnippet))),
	}
	if rec.WorkflowID != nil {
		attrs = append(attrs, slog.Int64("workflow_id", *rec.WorkflowID))
	}
	logger.InfoContext(ctx, "validation audited", attrs...)
	return nil
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []validate.AuditSink

// Record implements validate.AuditSink.
func (m MultiSink) Record(ctx context.Context, rec validate.AuditRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
