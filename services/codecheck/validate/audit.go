// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"context"
	"time"
)

// MaxSnippetChars is how much of the validated source an audit record keeps.
const MaxSnippetChars = 1000

// AuditRecord is a snapshot of one validation call.
type AuditRecord struct {
	// ID is assigned by the sink if empty.
	ID string `json:"id"`

	ActorID     string       `json:"actor_id"`
	WorkflowID  *int64       `json:"workflow_id,omitempty"`
	CodeSnippet string       `json:"code_snippet"`
	Stage       Stage        `json:"validation_stage"`
	Valid       bool         `json:"is_valid"`
	Diagnostics []Diagnostic `json:"validation_errors"`
	Suggestions []Suggestion `json:"suggestions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AuditSink receives audit records.
//
// # Description
//
// Write-only from the engine's perspective. The validator calls Record
// from a background goroutine after the result is computed; an error is
// logged and dropped, never returned to the validation caller.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// Snippet truncates source to MaxSnippetChars characters.
func Snippet(source string) string {
	n := 0
	for i := range source {
		if n == MaxSnippetChars {
			return source[:i]
		}
		n++
	}
	return source
}

func newAuditRecord(req Request, result *ValidationResult, now time.Time) AuditRecord {
	diags := make([]Diagnostic, len(result.Diagnostics))
	copy(diags, result.Diagnostics)
	suggestions := make([]Suggestion, len(result.Suggestions))
	copy(suggestions, result.Suggestions)

	return AuditRecord{
		ActorID:     req.ActorID,
		WorkflowID:  req.WorkflowID,
		CodeSnippet: Snippet(req.Source),
		Stage:       req.Stage,
		Valid:       result.Valid,
		Diagnostics: diags,
		Suggestions: suggestions,
		CreatedAt:   now.UTC(),
	}
}
