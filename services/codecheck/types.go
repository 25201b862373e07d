// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codecheck

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "1.0.0"

var requestValidate = validator.New()

// ValidateRequest is the body of POST /v1/codecheck/validate.
//
// # Validation
//
// Uses go-playground/validator:
//   - ValidationStage: required, initial_skeleton or final_with_credentials
//   - WorkflowID: optional, must be positive when present
//
// CodeToValidate may be empty; an empty module is valid Python.
type ValidateRequest struct {
	CodeToValidate  string `json:"code_to_validate"`
	ValidationStage string `json:"validation_stage" validate:"required,oneof=initial_skeleton final_with_credentials"`
	WorkflowID      *int64 `json:"workflow_id,omitempty" validate:"omitempty,gte=1"`
}

// Validate checks field constraints.
func (r *ValidateRequest) Validate() error {
	return requestValidate.Struct(r)
}

// ValidationError is one diagnostic in the validate response.
type ValidationError struct {
	Line     int               `json:"line"`
	Message  string            `json:"message"`
	Severity validate.Severity `json:"severity"`
}

// ValidateResponse is returned by POST /v1/codecheck/validate.
type ValidateResponse struct {
	IsValid          bool                  `json:"is_valid"`
	ValidationErrors []ValidationError     `json:"validation_errors"`
	Suggestions      []validate.Suggestion `json:"suggestions"`
}

// newValidateResponse maps a result to the response body. Rule
// identifiers stay internal to diagnostics and audit records.
func newValidateResponse(result *validate.ValidationResult) ValidateResponse {
	resp := ValidateResponse{
		IsValid:          result.Valid,
		ValidationErrors: make([]ValidationError, len(result.Diagnostics)),
		Suggestions:      result.Suggestions,
	}
	for i, d := range result.Diagnostics {
		resp.ValidationErrors[i] = ValidationError{Line: d.Line, Message: d.Message, Severity: d.Severity}
	}
	if resp.Suggestions == nil {
		resp.Suggestions = []validate.Suggestion{}
	}
	return resp
}

// SyntaxCheckRequest is the body of POST /v1/codecheck/syntax-check.
type SyntaxCheckRequest struct {
	Code string `json:"code"`
}

// SyntaxError is one syntax failure.
type SyntaxError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// SyntaxCheckResponse is returned by the syntax-check endpoint.
type SyntaxCheckResponse struct {
	IsValid      bool          `json:"is_valid"`
	SyntaxErrors []SyntaxError `json:"syntax_errors"`
}

// RulesResponse describes the active catalog and rule sets.
//
// The *_rules groups are human-readable texts; the *_rule_ids lists carry
// the identifiers that appear in diagnostics.
type RulesResponse struct {
	validate.RuleGroups

	CatalogVersion     string                      `json:"catalog_version"`
	Stages             []validate.Stage            `json:"stages"`
	DeprecatedModules  []validate.DeprecatedModule `json:"deprecated_modules"`
	DangerousFunctions []string                    `json:"dangerous_functions"`
	ApprovedModules    []string                    `json:"approved_modules"`
	SecurityRuleIDs    []string                    `json:"security_rule_ids"`
	ProductionRuleIDs  []string                    `json:"production_rule_ids"`
}

// AuditListResponse is returned by GET /v1/codecheck/audit.
type AuditListResponse struct {
	Records []validate.AuditRecord `json:"records"`
	Count   int                    `json:"count"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by the readiness endpoint.
type ReadyResponse struct {
	Ready          bool   `json:"ready"`
	CatalogVersion string `json:"catalog_version"`
	Audit          string `json:"audit"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
