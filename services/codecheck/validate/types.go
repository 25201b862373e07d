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
	"errors"
	"fmt"
)

// Severity represents the severity level of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// rank orders severities so advisory passes can cap them.
func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// SuggestionCategory classifies a suggestion.
type SuggestionCategory string

const (
	CategoryImprovement SuggestionCategory = "improvement"
	CategoryPerformance SuggestionCategory = "performance"
	CategorySecurity    SuggestionCategory = "security"
	CategoryCritical    SuggestionCategory = "critical"
)

// Stage is the caller-declared phase of the generated code. It controls
// which passes run.
type Stage string

const (
	// StageInitialSkeleton is generated code before credentials are configured.
	StageInitialSkeleton Stage = "initial_skeleton"

	// StageFinalWithCredentials is the final code; production checks run.
	StageFinalWithCredentials Stage = "final_with_credentials"
)

// ErrInvalidStage indicates an unknown validation stage tag.
var ErrInvalidStage = errors.New("invalid validation stage")

// ParseStage converts a wire tag into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageInitialSkeleton, StageFinalWithCredentials:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStage, s)
	}
}

// Rule identifiers attached to diagnostics. They let the suggestion
// generator and metrics tell findings apart without parsing messages.
const (
	RuleSyntax             = "syntax"
	RuleDeprecatedModule   = "deprecated-module"
	RuleHardcodedSecret    = "hardcoded-credential"
	RuleDangerousFunction  = "dangerous-function"
	RuleSQLInterpolation   = "sql-interpolation"
	RuleMissingErrorHandle = "missing-error-handling"
	RuleNoEnvConfig        = "no-env-config"
	RuleDebugOutput        = "debug-output"
)

// Diagnostic is a single validation finding.
//
// Line is 1-indexed; 0 means the finding applies to the whole file.
type Diagnostic struct {
	// Line is the source line of the finding, or 0 for whole-file findings.
	Line int `json:"line"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// Severity is error, warning or info.
	Severity Severity `json:"severity"`

	// Rule identifies the rule that produced the finding.
	Rule string `json:"rule,omitempty"`
}

// Suggestion is an improvement hint derived from the source and diagnostics.
type Suggestion struct {
	Category SuggestionCategory `json:"type"`
	Message  string             `json:"message"`
	Example  string             `json:"example,omitempty"`
}

// ValidationResult is the aggregated outcome of one validation call.
//
// Valid is false if and only if Diagnostics contains an error.
type ValidationResult struct {
	// Valid indicates whether the code passed validation.
	Valid bool `json:"is_valid"`

	// Diagnostics are the findings in pass order.
	Diagnostics []Diagnostic `json:"validation_errors"`

	// Suggestions are derived hints in generator order.
	Suggestions []Suggestion `json:"suggestions"`
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CountBySeverity tallies diagnostics per severity.
func CountBySeverity(diags []Diagnostic) map[Severity]int {
	counts := make(map[Severity]int, 3)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}
