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
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
)

// Rule is a single text-level check.
//
// Implementations must be safe for concurrent use and must not retain
// the source between calls.
type Rule interface {
	// Name identifies the rule; it is copied into Diagnostic.Rule.
	Name() string

	// Scan returns the findings for source in line order.
	Scan(source string) []Diagnostic
}

// Describer is implemented by rules that carry a human-readable summary
// for rule listings.
type Describer interface {
	Describe() string
}

// Thresholds are the tunable heuristics used by the text rules.
type Thresholds struct {
	// MinCredentialLength is the minimum length of a quoted literal
	// assigned to a credential-like name before it is reported.
	MinCredentialLength int `yaml:"min_credential_length" validate:"gte=1,lte=256"`

	// DebugCaseInsensitive makes debug-output detection also match
	// "Debug", "DEBUG" and so on. The default matches "debug" exactly.
	DebugCaseInsensitive bool `yaml:"debug_case_insensitive"`
}

// DefaultThresholds returns the historical heuristics.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinCredentialLength: 8,
	}
}

// RuleSet runs rules in order and merges their findings by line.
//
// Description:
//
//	Rules run in declaration order. The merged output is stable-sorted by
//	line, so within one line findings keep rule order. A rule that panics
//	contributes no findings; the fault is logged and the remaining rules
//	still run.
//
// Thread Safety: Safe for concurrent use if the rules are.
type RuleSet struct {
	rules  []Rule
	logger *slog.Logger
}

// NewRuleSet creates a rule set. A nil logger discards fault reports.
func NewRuleSet(logger *slog.Logger, rules ...Rule) *RuleSet {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &RuleSet{rules: rules, logger: logger}
}

// Rules returns the rule names in run order.
func (rs *RuleSet) Rules() []string {
	names := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		names[i] = r.Name()
	}
	return names
}

// Descriptions returns a human-readable summary per rule in run order.
// Rules that do not implement Describer are listed by name.
func (rs *RuleSet) Descriptions() []string {
	out := make([]string, len(rs.rules))
	for i, r := range rs.rules {
		if d, ok := r.(Describer); ok {
			out[i] = d.Describe()
		} else {
			out[i] = r.Name()
		}
	}
	return out
}

// Run scans source with every rule.
func (rs *RuleSet) Run(source string) []Diagnostic {
	var diags []Diagnostic
	for _, r := range rs.rules {
		diags = append(diags, rs.scanRule(r, source)...)
	}
	sort.SliceStable(diags, func(i, j int) bool {
		return diags[i].Line < diags[j].Line
	})
	return diags
}

func (rs *RuleSet) scanRule(r Rule, source string) (diags []Diagnostic) {
	defer func() {
		if rec := recover(); rec != nil {
			rs.logger.Warn("rule evaluation failed", "rule", r.Name(), "panic", fmt.Sprint(rec))
			diags = nil
		}
	}()
	diags = r.Scan(source)
	for i := range diags {
		if diags[i].Rule == "" {
			diags[i].Rule = r.Name()
		}
	}
	return diags
}

// splitLines splits source the way the scanners number lines: on "\n",
// 1-indexed, with a trailing "\r" removed.
func splitLines(source string) []string {
	lines := strings.Split(source, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// =============================================================================
// Security rules
// =============================================================================

// HardcodedCredentialRule flags credential-like names assigned a quoted
// literal of at least MinCredentialLength characters.
type HardcodedCredentialRule struct {
	re        *regexp.Regexp
	minLength int
}

// NewHardcodedCredentialRule creates the rule. minLength below 1 is
// treated as 1.
func NewHardcodedCredentialRule(minLength int) *HardcodedCredentialRule {
	if minLength < 1 {
		minLength = 1
	}
	pattern := fmt.Sprintf(`(?i)(password|secret|key|token)\s*=\s*["'][^"']{%d,}["']`, minLength)
	return &HardcodedCredentialRule{re: regexp.MustCompile(pattern), minLength: minLength}
}

// Name implements Rule.
func (r *HardcodedCredentialRule) Name() string { return RuleHardcodedSecret }

// Describe implements Describer.
func (r *HardcodedCredentialRule) Describe() string {
	return fmt.Sprintf("No hardcoded credentials (password, secret, key or token assigned a literal of %d+ characters)", r.minLength)
}

// Scan implements Rule.
func (r *HardcodedCredentialRule) Scan(source string) []Diagnostic {
	var diags []Diagnostic
	for i, line := range splitLines(source) {
		if r.re.MatchString(strings.TrimSpace(line)) {
			diags = append(diags, Diagnostic{
				Line:     i + 1,
				Message:  "Potential hardcoded credential detected. Use environment variables instead.",
				Severity: SeverityError,
			})
		}
	}
	return diags
}

// DangerousFunctionRule flags any identifier-bounded occurrence of a
// catalog dangerous function. An open( call on a line that also carries a
// read-only mode literal is exempt.
type DangerousFunctionRule struct {
	funcs    []string
	patterns []*regexp.Regexp
}

var (
	openCallRe     = regexp.MustCompile(`(^|[^A-Za-z0-9_])open\s*\(`)
	readOnlyModeRe = regexp.MustCompile(`['"]r['"]`)
)

// NewDangerousFunctionRule creates the rule from the catalog's dangerous
// function list.
func NewDangerousFunctionRule(catalog *Catalog) *DangerousFunctionRule {
	funcs := catalog.DangerousFunctions()
	r := &DangerousFunctionRule{funcs: funcs, patterns: make([]*regexp.Regexp, len(funcs))}
	for i, fn := range funcs {
		r.patterns[i] = regexp.MustCompile(`(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(fn) + `([^A-Za-z0-9_]|$)`)
	}
	return r
}

// Name implements Rule.
func (r *DangerousFunctionRule) Name() string { return RuleDangerousFunction }

// Describe implements Describer.
func (r *DangerousFunctionRule) Describe() string {
	return fmt.Sprintf("No dangerous function usage (%s); open() only in read mode 'r'", strings.Join(r.funcs, ", "))
}

// Scan implements Rule.
func (r *DangerousFunctionRule) Scan(source string) []Diagnostic {
	var diags []Diagnostic
	for i, line := range splitLines(source) {
		stripped := strings.TrimSpace(line)
		for j, fn := range r.funcs {
			if !r.patterns[j].MatchString(stripped) {
				continue
			}
			if fn == "open" && isReadOnlyOpen(stripped) {
				continue
			}
			diags = append(diags, Diagnostic{
				Line:     i + 1,
				Message:  fmt.Sprintf("Potentially dangerous function '%s' detected. Review for security implications.", fn),
				Severity: SeverityWarning,
			})
		}
	}
	return diags
}

func isReadOnlyOpen(line string) bool {
	return openCallRe.MatchString(line) && readOnlyModeRe.MatchString(line)
}

// SQLInterpolationRule flags execute() calls whose string literal carries
// a %-style placeholder.
type SQLInterpolationRule struct{}

var sqlInterpolationRe = regexp.MustCompile(`(?i)execute\s*\(\s*["'].*%.*["']`)

// Name implements Rule.
func (SQLInterpolationRule) Name() string { return RuleSQLInterpolation }

// Describe implements Describer.
func (SQLInterpolationRule) Describe() string {
	return "No %-style string interpolation in execute() calls; use parameterized queries"
}

// Scan implements Rule.
func (SQLInterpolationRule) Scan(source string) []Diagnostic {
	var diags []Diagnostic
	for i, line := range splitLines(source) {
		if sqlInterpolationRe.MatchString(strings.TrimSpace(line)) {
			diags = append(diags, Diagnostic{
				Line:     i + 1,
				Message:  "Potential SQL injection vulnerability. Use parameterized queries.",
				Severity: SeverityError,
			})
		}
	}
	return diags
}

// =============================================================================
// Production-readiness rules
// =============================================================================

// ErrorHandlingRule reports sources without any try/except construct.
type ErrorHandlingRule struct{}

// Name implements Rule.
func (ErrorHandlingRule) Name() string { return RuleMissingErrorHandle }

// Describe implements Describer.
func (ErrorHandlingRule) Describe() string { return "Proper error handling (try/except)" }

// Scan implements Rule.
func (ErrorHandlingRule) Scan(source string) []Diagnostic {
	if strings.Contains(source, "try:") && strings.Contains(source, "except") {
		return nil
	}
	return []Diagnostic{{
		Line:     0,
		Message:  "Missing error handling. Add try-except blocks for production code.",
		Severity: SeverityWarning,
	}}
}

// EnvConfigRule reports sources that never read environment variables.
type EnvConfigRule struct{}

// Name implements Rule.
func (EnvConfigRule) Name() string { return RuleNoEnvConfig }

// Describe implements Describer.
func (EnvConfigRule) Describe() string { return "Environment variable usage for configuration" }

// Scan implements Rule.
func (EnvConfigRule) Scan(source string) []Diagnostic {
	if strings.Contains(source, "os.getenv") || strings.Contains(source, "os.environ") {
		return nil
	}
	return []Diagnostic{{
		Line:     0,
		Message:  "Consider using environment variables for configuration.",
		Severity: SeverityInfo,
	}}
}

// DebugOutputRule reports print( calls on lines mentioning debug.
type DebugOutputRule struct {
	CaseInsensitive bool
}

// Name implements Rule.
func (DebugOutputRule) Name() string { return RuleDebugOutput }

// Describe implements Describer.
func (DebugOutputRule) Describe() string { return "No debugging print() output in production code" }

// Scan implements Rule.
func (r DebugOutputRule) Scan(source string) []Diagnostic {
	var diags []Diagnostic
	for i, line := range splitLines(source) {
		if !strings.Contains(line, "print(") {
			continue
		}
		text := line
		if r.CaseInsensitive {
			text = strings.ToLower(line)
		}
		if strings.Contains(text, "debug") {
			diags = append(diags, Diagnostic{
				Line:     i + 1,
				Message:  "Debug print statement detected. Remove for production.",
				Severity: SeverityWarning,
			})
		}
	}
	return diags
}

// SecurityRules returns the default ordered security rule list.
func SecurityRules(catalog *Catalog, th Thresholds) []Rule {
	return []Rule{
		NewHardcodedCredentialRule(th.MinCredentialLength),
		NewDangerousFunctionRule(catalog),
		SQLInterpolationRule{},
	}
}

// ProductionRules returns the default ordered production-readiness rules.
func ProductionRules(th Thresholds) []Rule {
	return []Rule{
		ErrorHandlingRule{},
		EnvConfigRule{},
		DebugOutputRule{CaseInsensitive: th.DebugCaseInsensitive},
	}
}
