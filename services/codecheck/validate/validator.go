// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate implements static validation of generated Python code.
//
// A validation call runs a fixed pipeline over the source text:
//
//	syntax (gate) -> modules (only if syntax passed) -> security -> production (final stage only)
//
// followed by the suggestion generator. Every call is a pure function of
// the source, the stage and the immutable Catalog; the optional audit write
// happens out of band.
//
// Thread Safety: A Validator is safe for concurrent use.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Pass names, in pipeline order.
const (
	PassSyntax     = "syntax"
	PassModules    = "modules"
	PassSecurity   = "security"
	PassProduction = "production"
)

// DefaultAuditTimeout bounds a single background audit write.
const DefaultAuditTimeout = 5 * time.Second

// Request is the input of one validation call.
type Request struct {
	// Source is the Python code to validate.
	Source string

	// Stage selects which passes run.
	Stage Stage

	// ActorID identifies the caller for auditing. Empty disables the audit.
	ActorID string

	// WorkflowID optionally links the audit record to a workflow.
	WorkflowID *int64
}

// Options configures a Validator. Zero values select defaults.
type Options struct {
	// Catalog defaults to DefaultCatalog().
	Catalog *Catalog

	// Thresholds. A zero MinCredentialLength selects the default length;
	// the other fields keep their values.
	Thresholds Thresholds

	// Parser defaults to NewPythonParser().
	Parser SourceParser

	// SecurityRules replaces the default security rule list.
	SecurityRules []Rule

	// ProductionRules replaces the default production rule list.
	ProductionRules []Rule

	// AuditSink receives a record per call that has an ActorID. Optional.
	AuditSink AuditSink

	// AuditTimeout bounds each audit write. Default: DefaultAuditTimeout.
	AuditTimeout time.Duration

	// OnAuditError is called after a failed audit write. Optional.
	OnAuditError func(error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Validator is the validation orchestrator.
type Validator struct {
	catalog      *Catalog
	thresholds   Thresholds
	parser       SourceParser
	modules      *ModuleChecker
	security     *RuleSet
	production   *RuleSet
	sink         AuditSink
	auditTimeout time.Duration
	onAuditError func(error)
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time

	inflight sync.WaitGroup
}

// NewValidator creates a Validator.
//
// Description:
//
//	Builds the module checker and the security and production rule sets
//	once; they are shared read-only by every call.
//
// Inputs:
//
//	opts - Options; zero values select defaults
//
// Outputs:
//
//	*Validator - The validator, never nil
func NewValidator(opts Options) *Validator {
	if opts.Catalog == nil {
		opts.Catalog = DefaultCatalog()
	}
	if opts.Thresholds.MinCredentialLength == 0 {
		opts.Thresholds.MinCredentialLength = DefaultThresholds().MinCredentialLength
	}
	if opts.Parser == nil {
		opts.Parser = NewPythonParser()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AuditTimeout <= 0 {
		opts.AuditTimeout = DefaultAuditTimeout
	}
	if opts.SecurityRules == nil {
		opts.SecurityRules = SecurityRules(opts.Catalog, opts.Thresholds)
	}
	if opts.ProductionRules == nil {
		opts.ProductionRules = ProductionRules(opts.Thresholds)
	}

	logger := opts.Logger.With("component", "validator")
	return &Validator{
		catalog:      opts.Catalog,
		thresholds:   opts.Thresholds,
		parser:       opts.Parser,
		modules:      NewModuleChecker(opts.Catalog),
		security:     NewRuleSet(logger, opts.SecurityRules...),
		production:   NewRuleSet(logger, opts.ProductionRules...),
		sink:         opts.AuditSink,
		auditTimeout: opts.AuditTimeout,
		onAuditError: opts.OnAuditError,
		logger:       logger,
		tracer:       otel.Tracer("codecheck.validate"),
		now:          time.Now,
	}
}

// Catalog returns the catalog the validator was built with.
func (v *Validator) Catalog() *Catalog {
	return v.catalog
}

// Thresholds returns the heuristics the validator was built with.
func (v *Validator) Thresholds() Thresholds {
	return v.thresholds
}

// SecurityRuleNames returns the security rules in run order.
func (v *Validator) SecurityRuleNames() []string {
	return v.security.Rules()
}

// ProductionRuleNames returns the production rules in run order.
func (v *Validator) ProductionRuleNames() []string {
	return v.production.Rules()
}

// RuleGroups is the human-readable rule listing, one group per pass.
type RuleGroups struct {
	Syntax     []string `json:"syntax_rules"`
	Module     []string `json:"module_rules"`
	Security   []string `json:"security_rules"`
	Production []string `json:"production_rules"`
}

// RuleGroups describes what each pass checks with the active catalog and
// rule sets.
func (v *Validator) RuleGroups() RuleGroups {
	return RuleGroups{
		Syntax: []string{
			"Valid Python 3 syntax required",
			"No syntax errors allowed",
			"Proper indentation required",
			"No Python 2 print or exec statements",
		},
		Module: []string{
			fmt.Sprintf("No deprecated modules (%d catalogued with replacements)", len(v.catalog.DeprecatedModules())),
			"Only standard library and approved third-party modules",
		},
		Security:   v.security.Descriptions(),
		Production: v.production.Descriptions(),
	}
}

// CheckSyntax parses source and reports at most one error diagnostic.
func (v *Validator) CheckSyntax(source string) (bool, []Diagnostic) {
	tree, diags := v.parse(source)
	tree.Close()
	return len(diags) == 0, diags
}

func (v *Validator) parse(source string) (*SyntaxTree, []Diagnostic) {
	tree, err := v.parser.Parse(source)
	if err == nil {
		return tree, nil
	}
	tree.Close()

	failure, ok := AsSyntaxFailure(err)
	if !ok {
		failure = &SyntaxFailure{Message: fmt.Sprintf("Parse Error: %v", err)}
	}
	return nil, []Diagnostic{{
		Line:     failure.Line,
		Message:  failure.Message,
		Severity: SeverityError,
		Rule:     RuleSyntax,
	}}
}

// CheckModules reports deprecated imports in a parsed tree. A fault while
// walking the tree yields no diagnostics.
func (v *Validator) CheckModules(tree *SyntaxTree) (diags []Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Warn("module pass failed", "panic", fmt.Sprint(r))
			diags = nil
		}
	}()
	return v.modules.Check(tree)
}

// CheckSecurity runs the security rules over raw text. It does not depend
// on the source being parseable.
func (v *Validator) CheckSecurity(source string) []Diagnostic {
	return v.security.Run(source)
}

// CheckProduction runs the production-readiness rules. Findings are
// advisory: error severities are reported as warnings.
func (v *Validator) CheckProduction(source string) []Diagnostic {
	diags := v.production.Run(source)
	for i := range diags {
		if diags[i].Severity.rank() > SeverityWarning.rank() {
			diags[i].Severity = SeverityWarning
		}
	}
	return diags
}

// =============================================================================
// Pipeline
// =============================================================================

// pipelineState is the mutable state threaded through one call.
type pipelineState struct {
	source   string
	stage    Stage
	tree     *SyntaxTree
	syntaxOK bool
	diags    []Diagnostic
}

// pipelineStep is one pass. enabled is evaluated right before the step
// runs, so it observes the outcome of earlier steps.
type pipelineStep struct {
	name    string
	enabled func(s *pipelineState) bool
	run     func(v *Validator, s *pipelineState) []Diagnostic
}

func always(*pipelineState) bool { return true }

var pipeline = []pipelineStep{
	{
		name:    PassSyntax,
		enabled: always,
		run: func(v *Validator, s *pipelineState) []Diagnostic {
			tree, diags := v.parse(s.source)
			s.tree = tree
			s.syntaxOK = len(diags) == 0
			return diags
		},
	},
	{
		name:    PassModules,
		enabled: func(s *pipelineState) bool { return s.syntaxOK },
		run:     func(v *Validator, s *pipelineState) []Diagnostic { return v.CheckModules(s.tree) },
	},
	{
		name:    PassSecurity,
		enabled: always,
		run:     func(v *Validator, s *pipelineState) []Diagnostic { return v.CheckSecurity(s.source) },
	},
	{
		name:    PassProduction,
		enabled: func(s *pipelineState) bool { return s.stage == StageFinalWithCredentials },
		run:     func(v *Validator, s *pipelineState) []Diagnostic { return v.CheckProduction(s.source) },
	},
}

// Validate runs the full pipeline.
//
// Description:
//
//	Runs syntax, modules (skipped when syntax fails), security and, for
//	StageFinalWithCredentials, production checks; then generates
//	suggestions. Valid is false exactly when an error diagnostic exists.
//	If an audit sink is configured and req.ActorID is set, an AuditRecord
//	is written in the background; its outcome never affects the result.
//
// Inputs:
//
//	ctx - Context for tracing; the audit write inherits its values but not
//	      its cancellation
//	req - The request
//
// Outputs:
//
//	*ValidationResult - The result
//	error - ErrInvalidStage for an unknown stage
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) Validate(ctx context.Context, req Request) (*ValidationResult, error) {
	if _, err := ParseStage(string(req.Stage)); err != nil {
		return nil, err
	}

	ctx, span := v.tracer.Start(ctx, "Validator.Validate",
		trace.WithAttributes(
			attribute.String("stage", string(req.Stage)),
			attribute.Int("source_bytes", len(req.Source)),
		),
	)
	defer span.End()

	state := &pipelineState{source: req.Source, stage: req.Stage}
	defer func() { state.tree.Close() }()

	for _, step := range pipeline {
		if !step.enabled(state) {
			span.AddEvent("pass skipped", trace.WithAttributes(attribute.String("pass", step.name)))
			continue
		}
		_, passSpan := v.tracer.Start(ctx, "pass."+step.name)
		diags := step.run(v, state)
		passSpan.SetAttributes(attribute.Int("diagnostics", len(diags)))
		passSpan.End()
		state.diags = append(state.diags, diags...)
	}

	result := &ValidationResult{
		Valid:       !HasErrors(state.diags),
		Diagnostics: state.diags,
		Suggestions: GenerateSuggestions(req.Source, state.diags),
	}
	if result.Diagnostics == nil {
		result.Diagnostics = []Diagnostic{}
	}

	span.SetAttributes(
		attribute.Bool("valid", result.Valid),
		attribute.Int("diagnostics", len(result.Diagnostics)),
	)
	v.dispatchAudit(ctx, req, result)
	return result, nil
}

// dispatchAudit writes the audit record in the background.
func (v *Validator) dispatchAudit(ctx context.Context, req Request, result *ValidationResult) {
	if v.sink == nil || req.ActorID == "" {
		return
	}

	rec := newAuditRecord(req, result, v.now())
	auditCtx := context.WithoutCancel(ctx)

	v.inflight.Add(1)
	go func() {
		defer v.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				v.auditFailed(fmt.Errorf("audit sink panic: %v", r))
			}
		}()

		wctx, cancel := context.WithTimeout(auditCtx, v.auditTimeout)
		defer cancel()
		if err := v.sink.Record(wctx, rec); err != nil {
			v.auditFailed(err)
		}
	}()
}

func (v *Validator) auditFailed(err error) {
	v.logger.Warn("audit write failed", "error", err)
	if v.onAuditError != nil {
		v.onAuditError(err)
	}
}

// Drain waits for in-flight audit writes, or until ctx is done.
func (v *Validator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		v.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
