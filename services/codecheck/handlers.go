// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package codecheck exposes the Python validation engine over HTTP.
package codecheck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/codecheck/pkg/validation"
	"github.com/AleutianAI/codecheck/services/codecheck/audit"
	"github.com/AleutianAI/codecheck/services/codecheck/observability"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

// AuditLister reads stored audit records.
type AuditLister interface {
	List(ctx context.Context, f audit.Filter) ([]validate.AuditRecord, error)
}

// HandlerConfig configures Handlers.
type HandlerConfig struct {
	// Validator runs the validation pipeline. Required.
	Validator *validate.Validator

	// Audit serves GET /audit. Nil disables the endpoint.
	Audit AuditLister

	// Metrics is optional.
	Metrics *observability.Metrics

	// MaxSourceBytes caps submitted source. Zero means 1 MiB.
	MaxSourceBytes int64

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Handlers contains the HTTP handlers for codecheck endpoints.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	validator      *validate.Validator
	audit          AuditLister
	metrics        *observability.Metrics
	maxSourceBytes int64
	logger         *slog.Logger
}

// NewHandlers creates the handlers.
func NewHandlers(cfg HandlerConfig) *Handlers {
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = 1 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handlers{
		validator:      cfg.Validator,
		audit:          cfg.Audit,
		metrics:        cfg.Metrics,
		maxSourceBytes: cfg.MaxSourceBytes,
		logger:         cfg.Logger,
	}
}

// MaxBodyBytes is the request body limit: the source limit plus room for
// the JSON envelope and escaping.
func (h *Handlers) MaxBodyBytes() int64 {
	return 2*h.maxSourceBytes + 64<<10
}

func (h *Handlers) reject(c *gin.Context, status int, code, msg string) {
	h.metrics.Rejected(code)
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}

// HandleValidate handles POST /v1/codecheck/validate.
//
// Description:
//
//	Runs the full validation pipeline over code_to_validate. The optional
//	X-Actor-ID header enables the audit record for this call.
//
// Request Body:
//
//	ValidateRequest
//
// Response:
//
//	200 OK: ValidateResponse
//	400 Bad Request: Malformed body, unknown stage or bad X-Actor-ID
//	413 Request Entity Too Large: Source exceeds the size limit
//	500 Internal Server Error: Validation could not run
func (h *Handlers) HandleValidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleValidate")

	var req ValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.rejectBindError(c, logger, err)
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("Request validation failed", "error", err)
		h.metrics.Rejected(CodeInvalidRequest)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request",
			Code:    CodeInvalidRequest,
			Details: err.Error(),
		})
		return
	}
	if int64(len(req.CodeToValidate)) > h.maxSourceBytes {
		logger.Warn("Source too large", "bytes", len(req.CodeToValidate))
		h.reject(c, http.StatusRequestEntityTooLarge, CodeSourceTooLarge, ErrSourceTooLarge.Error())
		return
	}

	actorID, err := actorFromHeader(c)
	if err != nil {
		logger.Warn("Invalid actor header", "error", err)
		h.reject(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	stage := validate.Stage(req.ValidationStage)
	start := time.Now()
	result, err := h.validator.Validate(c.Request.Context(), validate.Request{
		Source:     req.CodeToValidate,
		Stage:      stage,
		ActorID:    actorID,
		WorkflowID: req.WorkflowID,
	})
	if err != nil {
		status, code := http.StatusInternalServerError, CodeValidationFailed
		if errors.Is(err, validate.ErrInvalidStage) {
			status, code = http.StatusBadRequest, CodeInvalidRequest
		}
		logger.Error("Validation failed", "error", err)
		h.reject(c, status, code, err.Error())
		return
	}
	elapsed := time.Since(start)
	h.metrics.ObserveValidation(stage, result, elapsed)

	logger.Info("Validation complete",
		"stage", stage,
		"valid", result.Valid,
		"diagnostics", len(result.Diagnostics),
		"duration_ms", elapsed.Milliseconds())

	c.JSON(http.StatusOK, newValidateResponse(result))
}

// HandleSyntaxCheck handles POST /v1/codecheck/syntax-check.
//
// Description:
//
//	Runs only the syntax pass. The source is taken from the "code" query
//	parameter when present, otherwise from a SyntaxCheckRequest body.
//
// Response:
//
//	200 OK: SyntaxCheckResponse
//	400 Bad Request: Malformed body
//	413 Request Entity Too Large: Source exceeds the size limit
func (h *Handlers) HandleSyntaxCheck(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleSyntaxCheck")

	code, ok := c.GetQuery("code")
	if !ok {
		var req SyntaxCheckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.rejectBindError(c, logger, err)
			return
		}
		code = req.Code
	}
	if int64(len(code)) > h.maxSourceBytes {
		h.reject(c, http.StatusRequestEntityTooLarge, CodeSourceTooLarge, ErrSourceTooLarge.Error())
		return
	}

	valid, diags := h.validator.CheckSyntax(code)
	resp := SyntaxCheckResponse{IsValid: valid, SyntaxErrors: make([]SyntaxError, 0, len(diags))}
	for _, d := range diags {
		resp.SyntaxErrors = append(resp.SyntaxErrors, SyntaxError{Line: d.Line, Message: d.Message})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleRules handles GET /v1/codecheck/validation-rules.
//
// Response:
//
//	200 OK: RulesResponse
func (h *Handlers) HandleRules(c *gin.Context) {
	catalog := h.validator.Catalog()
	c.JSON(http.StatusOK, RulesResponse{
		RuleGroups:         h.validator.RuleGroups(),
		CatalogVersion:     catalog.Version(),
		Stages:             []validate.Stage{validate.StageInitialSkeleton, validate.StageFinalWithCredentials},
		DeprecatedModules:  catalog.DeprecatedModules(),
		DangerousFunctions: catalog.DangerousFunctions(),
		ApprovedModules:    catalog.ApprovedModules(),
		SecurityRuleIDs:    h.validator.SecurityRuleNames(),
		ProductionRuleIDs:  h.validator.ProductionRuleNames(),
	})
}

// HandleListAudit handles GET /v1/codecheck/audit.
//
// Query Parameters:
//
//	actor_id - Optional actor filter
//	limit - Optional, 1..1000 (default 50)
//
// Response:
//
//	200 OK: AuditListResponse, newest first
//	400 Bad Request: Invalid limit
//	503 Service Unavailable: Audit store not configured
func (h *Handlers) HandleListAudit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleListAudit")

	if h.audit == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrAuditDisabled.Error(), Code: CodeAuditDisabled})
		return
	}

	actor, err := validation.SanitizeActorID(c.Query("actor_id"))
	if err != nil {
		h.reject(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	filter := audit.Filter{ActorID: actor}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > audit.MaxListLimit {
			h.reject(c, http.StatusBadRequest, CodeInvalidRequest,
				fmt.Sprintf("limit must be an integer between 1 and %d", audit.MaxListLimit))
			return
		}
		filter.Limit = limit
	}

	records, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		logger.Error("Audit query failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: CodeAuditFailed})
		return
	}
	c.JSON(http.StatusOK, AuditListResponse{Records: records, Count: len(records)})
}

// HandleHealth handles GET /v1/codecheck/health. Always 200 if running.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleReady handles GET /v1/codecheck/ready.
//
// Description:
//
//	Reports ready once the validator is built. When an audit store is
//	configured it must answer a one-record query.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true)
//	503 Service Unavailable: ReadyResponse (Ready=false)
func (h *Handlers) HandleReady(c *gin.Context) {
	resp := ReadyResponse{Ready: true, CatalogVersion: h.validator.Catalog().Version(), Audit: "disabled"}
	if h.audit != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if _, err := h.audit.List(ctx, audit.Filter{Limit: 1}); err != nil {
			resp.Ready = false
			resp.Audit = "unavailable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.Audit = "ok"
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) rejectBindError(c *gin.Context, logger *slog.Logger, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		logger.Warn("Request body too large", "limit", tooLarge.Limit)
		h.reject(c, http.StatusRequestEntityTooLarge, CodeSourceTooLarge, ErrSourceTooLarge.Error())
		return
	}
	logger.Warn("Invalid request body", "error", err)
	h.metrics.Rejected(CodeInvalidRequest)
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    CodeInvalidRequest,
		Details: err.Error(),
	})
}

// actorFromHeader reads X-Actor-ID. Empty is allowed and disables auditing.
func actorFromHeader(c *gin.Context) (string, error) {
	return validation.SanitizeActorID(c.GetHeader("X-Actor-ID"))
}

// getOrCreateRequestID extracts or generates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
