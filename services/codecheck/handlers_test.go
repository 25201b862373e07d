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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/codecheck/pkg/validation"
	"github.com/AleutianAI/codecheck/services/codecheck/audit"
	"github.com/AleutianAI/codecheck/services/codecheck/observability"
	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router    *gin.Engine
	validator *validate.Validator
	store     *audit.Store
	metrics   *observability.Metrics
}

type serverOption func(*HandlerConfig, **rate.Limiter)

func withMaxSource(n int64) serverOption {
	return func(c *HandlerConfig, _ **rate.Limiter) { c.MaxSourceBytes = n }
}

func withLimiter(l *rate.Limiter) serverOption {
	return func(_ *HandlerConfig, lp **rate.Limiter) { *lp = l }
}

func setupTestServer(t *testing.T, withAudit bool, opts ...serverOption) *testServer {
	t.Helper()

	ts := &testServer{metrics: observability.NewMetrics(prometheus.NewRegistry())}
	vopts := validate.Options{OnAuditError: ts.metrics.AuditFailed}
	if withAudit {
		store, err := audit.OpenInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		ts.store = store
		vopts.AuditSink = store
	}
	ts.validator = validate.NewValidator(vopts)

	cfg := HandlerConfig{Validator: ts.validator, Metrics: ts.metrics}
	if ts.store != nil {
		cfg.Audit = ts.store
	}
	var limiter *rate.Limiter
	for _, opt := range opts {
		opt(&cfg, &limiter)
	}

	ts.router = gin.New()
	RegisterRoutes(ts.router.Group("/v1"), NewHandlers(cfg), limiter)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleValidate_Credential(t *testing.T) {
	ts := setupTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/v1/codecheck/validate", ValidateRequest{
		CodeToValidate:  `password = "supersecret123"`,
		ValidationStage: "initial_skeleton",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.Equal(t, false, raw["is_valid"])

	resp := decode[ValidateResponse](t, w)
	require.Len(t, resp.ValidationErrors, 1)
	assert.Equal(t, 1, resp.ValidationErrors[0].Line)
	assert.Equal(t, validate.SeverityError, resp.ValidationErrors[0].Severity)

	diags, ok := raw["validation_errors"].([]any)
	require.True(t, ok)
	require.Len(t, diags, 1)
	diag, ok := diags[0].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"line", "message", "severity"}, keysOf(diag))
	require.NotEmpty(t, resp.Suggestions)
	assert.Equal(t, validate.CategoryCritical, resp.Suggestions[len(resp.Suggestions)-1].Category)

	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RequestsTotal.WithLabelValues("initial_skeleton", observability.OutcomeInvalid)))
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestHandleValidate_FinalStage(t *testing.T) {
	ts := setupTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/v1/codecheck/validate", ValidateRequest{
		CodeToValidate:  "x = 1\n",
		ValidationStage: "final_with_credentials",
	}, nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ValidateResponse](t, w)
	assert.True(t, resp.IsValid)
	assert.Len(t, resp.ValidationErrors, 2)
}

func TestHandleValidate_RequestIDEchoed(t *testing.T) {
	ts := setupTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/v1/codecheck/validate",
		ValidateRequest{CodeToValidate: "x = 1", ValidationStage: "initial_skeleton"},
		map[string]string{"X-Request-ID": "req-123"})

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestHandleValidate_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		headers  map[string]string
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"code_to_validate":`, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"missing stage", map[string]any{"code_to_validate": "x = 1"}, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown stage", ValidateRequest{CodeToValidate: "x", ValidationStage: "staging"}, nil, http.StatusBadRequest, CodeInvalidRequest},
		{"zero workflow", map[string]any{"code_to_validate": "x", "validation_stage": "initial_skeleton", "workflow_id": 0}, nil, http.StatusBadRequest, CodeInvalidRequest},
		{
			"actor too long",
			ValidateRequest{CodeToValidate: "x", ValidationStage: "initial_skeleton"},
			map[string]string{"X-Actor-ID": strings.Repeat("a", validation.MaxActorIDLength+1)},
			http.StatusBadRequest, CodeInvalidRequest,
		},
		{
			"actor with spaces",
			ValidateRequest{CodeToValidate: "x", ValidationStage: "initial_skeleton"},
			map[string]string{"X-Actor-ID": "alice smith"},
			http.StatusBadRequest, CodeInvalidRequest,
		},
		{"source over limit", ValidateRequest{CodeToValidate: strings.Repeat("x", 65), ValidationStage: "initial_skeleton"}, nil, http.StatusRequestEntityTooLarge, CodeSourceTooLarge},
		{"body over limit", `{"code_to_validate":"` + strings.Repeat("x", 200<<10) + `","validation_stage":"initial_skeleton"}`, nil, http.StatusRequestEntityTooLarge, CodeSourceTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t, false, withMaxSource(64))

			w := ts.do(t, http.MethodPost, "/v1/codecheck/validate", tt.body, tt.headers)

			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.wantErr, resp.Code)
			assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.RejectedTotal.WithLabelValues(tt.wantErr)))
		})
	}
}

func TestHandleValidate_RateLimited(t *testing.T) {
	ts := setupTestServer(t, false, withLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))
	body := ValidateRequest{CodeToValidate: "x = 1", ValidationStage: "initial_skeleton"}

	first := ts.do(t, http.MethodPost, "/v1/codecheck/validate", body, nil)
	second := ts.do(t, http.MethodPost, "/v1/codecheck/validate", body, nil)

	assert.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, CodeRateLimited, decode[ErrorResponse](t, second).Code)

	// Read-only endpoints are not limited.
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/v1/codecheck/validation-rules", nil, nil).Code)
}

func TestHandleValidate_AuditRoundTrip(t *testing.T) {
	ts := setupTestServer(t, true)

	for _, actor := range []string{"alice", "bob", "alice"} {
		w := ts.do(t, http.MethodPost, "/v1/codecheck/validate",
			map[string]any{"code_to_validate": "eval(x)", "validation_stage": "initial_skeleton", "workflow_id": 7},
			map[string]string{"X-Actor-ID": actor})
		require.Equal(t, http.StatusOK, w.Code)
	}
	// Anonymous calls are not audited.
	ts.do(t, http.MethodPost, "/v1/codecheck/validate",
		ValidateRequest{CodeToValidate: "x = 1", ValidationStage: "initial_skeleton"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ts.validator.Drain(ctx))

	w := ts.do(t, http.MethodGet, "/v1/codecheck/audit?actor_id=alice", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[AuditListResponse](t, w)
	assert.Equal(t, 2, resp.Count)
	for _, rec := range resp.Records {
		assert.Equal(t, "alice", rec.ActorID)
		assert.Equal(t, "eval(x)", rec.CodeSnippet)
		require.NotNil(t, rec.WorkflowID)
		assert.Equal(t, int64(7), *rec.WorkflowID)
	}

	all := decode[AuditListResponse](t, ts.do(t, http.MethodGet, "/v1/codecheck/audit?limit=10", nil, nil))
	assert.Equal(t, 3, all.Count)

	bad := ts.do(t, http.MethodGet, "/v1/codecheck/audit?limit=0", nil, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)

	bad = ts.do(t, http.MethodGet, "/v1/codecheck/audit?actor_id="+url.QueryEscape("a/b"), nil, nil)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHandleListAudit_Disabled(t *testing.T) {
	ts := setupTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/v1/codecheck/audit", nil, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, CodeAuditDisabled, decode[ErrorResponse](t, w).Code)
}

func TestHandleSyntaxCheck(t *testing.T) {
	ts := setupTestServer(t, false)

	t.Run("body valid", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/codecheck/syntax-check", SyntaxCheckRequest{Code: "x = 1"}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[SyntaxCheckResponse](t, w)
		assert.True(t, resp.IsValid)
		assert.NotNil(t, resp.SyntaxErrors)
		assert.Empty(t, resp.SyntaxErrors)
	})

	t.Run("query invalid", func(t *testing.T) {
		path := "/v1/codecheck/syntax-check?code=" + url.QueryEscape(`print("hello"`)
		w := ts.do(t, http.MethodPost, path, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[SyntaxCheckResponse](t, w)
		assert.False(t, resp.IsValid)
		require.Len(t, resp.SyntaxErrors, 1)
		assert.Equal(t, 1, resp.SyntaxErrors[0].Line)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/v1/codecheck/syntax-check", "not json", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleRules(t *testing.T) {
	ts := setupTestServer(t, false)

	w := ts.do(t, http.MethodGet, "/v1/codecheck/validation-rules", nil, nil)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[RulesResponse](t, w)
	assert.Equal(t, validate.CatalogVersion, resp.CatalogVersion)
	assert.Len(t, resp.DeprecatedModules, 6)
	assert.Contains(t, resp.DangerousFunctions, "eval")
	assert.Contains(t, resp.ApprovedModules, "requests")
	assert.Equal(t, []string{validate.RuleHardcodedSecret, validate.RuleDangerousFunction, validate.RuleSQLInterpolation}, resp.SecurityRuleIDs)
	assert.Len(t, resp.ProductionRuleIDs, 3)

	assert.Contains(t, resp.Syntax, "Proper indentation required")
	require.Len(t, resp.Module, 2)
	assert.Contains(t, resp.Module[0], "No deprecated modules")
	require.Len(t, resp.Security, 3)
	assert.Contains(t, resp.Security[0], "No hardcoded credentials")
	assert.Contains(t, resp.Security[1], "eval")
	assert.Contains(t, resp.Security[2], "parameterized queries")
	assert.Equal(t, []string{
		"Proper error handling (try/except)",
		"Environment variable usage for configuration",
		"No debugging print() output in production code",
	}, resp.Production)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"syntax_rules", "module_rules", "security_rules", "production_rules"} {
		assert.Contains(t, raw, key)
	}
}

func TestHandleHealthAndReady(t *testing.T) {
	ts := setupTestServer(t, false)

	health := decode[HealthResponse](t, ts.do(t, http.MethodGet, "/v1/codecheck/health", nil, nil))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, ServiceVersion, health.Version)

	w := ts.do(t, http.MethodGet, "/v1/codecheck/ready", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[ReadyResponse](t, w)
	assert.True(t, ready.Ready)
	assert.Equal(t, "disabled", ready.Audit)

	withStore := setupTestServer(t, true)
	ready = decode[ReadyResponse](t, withStore.do(t, http.MethodGet, "/v1/codecheck/ready", nil, nil))
	assert.Equal(t, "ok", ready.Audit)

	require.NoError(t, withStore.store.Close())
	w = withStore.do(t, http.MethodGet, "/v1/codecheck/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
