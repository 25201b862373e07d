// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for codecheck.
//
// # Description
//
// Metrics include:
//   - Validation counters by stage and outcome (valid, invalid)
//   - Diagnostic counters by severity
//   - Validation latency histograms by stage
//   - Audit write failures and rejected requests
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
// Methods on a nil *Metrics are no-ops.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/codecheck/services/codecheck/validate"
)

const (
	metricsNamespace = "codecheck"
	subsystem        = "validation"
)

// Outcome labels.
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
)

// Metrics holds the codecheck collectors.
type Metrics struct {
	// RequestsTotal counts validation calls.
	// Labels: stage, outcome (valid, invalid)
	RequestsTotal *prometheus.CounterVec

	// DiagnosticsTotal counts reported diagnostics.
	// Labels: severity (error, warning, info)
	DiagnosticsTotal *prometheus.CounterVec

	// DurationSeconds measures validation latency.
	// Labels: stage
	DurationSeconds *prometheus.HistogramVec

	// AuditFailuresTotal counts failed background audit writes.
	AuditFailuresTotal prometheus.Counter

	// RejectedTotal counts requests refused before validation.
	// Labels: code (INVALID_REQUEST, SOURCE_TOO_LARGE, RATE_LIMITED)
	RejectedTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
//
// Description:
//
//	Pass prometheus.DefaultRegisterer in production and a fresh
//	prometheus.NewRegistry() in tests.
//
// Limitations:
//
//	Panics if the collectors are already registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total validation calls by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),

		DiagnosticsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "diagnostics_total",
				Help:      "Total diagnostics reported by severity",
			},
			[]string{"severity"},
		),

		DurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Validation latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
			[]string{"stage"},
		),

		AuditFailuresTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "audit_failures_total",
				Help:      "Total failed audit writes",
			},
		),

		RejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "rejected_requests_total",
				Help:      "Total requests rejected before validation by error code",
			},
			[]string{"code"},
		),
	}
}

// ObserveValidation records one completed validation call.
func (m *Metrics) ObserveValidation(stage validate.Stage, result *validate.ValidationResult, elapsed time.Duration) {
	if m == nil || result == nil {
		return
	}
	outcome := OutcomeValid
	if !result.Valid {
		outcome = OutcomeInvalid
	}
	m.RequestsTotal.WithLabelValues(string(stage), outcome).Inc()
	m.DurationSeconds.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
	for sev, n := range validate.CountBySeverity(result.Diagnostics) {
		m.DiagnosticsTotal.WithLabelValues(string(sev)).Add(float64(n))
	}
}

// AuditFailed records a failed audit write. Its signature matches
// validate.Options.OnAuditError.
func (m *Metrics) AuditFailed(error) {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.Inc()
}

// Rejected records a request refused with the given error code.
func (m *Metrics) Rejected(code string) {
	if m == nil {
		return
	}
	m.RejectedTotal.WithLabelValues(code).Inc()
}
