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
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RegisterRoutes registers all codecheck routes under rg.
//
// Description:
//
//	Validation endpoints share the body limit and the rate limiter; the
//	read-only and health endpoints do not.
//
// Endpoints:
//
//	POST /codecheck/validate          - Full validation pipeline
//	POST /codecheck/syntax-check      - Syntax pass only
//	GET  /codecheck/validation-rules  - Active catalog and rule sets
//	GET  /codecheck/audit             - Stored audit records
//	GET  /codecheck/health            - Liveness
//	GET  /codecheck/ready             - Readiness
//
// Example:
//
//	router := gin.Default()
//	v1 := router.Group("/v1")
//	codecheck.RegisterRoutes(v1, handlers, limiter)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, limiter *rate.Limiter) {
	cc := rg.Group("/codecheck")

	checks := cc.Group("", BodyLimit(handlers.MaxBodyBytes()), RateLimit(limiter, handlers.metrics))
	{
		checks.POST("/validate", handlers.HandleValidate)
		checks.POST("/syntax-check", handlers.HandleSyntaxCheck)
	}

	cc.GET("/validation-rules", handlers.HandleRules)
	cc.GET("/audit", handlers.HandleListAudit)

	cc.GET("/health", handlers.HandleHealth)
	cc.GET("/ready", handlers.HandleReady)
}
