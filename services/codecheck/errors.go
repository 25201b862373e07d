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

import "errors"

// Sentinel errors for the codecheck service.
var (
	// ErrSourceTooLarge indicates the submitted source exceeds the size limit.
	ErrSourceTooLarge = errors.New("source exceeds size limit")

	// ErrAuditDisabled indicates no audit store is configured.
	ErrAuditDisabled = errors.New("audit store not configured")
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeSourceTooLarge   = "SOURCE_TOO_LARGE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeAuditDisabled    = "AUDIT_DISABLED"
	CodeAuditFailed      = "AUDIT_QUERY_FAILED"
)
