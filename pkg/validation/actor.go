// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Package validation provides input validation for caller-supplied
// identifiers that end up in storage keys, log fields and filters.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxActorIDLength bounds an actor identifier.
const MaxActorIDLength = 128

// ErrInvalidActor indicates a malformed actor identifier.
var ErrInvalidActor = errors.New("invalid actor id")

// actorPattern matches user names, emails and service principals.
// Allows: letters, digits, dot, underscore, at, colon, plus, hyphen.
// Must start with a letter or digit.
var actorPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@:+\-]*$`)

// ValidateActorID validates a non-empty actor identifier.
//
// Valid actors:
//   - 1-128 bytes
//   - Letters and digits, plus . _ @ : + -
//   - No whitespace or control characters
//
// Example:
//
//	if err := validation.ValidateActorID(actor); err != nil {
//	    return fmt.Errorf("audit filter: %w", err)
//	}
func ValidateActorID(actor string) error {
	if actor == "" {
		return fmt.Errorf("%w: empty", ErrInvalidActor)
	}
	if len(actor) > MaxActorIDLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidActor, MaxActorIDLength)
	}
	if !actorPattern.MatchString(actor) {
		return fmt.Errorf("%w: %q (letters, digits and . _ @ : + - only)", ErrInvalidActor, actor)
	}
	return nil
}

// SanitizeActorID trims surrounding whitespace and validates the result.
// An empty or all-whitespace input yields "" and no error, meaning the
// caller is anonymous.
func SanitizeActorID(actor string) (string, error) {
	trimmed := strings.TrimSpace(actor)
	if trimmed == "" {
		return "", nil
	}
	if err := ValidateActorID(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
