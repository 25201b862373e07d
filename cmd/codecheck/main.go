// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command codecheck validates generated Python code.
//
// Usage:
//
//	codecheck serve --config codecheck.yaml
//	codecheck check --stage final_with_credentials handler.py
//	cat handler.py | codecheck check -
//	codecheck rules
//	codecheck audit list --actor alice --limit 20
//
// Example requests against a running server:
//
//	curl -X POST http://localhost:8090/v1/codecheck/validate \
//	  -H "Content-Type: application/json" \
//	  -H "X-Actor-ID: alice" \
//	  -d '{"code_to_validate": "import imp", "validation_stage": "initial_skeleton"}'
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errInvalidCode) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
