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

import "strings"

var httpClientIdioms = []string{"requests", "httpx", "urlopen("}

// GenerateSuggestions derives improvement hints from source and the
// accumulated diagnostics.
//
// Description:
//
//	Deterministic and order-preserving. Triggers, in order:
//	1. no "import logging" anywhere -> improvement (logging setup)
//	2. an HTTP client idiom without any "timeout" -> performance
//	3. any error-severity finding -> critical
//
// Suggestions never affect validity.
func GenerateSuggestions(source string, diags []Diagnostic) []Suggestion {
	suggestions := make([]Suggestion, 0, 3)

	if !strings.Contains(source, "import logging") {
		suggestions = append(suggestions, Suggestion{
			Category: CategoryImprovement,
			Message:  "Consider adding logging for better monitoring and debugging.",
			Example:  "import logging\nlogging.basicConfig(level=logging.INFO)",
		})
	}

	if usesHTTPClient(source) && !strings.Contains(source, "timeout") {
		suggestions = append(suggestions, Suggestion{
			Category: CategoryPerformance,
			Message:  "Add timeout parameters to HTTP requests for better reliability.",
			Example:  "response = requests.get(url, timeout=30)",
		})
	}

	if HasErrors(diags) {
		suggestions = append(suggestions, Suggestion{
			Category: CategoryCritical,
			Message:  "Fix all error-level issues before deploying to production.",
		})
	}

	return suggestions
}

func usesHTTPClient(source string) bool {
	for _, idiom := range httpClientIdioms {
		if strings.Contains(source, idiom) {
			return true
		}
	}
	return false
}
