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
	"testing"

	"github.com/stretchr/testify/assert"
)

func categories(s []Suggestion) []SuggestionCategory {
	out := make([]SuggestionCategory, len(s))
	for i := range s {
		out[i] = s[i].Category
	}
	return out
}

func TestGenerateSuggestions(t *testing.T) {
	credential := Diagnostic{Line: 1, Severity: SeverityError, Rule: RuleHardcodedSecret}
	warning := Diagnostic{Line: 1, Severity: SeverityWarning, Rule: RuleDangerousFunction}

	tests := []struct {
		name   string
		source string
		diags  []Diagnostic
		want   []SuggestionCategory
	}{
		{"nothing", "import logging\n", nil, []SuggestionCategory{}},
		{"no logging", "x = 1", nil, []SuggestionCategory{CategoryImprovement}},
		{"requests without timeout", "import logging\nimport requests\nrequests.get(u)\n", nil, []SuggestionCategory{CategoryPerformance}},
		{"requests with timeout", "import logging\nimport requests\nrequests.get(u, timeout=5)\n", nil, []SuggestionCategory{}},
		{"urlopen", "import logging\nurlopen(u)\n", nil, []SuggestionCategory{CategoryPerformance}},
		{"warning only", "import logging\n", []Diagnostic{warning}, []SuggestionCategory{}},
		{
			"all three in order",
			"import httpx\nhttpx.get(u)\n",
			[]Diagnostic{warning, credential},
			[]SuggestionCategory{CategoryImprovement, CategoryPerformance, CategoryCritical},
		},
		{
			"credential gets only critical",
			"import logging\n",
			[]Diagnostic{credential},
			[]SuggestionCategory{CategoryCritical},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, categories(GenerateSuggestions(tt.source, tt.diags)))
		})
	}
}

func TestGenerateSuggestions_Examples(t *testing.T) {
	s := GenerateSuggestions("requests.post(u)", []Diagnostic{{Severity: SeverityError}})

	assert.Equal(t, "import logging\nlogging.basicConfig(level=logging.INFO)", s[0].Example)
	assert.Equal(t, "response = requests.get(url, timeout=30)", s[1].Example)
	assert.Equal(t, CategoryCritical, s[2].Category)
	assert.Empty(t, s[2].Example)
}
