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
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Same(t, c, DefaultCatalog())
	assert.Equal(t, CatalogVersion, c.Version())

	advice, ok := c.Replacement("imp")
	assert.True(t, ok)
	assert.Equal(t, "Use importlib instead", advice)

	_, ok = c.Replacement("importlib")
	assert.False(t, ok)

	assert.Equal(t, []string{"eval", "exec", "compile", "__import__", "open"}, c.DangerousFunctions())
	assert.Len(t, c.DeprecatedModules(), 6)
	assert.Len(t, c.ApprovedModules(), 18)
}

func TestCatalog_IsApproved(t *testing.T) {
	c := DefaultCatalog()

	assert.True(t, c.IsApproved("os"))
	assert.True(t, c.IsApproved("os.path"))
	assert.True(t, c.IsApproved("urllib.request"))
	assert.False(t, c.IsApproved("imp"))
	assert.False(t, c.IsApproved("osx"))
}

func TestCatalog_AccessorsReturnCopies(t *testing.T) {
	c := DefaultCatalog()

	funcs := c.DangerousFunctions()
	funcs[0] = "tampered"
	assert.Equal(t, "eval", c.DangerousFunctions()[0])

	mods := c.DeprecatedModules()
	mods[0].Advice = "tampered"
	advice, _ := c.Replacement(mods[0].Module)
	assert.NotEqual(t, "tampered", advice)
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		spec CatalogSpec
	}{
		{"empty deprecated", CatalogSpec{DeprecatedModules: []DeprecatedModule{{Module: ""}}}},
		{"whitespace deprecated", CatalogSpec{DeprecatedModules: []DeprecatedModule{{Module: "a b"}}}},
		{"duplicate deprecated", CatalogSpec{DeprecatedModules: []DeprecatedModule{{Module: "imp"}, {Module: "imp"}}}},
		{"empty dangerous", CatalogSpec{DangerousFunctions: []string{""}}},
		{"duplicate dangerous", CatalogSpec{DangerousFunctions: []string{"eval", "eval"}}},
		{"whitespace approved", CatalogSpec{ApprovedModules: []string{"os\n"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCatalog(tt.spec)
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestCatalog_SpecRoundTrip(t *testing.T) {
	spec := DefaultCatalogSpec()
	c, err := NewCatalog(spec)
	require.NoError(t, err)

	rebuilt, err := NewCatalog(c.Spec())
	require.NoError(t, err)
	assert.Equal(t, c.Spec(), rebuilt.Spec())

	empty, err := NewCatalog(CatalogSpec{})
	require.NoError(t, err)
	assert.Equal(t, CatalogVersion, empty.Version())
}
