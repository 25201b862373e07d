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
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// CatalogVersion is the version of the built-in rule catalog.
const CatalogVersion = "2025.06.1"

// DeprecatedModule maps a module identifier to replacement advice.
type DeprecatedModule struct {
	Module string `yaml:"module" json:"module"`
	Advice string `yaml:"advice" json:"advice"`
}

// CatalogSpec is the declarative form of a rule catalog. It is what gets
// read from a catalog override file.
type CatalogSpec struct {
	Version            string             `yaml:"version" json:"version"`
	DeprecatedModules  []DeprecatedModule `yaml:"deprecated_modules" json:"deprecated_modules"`
	DangerousFunctions []string           `yaml:"dangerous_functions" json:"dangerous_functions"`
	ApprovedModules    []string           `yaml:"approved_modules" json:"approved_modules"`
}

// DefaultCatalogSpec returns the built-in catalog tables.
func DefaultCatalogSpec() CatalogSpec {
	return CatalogSpec{
		Version: CatalogVersion,
		DeprecatedModules: []DeprecatedModule{
			{Module: "imp", Advice: "Use importlib instead"},
			{Module: "optparse", Advice: "Use argparse instead"},
			{Module: "platform.dist", Advice: "Use platform.freedesktop_os_release instead"},
			{Module: "distutils", Advice: "Use setuptools instead"},
			{Module: "asyncore", Advice: "Use asyncio instead"},
			{Module: "asynchat", Advice: "Use asyncio instead"},
		},
		DangerousFunctions: []string{"eval", "exec", "compile", "__import__", "open"},
		ApprovedModules: []string{
			"requests", "httpx", "pandas", "numpy", "json", "datetime",
			"os", "sys", "logging", "re", "urllib", "base64", "hashlib",
			"boto3", "sqlalchemy", "pydantic", "fastapi", "flask",
		},
	}
}

// Catalog holds the rule tables consumed by the passes.
//
// Thread Safety: A Catalog is immutable after NewCatalog returns and is
// safe for unlimited concurrent readers. Accessors return copies.
type Catalog struct {
	version    string
	deprecated map[string]string
	depOrder   []string
	dangerous  []string
	approved   map[string]struct{}
}

// NewCatalog builds an immutable catalog from a spec.
//
// Description:
//
//	Validates that every identifier is non-empty and free of whitespace,
//	and that no identifier is listed twice. An empty version falls back
//	to CatalogVersion.
//
// Outputs:
//
//	*Catalog - The catalog
//	error - Non-nil if the spec is malformed
func NewCatalog(spec CatalogSpec) (*Catalog, error) {
	c := &Catalog{
		version:    spec.Version,
		deprecated: make(map[string]string, len(spec.DeprecatedModules)),
		approved:   make(map[string]struct{}, len(spec.ApprovedModules)),
	}
	if c.version == "" {
		c.version = CatalogVersion
	}

	for _, dm := range spec.DeprecatedModules {
		if err := checkIdentifier(dm.Module); err != nil {
			return nil, fmt.Errorf("deprecated module: %w", err)
		}
		if _, dup := c.deprecated[dm.Module]; dup {
			return nil, fmt.Errorf("deprecated module %q listed twice", dm.Module)
		}
		c.deprecated[dm.Module] = dm.Advice
		c.depOrder = append(c.depOrder, dm.Module)
	}

	seen := make(map[string]bool, len(spec.DangerousFunctions))
	for _, fn := range spec.DangerousFunctions {
		if err := checkIdentifier(fn); err != nil {
			return nil, fmt.Errorf("dangerous function: %w", err)
		}
		if seen[fn] {
			return nil, fmt.Errorf("dangerous function %q listed twice", fn)
		}
		seen[fn] = true
		c.dangerous = append(c.dangerous, fn)
	}

	for _, m := range spec.ApprovedModules {
		if err := checkIdentifier(m); err != nil {
			return nil, fmt.Errorf("approved module: %w", err)
		}
		c.approved[m] = struct{}{}
	}

	return c, nil
}

var errEmptyIdentifier = errors.New("identifier must not be empty")

func checkIdentifier(id string) error {
	if id == "" {
		return errEmptyIdentifier
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return fmt.Errorf("identifier %q contains whitespace", id)
	}
	return nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := NewCatalog(DefaultCatalogSpec())
	if err != nil {
		panic(fmt.Sprintf("built-in catalog is invalid: %v", err))
	}
	return c
})

// DefaultCatalog returns the process-wide built-in catalog. It is built on
// first use and shared afterwards.
func DefaultCatalog() *Catalog {
	return defaultCatalog()
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// Replacement returns the advice for a deprecated module, if it is listed.
// Matching is exact on the full dotted identifier.
func (c *Catalog) Replacement(module string) (string, bool) {
	advice, ok := c.deprecated[module]
	return advice, ok
}

// DeprecatedModules returns the deprecated table in declaration order.
func (c *Catalog) DeprecatedModules() []DeprecatedModule {
	out := make([]DeprecatedModule, 0, len(c.depOrder))
	for _, m := range c.depOrder {
		out = append(out, DeprecatedModule{Module: m, Advice: c.deprecated[m]})
	}
	return out
}

// DangerousFunctions returns the dangerous-function identifiers in
// declaration order. The order determines diagnostic order within a line.
func (c *Catalog) DangerousFunctions() []string {
	out := make([]string, len(c.dangerous))
	copy(out, c.dangerous)
	return out
}

// IsApproved reports whether a top-level module is on the allowlist.
func (c *Catalog) IsApproved(module string) bool {
	top, _, _ := strings.Cut(module, ".")
	_, ok := c.approved[top]
	return ok
}

// ApprovedModules returns the allowlist sorted alphabetically.
func (c *Catalog) ApprovedModules() []string {
	out := make([]string, 0, len(c.approved))
	for m := range c.approved {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Spec returns the declarative form of the catalog.
func (c *Catalog) Spec() CatalogSpec {
	return CatalogSpec{
		Version:            c.version,
		DeprecatedModules:  c.DeprecatedModules(),
		DangerousFunctions: c.DangerousFunctions(),
		ApprovedModules:    c.ApprovedModules(),
	}
}
