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
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// ImportRef is one imported module identifier found in a syntax tree.
type ImportRef struct {
	Module string
	Line   int
}

// CollectImports walks the whole tree in document order and returns every
// literal module identifier named by an import or from-import statement,
// including imports nested in functions and classes.
//
// For "import a.b as c" the identifier is "a.b". For "from .x import y" the
// identifier is "x"; a bare "from . import y" yields nothing. Dynamic
// imports (importlib.import_module, __import__) are not import statements
// and are never reported.
func CollectImports(tree *SyntaxTree) []ImportRef {
	if tree == nil {
		return nil
	}
	var refs []ImportRef
	walkImports(tree.Root(), tree.Source(), &refs, 0)
	return refs
}

// maxWalkDepth bounds recursion on pathological nesting.
const maxWalkDepth = 2000

func walkImports(node *sitter.Node, src []byte, refs *[]ImportRef, depth int) {
	if node == nil || depth > maxWalkDepth {
		return
	}

	switch node.Type() {
	case "import_statement":
		line := int(node.StartPoint().Row) + 1
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if name := importedName(node.NamedChild(i), src); name != "" {
				*refs = append(*refs, ImportRef{Module: name, Line: line})
			}
		}
		return
	case "import_from_statement":
		line := int(node.StartPoint().Row) + 1
		if name := fromModuleName(node.ChildByFieldName("module_name"), src); name != "" {
			*refs = append(*refs, ImportRef{Module: name, Line: line})
		}
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		walkImports(node.NamedChild(i), src, refs, depth+1)
	}
}

// importedName extracts the module from a dotted_name or aliased_import.
func importedName(node *sitter.Node, src []byte) string {
	switch node.Type() {
	case "dotted_name":
		return normalizeDotted(node.Content(src))
	case "aliased_import":
		if name := node.ChildByFieldName("name"); name != nil {
			return normalizeDotted(name.Content(src))
		}
	}
	return ""
}

// fromModuleName extracts the module of a from-import, dropping the
// leading dots of a relative import.
func fromModuleName(node *sitter.Node, src []byte) string {
	if node == nil {
		return ""
	}
	switch node.Type() {
	case "dotted_name":
		return normalizeDotted(node.Content(src))
	case "relative_import":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if child.Type() == "dotted_name" {
				return normalizeDotted(child.Content(src))
			}
		}
	}
	return ""
}

// normalizeDotted removes whitespace and line continuations that the
// grammar allows inside a dotted name (e.g. "a . b").
func normalizeDotted(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\\' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ModuleChecker reports imports of deprecated modules.
type ModuleChecker struct {
	catalog *Catalog
}

// NewModuleChecker creates a checker backed by catalog.
func NewModuleChecker(catalog *Catalog) *ModuleChecker {
	return &ModuleChecker{catalog: catalog}
}

// Check returns one warning per import of a deprecated module.
func (m *ModuleChecker) Check(tree *SyntaxTree) []Diagnostic {
	var diags []Diagnostic
	for _, ref := range CollectImports(tree) {
		advice, ok := m.catalog.Replacement(ref.Module)
		if !ok {
			continue
		}
		diags = append(diags, Diagnostic{
			Line:     ref.Line,
			Message:  fmt.Sprintf("Deprecated module '%s': %s", ref.Module, advice),
			Severity: SeverityWarning,
			Rule:     RuleDeprecatedModule,
		})
	}
	return diags
}
