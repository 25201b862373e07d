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
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// SyntaxFailure describes why source text could not be parsed.
//
// Line is the 1-indexed line of the first error, or 0 when the failure is
// not attributable to a line (malformed input, parser faults).
type SyntaxFailure struct {
	Line    int
	Message string
}

// Error implements error.
func (f *SyntaxFailure) Error() string {
	if f.Line > 0 {
		return fmt.Sprintf("line %d: %s", f.Line, f.Message)
	}
	return f.Message
}

// AsSyntaxFailure extracts a *SyntaxFailure from err.
func AsSyntaxFailure(err error) (*SyntaxFailure, bool) {
	var sf *SyntaxFailure
	if errors.As(err, &sf) {
		return sf, true
	}
	return nil, false
}

// SyntaxTree is a parsed Python module.
//
// Thread Safety: Not safe for concurrent use. Callers must Close it.
type SyntaxTree struct {
	tree   *sitter.Tree
	source []byte
}

// Root returns the module node.
func (t *SyntaxTree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Source returns the bytes the tree was parsed from.
func (t *SyntaxTree) Source() []byte {
	return t.source
}

// Text returns the source text spanned by node.
func (t *SyntaxTree) Text(node *sitter.Node) string {
	return node.Content(t.source)
}

// Close releases the underlying tree-sitter tree.
func (t *SyntaxTree) Close() {
	if t != nil && t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// SourceParser turns source text into a syntax tree.
type SourceParser interface {
	Parse(source string) (*SyntaxTree, error)
}

// PythonParser is the tree-sitter backed parser adapter.
//
// Thread Safety: Safe for concurrent use. A tree-sitter parser is created
// per call.
type PythonParser struct {
	// parseTree is replaced in tests to inject parser faults.
	parseTree func(src []byte) (*sitter.Tree, error)
}

// NewPythonParser creates the parser adapter.
func NewPythonParser() *PythonParser {
	return &PythonParser{parseTree: parseWithTreeSitter}
}

func parseWithTreeSitter(src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())
	return parser.ParseCtx(context.Background(), nil, src)
}

// Parse parses Python source text.
//
// Description:
//
//	Returns a SyntaxTree on success. Every failure, including parser
//	panics and malformed input, is returned as a *SyntaxFailure; nothing
//	escapes this boundary. Syntax errors carry the line of the first
//	ERROR or MISSING node. Trees that parse cleanly are then checked for
//	constructs the grammar tolerates but Python 3 rejects (see
//	checkStructure). Everything else is reported at line 0.
//
// Outputs:
//
//	*SyntaxTree - The tree, nil on failure. Caller must Close it.
//	error - A *SyntaxFailure, or nil
func (p *PythonParser) Parse(source string) (tree *SyntaxTree, err error) {
	defer func() {
		if r := recover(); r != nil {
			tree.Close()
			tree = nil
			err = &SyntaxFailure{Message: fmt.Sprintf("Parse Error: parser fault: %v", r)}
		}
	}()

	if strings.IndexByte(source, 0) >= 0 {
		return nil, &SyntaxFailure{Message: "Parse Error: source code string cannot contain null bytes"}
	}
	if !utf8.ValidString(source) {
		return nil, &SyntaxFailure{Message: "Parse Error: source is not valid UTF-8"}
	}

	src := []byte(source)
	ts, perr := p.parseTree(src)
	if perr != nil {
		return nil, &SyntaxFailure{Message: fmt.Sprintf("Parse Error: %v", perr)}
	}
	if ts == nil {
		return nil, &SyntaxFailure{Message: "Parse Error: parser returned no tree"}
	}
	tree = &SyntaxTree{tree: ts, source: src}

	root := tree.Root()
	if root.HasError() {
		errNode := findFirstError(root)
		failure := &SyntaxFailure{Message: "Syntax Error: invalid syntax"}
		if errNode != nil {
			failure.Line = int(errNode.StartPoint().Row) + 1
			failure.Message = describeSyntaxError(errNode, src)
		}
		tree.Close()
		return nil, failure
	}
	if failure := checkStructure(root, src); failure != nil {
		tree.Close()
		return nil, failure
	}

	return tree, nil
}

// findFirstError returns the first ERROR or MISSING node in document order.
func findFirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := findFirstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

const maxSnippet = 40

func describeSyntaxError(node *sitter.Node, src []byte) string {
	if node.IsMissing() {
		return fmt.Sprintf("Syntax Error: expected '%s'", node.Type())
	}

	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(src)) {
		end = uint32(len(src))
	}
	if start >= end {
		return "Syntax Error: invalid syntax"
	}

	snippet := string(src[start:end])
	if idx := strings.IndexByte(snippet, '\n'); idx >= 0 {
		snippet = snippet[:idx]
	}
	snippet = strings.TrimSpace(snippet)
	if snippet == "" {
		return "Syntax Error: invalid syntax"
	}
	if r := []rune(snippet); len(r) > maxSnippet {
		snippet = string(r[:maxSnippet]) + "..."
	}
	return fmt.Sprintf("Syntax Error: invalid syntax near '%s'", snippet)
}

// checkStructure rejects trees the tree-sitter grammar accepts but the
// Python 3 compiler does not: Python 2 print/exec statements, inconsistent
// block indentation and non-default parameters after default ones. It
// returns the earliest failure in source order, or nil.
func checkStructure(root *sitter.Node, src []byte) *SyntaxFailure {
	var first *SyntaxFailure
	var firstPos sitter.Point

	report := func(node *sitter.Node, msg string) {
		pos := node.StartPoint()
		if first == nil || pos.Row < firstPos.Row || (pos.Row == firstPos.Row && pos.Column < firstPos.Column) {
			first = &SyntaxFailure{Line: int(pos.Row) + 1, Message: msg}
			firstPos = pos
		}
	}

	var walk func(node *sitter.Node)
	walk = func(node *sitter.Node) {
		switch node.Type() {
		case "print_statement":
			report(node, "Syntax Error: Missing parentheses in call to 'print'")
		case "exec_statement":
			report(node, "Syntax Error: Missing parentheses in call to 'exec'")
		case "module":
			checkIndentation(node, src, 0, report)
		case "block":
			checkIndentation(node, src, -1, report)
		case "parameters", "lambda_parameters":
			checkParameterOrder(node, report)
		}
		for i := 0; i < int(node.NamedChildCount()); i++ {
			walk(node.NamedChild(i))
		}
	}
	walk(root)
	return first
}

// checkIndentation verifies that every statement beginning a line inside
// container starts at the same column. want is the required column, or -1
// to take it from the first such statement. Statements that share a line
// with earlier code (after ";" or an inline block header) are skipped.
func checkIndentation(container *sitter.Node, src []byte, want int, report func(*sitter.Node, string)) {
	for i := 0; i < int(container.NamedChildCount()); i++ {
		stmt := container.NamedChild(i)
		switch stmt.Type() {
		case "comment", "line_continuation":
			continue
		}
		if !startsLine(stmt, src) {
			continue
		}
		col := int(stmt.StartPoint().Column)
		switch {
		case want < 0:
			want = col
		case col > want:
			report(stmt, "Syntax Error: unexpected indent")
		case col < want:
			report(stmt, "Syntax Error: unindent does not match any outer indentation level")
		}
	}
}

// startsLine reports whether only whitespace precedes node on its line.
func startsLine(node *sitter.Node, src []byte) bool {
	start := int(node.StartByte())
	if start > len(src) {
		return false
	}
	for i := start - 1; i >= 0; i-- {
		switch src[i] {
		case '\n':
			return true
		case ' ', '\t', '\f':
		default:
			return false
		}
	}
	return true
}

// checkParameterOrder rejects a positional parameter without a default
// that follows one with a default. A bare "*" or "*args" starts the
// keyword-only section, where defaults are optional again.
func checkParameterOrder(params *sitter.Node, report func(*sitter.Node, string)) {
	seenDefault := false
	for i := 0; i < int(params.NamedChildCount()); i++ {
		param := params.NamedChild(i)
		kind := param.Type()
		if kind == "typed_parameter" && param.NamedChildCount() > 0 {
			switch inner := param.NamedChild(0).Type(); inner {
			case "list_splat_pattern", "dictionary_splat_pattern":
				kind = inner
			}
		}
		switch kind {
		case "default_parameter", "typed_default_parameter":
			seenDefault = true
		case "list_splat_pattern", "keyword_separator", "dictionary_splat_pattern":
			return
		case "identifier", "typed_parameter":
			if seenDefault {
				report(param, "Syntax Error: non-default argument follows default argument")
				return
			}
		}
	}
}
