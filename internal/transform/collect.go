package transform

import (
	"slices"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/JakeChampion/unassertify/internal/signature"
	"github.com/JakeChampion/unassertify/internal/sourcemap"
)

// collector walks one tree and records the edits that strip it.
type collector struct {
	source []byte
	set    *signature.Set
	edits  []edit
}

// collectModules finds declarations that load an assertion module, removes
// them, and teaches the signature set the local names they bind:
//
//	import assert from 'assert'
//	import { equal as eq } from 'node:assert'
//	const assert = require('assert')
//	const { ok, strict: a } = require('power-assert')
//	require('assert')
func (c *collector) collectModules(node *tree_sitter.Node) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "import_statement":
		source := node.ChildByFieldName("source")
		if source != nil && c.set.IsModule(stringValue(source, c.source)) {
			c.removeStatement(node, editImport)
			c.bindImportClause(node)
			return
		}
		// TypeScript: import assert = require('assert')
		for i := uint(0); i < node.NamedChildCount(); i++ {
			clause := node.NamedChild(i)
			if clause.Kind() != "import_require_clause" {
				continue
			}
			src := clause.ChildByFieldName("source")
			if src == nil || !c.set.IsModule(stringValue(src, c.source)) {
				continue
			}
			c.removeStatement(node, editImport)
			if id := firstNamed(clause); id != nil && id.Kind() == "identifier" {
				c.set = c.set.Rebind([]string{signature.DefaultRoot}, []string{nodeText(id, c.source)})
			}
			return
		}

	case "variable_declaration", "lexical_declaration":
		var declarators, targets []*tree_sitter.Node
		for i := uint(0); i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if child.Kind() != "variable_declarator" {
				continue
			}
			declarators = append(declarators, child)
			if _, ok := c.requirePath(child.ChildByFieldName("value")); ok {
				targets = append(targets, child)
			}
		}
		if len(targets) > 0 {
			for _, d := range targets {
				path, _ := c.requirePath(d.ChildByFieldName("value"))
				c.bindPattern(d.ChildByFieldName("name"), modulePrefix(path))
			}
			if len(targets) == len(declarators) {
				c.removeStatement(node, editImport)
			} else {
				for _, d := range targets {
					c.removeDeclarator(d)
				}
			}
			return
		}

	case "expression_statement":
		if expr := firstNamed(node); expr != nil {
			if _, ok := c.requirePath(expr); ok {
				c.removeStatement(node, editImport)
				return
			}
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		c.collectModules(node.Child(i))
	}
}

// collectRemovals walks the tree for calls matching the signature set and
// for stale sourceMappingURL comments.
func (c *collector) collectRemovals(node *tree_sitter.Node) {
	if node == nil {
		return
	}

	switch node.Kind() {
	case "call_expression":
		if c.matchesSignature(node) {
			c.removeEnclosing(node)
		}
	case "comment":
		if sourcemap.IsComment([]byte(nodeText(node, c.source))) {
			c.remove(node, editComment)
			return
		}
	}

	for i := uint(0); i < node.ChildCount(); i++ {
		c.collectRemovals(node.Child(i))
	}
}

// matchesSignature reports whether call has the callee path and arity of
// any signature in the set.
func (c *collector) matchesSignature(call *tree_sitter.Node) bool {
	path, ok := calleePath(call.ChildByFieldName("function"), c.source)
	if !ok {
		return false
	}
	args := call.ChildByFieldName("arguments")
	if args == nil || args.Kind() != "arguments" {
		return false
	}

	n, spread := 0, false
	for i := uint(0); i < args.NamedChildCount(); i++ {
		switch args.NamedChild(i).Kind() {
		case "comment":
			continue
		case "spread_element":
			spread = true
		}
		n++
	}

	for _, sig := range c.set.Signatures() {
		if !slices.Equal(sig.Callee, path) {
			continue
		}
		if sig.AcceptsArity(n) || (spread && n-1 <= len(sig.Params)) {
			return true
		}
	}
	return false
}

// removeEnclosing removes the smallest statement that contains call. An
// arrow function whose expression body is the call gets an empty block body
// instead, so `xs.forEach(x => assert(x))` keeps its shape.
func (c *collector) removeEnclosing(call *tree_sitter.Node) {
	current := call
	for parent := call.Parent(); parent != nil; current, parent = parent, parent.Parent() {
		if parent.Kind() == "arrow_function" {
			body := parent.ChildByFieldName("body")
			if body != nil && sameNode(body, current) && body.Kind() != "statement_block" {
				c.replace(body, "{}", editCall)
				return
			}
		}
		if isStatement(parent.Kind()) {
			stmt := parent
			for up := stmt.Parent(); up != nil && up.Kind() == "export_statement"; up = up.Parent() {
				stmt = up
			}
			c.removeStatement(stmt, editCall)
			return
		}
	}
}

// removeStatement deletes stmt, or replaces it with an empty statement when
// it is the braceless body of a control structure.
func (c *collector) removeStatement(stmt *tree_sitter.Node, kind editKind) {
	if parent := stmt.Parent(); parent != nil && isBracelessBody(parent.Kind()) {
		c.replace(stmt, ";", kind)
		return
	}
	c.remove(stmt, kind)
}

// removeDeclarator deletes one declarator of a multi-declarator declaration
// together with the comma that separates it from its neighbour.
func (c *collector) removeDeclarator(d *tree_sitter.Node) {
	start, end := int(d.StartByte()), int(d.EndByte())
	if next := d.NextSibling(); next != nil && next.Kind() == "," {
		end = int(next.EndByte())
		for end < len(c.source) && isBlank(c.source[end]) {
			end++
		}
	} else if prev := d.PrevSibling(); prev != nil && prev.Kind() == "," {
		start = int(prev.StartByte())
	}
	c.edits = append(c.edits, edit{start: start, end: end, kind: editImport})
}

func (c *collector) remove(node *tree_sitter.Node, kind editKind) {
	start, end := widen(c.source, int(node.StartByte()), int(node.EndByte()))
	c.edits = append(c.edits, edit{start: start, end: end, kind: kind})
}

func (c *collector) replace(node *tree_sitter.Node, text string, kind editKind) {
	c.edits = append(c.edits, edit{
		start: int(node.StartByte()),
		end:   int(node.EndByte()),
		text:  text,
		kind:  kind,
	})
}

// requirePath reports whether expr loads an assertion module through
// require(), and returns the member path read from the result:
// require('assert') -> [], require('assert').strict -> [strict].
func (c *collector) requirePath(expr *tree_sitter.Node) ([]string, bool) {
	if expr == nil {
		return nil, false
	}
	switch expr.Kind() {
	case "parenthesized_expression":
		return c.requirePath(firstNamed(expr))
	case "member_expression":
		prop := expr.ChildByFieldName("property")
		if prop == nil || prop.Kind() != "property_identifier" {
			return nil, false
		}
		path, ok := c.requirePath(expr.ChildByFieldName("object"))
		if !ok {
			return nil, false
		}
		return append(path, nodeText(prop, c.source)), true
	case "call_expression":
		fn := expr.ChildByFieldName("function")
		if fn == nil || fn.Kind() != "identifier" || nodeText(fn, c.source) != "require" {
			return nil, false
		}
		args := expr.ChildByFieldName("arguments")
		if args == nil || args.NamedChildCount() != 1 {
			return nil, false
		}
		if c.set.IsModule(stringValue(args.NamedChild(0), c.source)) {
			return []string{}, true
		}
	}
	return nil, false
}

// bindPattern rebinds the signature set for the names a declarator binds.
// prefix is the signature path of the value being destructured.
func (c *collector) bindPattern(pattern *tree_sitter.Node, prefix []string) {
	if pattern == nil {
		return
	}
	switch pattern.Kind() {
	case "identifier":
		c.set = c.set.Rebind(prefix, []string{nodeText(pattern, c.source)})
	case "object_pattern":
		for i := uint(0); i < pattern.NamedChildCount(); i++ {
			prop := pattern.NamedChild(i)
			switch prop.Kind() {
			case "shorthand_property_identifier_pattern":
				name := nodeText(prop, c.source)
				c.set = c.set.Rebind(member(prefix, name), []string{name})
			case "object_assignment_pattern":
				left := prop.ChildByFieldName("left")
				if left != nil && left.Kind() == "shorthand_property_identifier_pattern" {
					name := nodeText(left, c.source)
					c.set = c.set.Rebind(member(prefix, name), []string{name})
				}
			case "pair_pattern":
				key := prop.ChildByFieldName("key")
				if key == nil || key.Kind() != "property_identifier" {
					continue
				}
				c.bindPattern(prop.ChildByFieldName("value"), member(prefix, nodeText(key, c.source)))
			}
		}
	}
}

// bindImportClause rebinds the signature set for the names an assertion
// module import introduces.
func (c *collector) bindImportClause(stmt *tree_sitter.Node) {
	root := []string{signature.DefaultRoot}
	for i := uint(0); i < stmt.NamedChildCount(); i++ {
		clause := stmt.NamedChild(i)
		if clause.Kind() != "import_clause" {
			continue
		}
		for j := uint(0); j < clause.NamedChildCount(); j++ {
			part := clause.NamedChild(j)
			switch part.Kind() {
			case "identifier":
				c.set = c.set.Rebind(root, []string{nodeText(part, c.source)})
			case "namespace_import":
				if id := lastNamed(part); id != nil {
					c.set = c.set.Rebind(root, []string{nodeText(id, c.source)})
				}
			case "named_imports":
				for k := uint(0); k < part.NamedChildCount(); k++ {
					spec := part.NamedChild(k)
					if spec.Kind() != "import_specifier" {
						continue
					}
					name := spec.ChildByFieldName("name")
					if name == nil {
						continue
					}
					imported := stringValue(name, c.source)
					local := imported
					if alias := spec.ChildByFieldName("alias"); alias != nil {
						local = nodeText(alias, c.source)
					}
					c.set = c.set.Rebind(member(root, imported), []string{local})
				}
			}
		}
	}
}

// modulePrefix maps a member path read from an assertion module to the
// signature prefix it stands for.
func modulePrefix(path []string) []string {
	prefix := []string{signature.DefaultRoot}
	for _, seg := range path {
		prefix = member(prefix, seg)
	}
	return prefix
}

// member extends a signature prefix by one property. The strict and default
// exports of an assertion module are the module itself.
func member(prefix []string, name string) []string {
	if name == "strict" || name == "default" {
		return prefix
	}
	return append(slices.Clone(prefix), name)
}

// calleePath flattens an identifier or a chain of dotted member accesses.
func calleePath(node *tree_sitter.Node, source []byte) ([]string, bool) {
	if node == nil {
		return nil, false
	}
	switch node.Kind() {
	case "identifier":
		return []string{nodeText(node, source)}, true
	case "member_expression":
		prop := node.ChildByFieldName("property")
		if prop == nil || prop.Kind() != "property_identifier" {
			return nil, false
		}
		path, ok := calleePath(node.ChildByFieldName("object"), source)
		if !ok {
			return nil, false
		}
		return append(path, nodeText(prop, source)), true
	}
	return nil, false
}

// stringValue returns the contents of a string literal or a template
// literal without substitutions, and the identifier text otherwise.
func stringValue(node *tree_sitter.Node, source []byte) string {
	text := nodeText(node, source)
	switch node.Kind() {
	case "string":
		if len(text) >= 2 {
			return text[1 : len(text)-1]
		}
	case "template_string":
		if len(text) >= 2 && !strings.Contains(text, "${") {
			return text[1 : len(text)-1]
		}
		return ""
	case "identifier":
		return text
	}
	return ""
}

// isStatement reports whether kind is a statement list item that can be
// removed on its own.
func isStatement(kind string) bool {
	switch kind {
	case "variable_declaration", "lexical_declaration",
		"function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration":
		return true
	case "statement_block":
		return false
	}
	return strings.HasSuffix(kind, "_statement")
}

// isBracelessBody reports whether a statement directly under a node of kind
// occupies a syntactic statement slot that cannot be left empty.
func isBracelessBody(kind string) bool {
	switch kind {
	case "if_statement", "else_clause",
		"for_statement", "for_in_statement", "while_statement", "do_statement",
		"labeled_statement", "with_statement":
		return true
	}
	return false
}

func sameNode(a, b *tree_sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Kind() == b.Kind()
}

func firstNamed(node *tree_sitter.Node) *tree_sitter.Node {
	for i := uint(0); i < node.NamedChildCount(); i++ {
		if child := node.NamedChild(i); child.Kind() != "comment" {
			return child
		}
	}
	return nil
}

func lastNamed(node *tree_sitter.Node) *tree_sitter.Node {
	for i := node.NamedChildCount(); i > 0; i-- {
		if child := node.NamedChild(i - 1); child.Kind() != "comment" {
			return child
		}
	}
	return nil
}
