// Package transform removes assertion statements from JavaScript and
// TypeScript source using tree-sitter.
//
// It operates on raw source bytes: matched statements are cut out by
// byte range, guided by the concrete syntax tree, and every other byte of
// the input (formatting, comments, a leading hashbang line) is kept. When
// asked, it also produces the source map from the output back to the input.
package transform

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/JakeChampion/unassertify/internal/signature"
	"github.com/JakeChampion/unassertify/internal/sourcemap"
)

// Language selects which tree-sitter grammar to use for parsing.
type Language int

const (
	JavaScript Language = iota
	TypeScript
	TSX
)

// LanguageForPath picks the grammar from a file extension. Anything that is
// not TypeScript is parsed as JavaScript, which also covers JSX and the
// output of other compile-to-JS stages.
func LanguageForPath(path string) Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return TypeScript
	case ".tsx":
		return TSX
	default:
		return JavaScript
	}
}

// ErrParse is wrapped by every *ParseError.
var ErrParse = errors.New("syntax error")

// ParseError reports the first ERROR or MISSING node of a unit.
type ParseError struct {
	Path   string
	Line   int // 1-based
	Column int // 1-based, in bytes
	Near   string
	// Missing is set when the parser inserted a token that is absent from the text.
	Missing bool
}

func (e *ParseError) Error() string {
	if e.Missing {
		return fmt.Sprintf("%s:%d:%d: %v: missing %q", e.Path, e.Line, e.Column, ErrParse, e.Near)
	}
	return fmt.Sprintf("%s:%d:%d: %v: unexpected %q", e.Path, e.Line, e.Column, ErrParse, e.Near)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// Options configures Strip.
type Options struct {
	// Path identifies the unit. It names the only source of the produced map.
	Path string
	// Language overrides the grammar; by default it follows Path.
	Language *Language
	// Signatures is the set of assertion shapes; signature.Default() when nil.
	Signatures *signature.Set
	// SourceMap requests the output -> input map.
	SourceMap bool
}

// Result holds the output of Strip.
type Result struct {
	// Output is the source with assertion statements removed.
	Output []byte
	// Map is set when Options.SourceMap was requested.
	Map *sourcemap.Map
	// Removed counts removed statements, declarations and declarators.
	Removed int
}

// Strip parses source, removes every statement that calls a signature of
// opts.Signatures or imports one of its modules, and regenerates the text.
//
// The smallest statement enclosing a matched call is removed, so
//
//	var assert = require('assert');
//	function f(x){ assert(x > 0); return x; }
//
// becomes
//
//	function f(x){ return x; }
//
// A syntax error anywhere in source is returned as a *ParseError and no
// output is produced.
func Strip(source []byte, opts Options) (*Result, error) {
	lang := LanguageForPath(opts.Path)
	if opts.Language != nil {
		lang = *opts.Language
	}
	set := opts.Signatures
	if set == nil {
		set = signature.Default()
	}

	tree, err := parse(source, lang)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse returned nil root node")
	}
	if root.HasError() {
		return nil, newParseError(opts.Path, source, root)
	}

	c := &collector{source: source, set: set}
	c.collectModules(root)
	c.collectRemovals(root)
	edits := normalizeEdits(c.edits)

	output, chunks := applyEdits(source, edits)

	result := &Result{Output: output}
	for _, e := range edits {
		if e.kind != editComment {
			result.Removed++
		}
	}
	if opts.SourceMap {
		result.Map = buildMap(opts.Path, source, output, root, chunks)
	}
	return result, nil
}

// DumpTree returns the S-expression representation of the parsed source.
// Useful for debugging which node types the grammar produces for your code.
func DumpTree(source []byte, lang Language) (string, error) {
	tree, err := parse(source, lang)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return "", fmt.Errorf("parse returned nil root node")
	}

	return root.ToSexp(), nil
}

// parse returns a tree the caller must close. Each call owns its parser, so
// concurrent calls share nothing.
func parse(source []byte, lang Language) (*tree_sitter.Tree, error) {
	tsLang, err := getLanguage(lang)
	if err != nil {
		return nil, err
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(tree_sitter.NewLanguage(tsLang)); err != nil {
		return nil, fmt.Errorf("setting language: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree")
	}
	return tree, nil
}

func newParseError(path string, source []byte, root *tree_sitter.Node) *ParseError {
	node := firstError(root)
	if node == nil {
		node = root
	}
	pos := node.StartPosition()
	perr := &ParseError{
		Path:   path,
		Line:   int(pos.Row) + 1,
		Column: int(pos.Column) + 1,
	}
	if node.IsMissing() {
		perr.Missing = true
		perr.Near = node.Kind()
		return perr
	}

	near := nodeText(node, source)
	if i := strings.IndexAny(near, "\r\n"); i >= 0 {
		near = near[:i]
	}
	if len(near) > 40 {
		near = near[:40]
	}
	perr.Near = near
	return perr
}

// firstError returns the first ERROR or MISSING node in document order.
func firstError(node *tree_sitter.Node) *tree_sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstError(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// nodeText extracts the source text for a node.
func nodeText(node *tree_sitter.Node, source []byte) string {
	start := node.StartByte()
	end := node.EndByte()
	if start > uint(len(source)) || end > uint(len(source)) || start > end {
		return ""
	}
	return string(source[start:end])
}

// getLanguage returns the unsafe.Pointer to the tree-sitter language.
func getLanguage(lang Language) (unsafe.Pointer, error) {
	switch lang {
	case JavaScript:
		return tree_sitter_javascript.Language(), nil
	case TypeScript:
		return tree_sitter_typescript.LanguageTypescript(), nil
	case TSX:
		return tree_sitter_typescript.LanguageTSX(), nil
	default:
		return nil, fmt.Errorf("unsupported language: %d", lang)
	}
}
