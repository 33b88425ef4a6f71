package transform

import (
	"slices"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/JakeChampion/unassertify/internal/sourcemap"
)

// token is the start of one leaf of the tree in output coordinates.
type token struct {
	out  int
	orig int
	name string
}

// buildMap maps the start of every token that survived into output back to
// its position in source. Identifier tokens carry their name. The whole of
// source is embedded as the only source, named path.
func buildMap(path string, source, output []byte, root *tree_sitter.Node, table chunkTable) *sourcemap.Map {
	var tokens []token
	collectTokens(root, source, table, &tokens)
	for _, ins := range table.inserts {
		tokens = append(tokens, token{out: ins.out, orig: ins.orig})
	}
	slices.SortStableFunc(tokens, func(a, b token) int { return a.out - b.out })

	b := sourcemap.NewBuilder("")
	content := string(source)
	src := b.AddSource(path, &content)

	in := sourcemap.NewLineIndex(source)
	out := sourcemap.NewLineIndex(output)
	for _, tok := range tokens {
		genLine, genCol := out.Position(tok.out)
		origLine, origCol := in.Position(tok.orig)
		seg := sourcemap.Segment{
			GenLine:    genLine,
			GenColumn:  genCol,
			Source:     src,
			OrigLine:   origLine,
			OrigColumn: origCol,
			Name:       -1,
		}
		if tok.name != "" {
			seg.Name = b.AddName(tok.name)
		}
		b.Add(seg)
	}
	return b.Map()
}

// collectTokens appends the retained leaves under node in document order.
func collectTokens(node *tree_sitter.Node, source []byte, table chunkTable, out *[]token) {
	if node == nil {
		return
	}

	kind := node.Kind()
	if kind == "comment" || kind == "hash_bang_line" {
		return
	}

	count := node.ChildCount()
	if count == 0 || isNamedLeaf(kind) {
		start := int(node.StartByte())
		if int(node.EndByte()) <= start {
			return
		}
		pos, ok := table.translate(start)
		if !ok {
			return
		}
		tok := token{out: pos, orig: start}
		if isNamedLeaf(kind) {
			tok.name = nodeText(node, source)
		}
		*out = append(*out, tok)
		return
	}

	for i := uint(0); i < count; i++ {
		collectTokens(node.Child(i), source, table, out)
	}
}

// isNamedLeaf reports whether kind is an identifier-like token whose text
// belongs in the names table.
func isNamedLeaf(kind string) bool {
	switch kind {
	case "identifier", "property_identifier", "shorthand_property_identifier",
		"shorthand_property_identifier_pattern", "private_property_identifier",
		"type_identifier", "statement_identifier":
		return true
	}
	return false
}
