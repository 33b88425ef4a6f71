package signature

import (
	"slices"
	"strings"
)

// DefaultPatterns are the assertion calls recognised out of the box.
var DefaultPatterns = []string{
	"assert(value, [message])",
	"assert.ok(value, [message])",
	"assert.equal(actual, expected, [message])",
	"assert.notEqual(actual, expected, [message])",
	"assert.strictEqual(actual, expected, [message])",
	"assert.notStrictEqual(actual, expected, [message])",
	"assert.deepEqual(actual, expected, [message])",
	"assert.notDeepEqual(actual, expected, [message])",
	"assert.deepStrictEqual(actual, expected, [message])",
	"assert.notDeepStrictEqual(actual, expected, [message])",
	"assert.fail([actual], [expected], [message], [operator])",
	"assert.throws(block, [error], [message])",
	"assert.doesNotThrow(block, [message])",
	"assert.rejects(asyncFn, [error], [message])",
	"assert.doesNotReject(asyncFn, [error], [message])",
	"assert.ifError(value)",
	"assert.match(string, regexp, [message])",
	"assert.doesNotMatch(string, regexp, [message])",
	"console.assert(value, [message])",
}

// DefaultModules are the module specifiers whose imports are removed.
var DefaultModules = []string{
	"assert",
	"assert/strict",
	"node:assert",
	"node:assert/strict",
}

// CompatModule is recognised in addition to DefaultModules so that units
// written against the renamed power-assert package keep being stripped.
const CompatModule = "power-assert"

// DefaultRoot is the binding name the default patterns are written against.
const DefaultRoot = "assert"

// Set is an ordered, immutable collection of signatures and module names.
// Methods that extend a Set return a new one.
type Set struct {
	signatures []Signature
	modules    []string
}

// Default returns the built-in set extended with CompatModule.
func Default() *Set {
	s := &Set{modules: append(slices.Clone(DefaultModules), CompatModule)}
	for _, p := range DefaultPatterns {
		s.signatures = append(s.signatures, MustParse(p))
	}
	return s
}

// WithModules returns a copy of s that also recognises mods. Duplicates are ignored.
func (s *Set) WithModules(mods ...string) *Set {
	out := s.clone()
	for _, m := range mods {
		m = strings.TrimSpace(m)
		if m == "" || slices.Contains(out.modules, m) {
			continue
		}
		out.modules = append(out.modules, m)
	}
	return out
}

// WithPatterns returns a copy of s with the parsed patterns appended.
func (s *Set) WithPatterns(patterns ...string) (*Set, error) {
	out := s.clone()
	for _, p := range patterns {
		sig, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out.signatures = append(out.signatures, sig)
	}
	return out, nil
}

// Rebind returns a copy of s where every signature whose callee starts with
// from is duplicated with that prefix replaced by to. The originals are kept.
//
//	const a = require('assert')          -> Rebind([assert], [a])
//	const { equal: eq } = require('assert') -> Rebind([assert equal], [eq])
func (s *Set) Rebind(from, to []string) *Set {
	out := s.clone()
	if slices.Equal(from, to) {
		return out
	}
	for _, sig := range s.signatures {
		if !sig.HasPrefix(from) {
			continue
		}
		callee := append(slices.Clone(to), sig.Callee[len(from):]...)
		if out.has(callee, sig.Params) {
			continue
		}
		out.signatures = append(out.signatures, Signature{Callee: callee, Params: sig.Params})
	}
	return out
}

// Signatures returns the signatures in order.
func (s *Set) Signatures() []Signature {
	return slices.Clone(s.signatures)
}

// Modules returns the recognised module specifiers in order.
func (s *Set) Modules() []string {
	return slices.Clone(s.modules)
}

// IsModule reports whether specifier names an assertion module.
func (s *Set) IsModule(specifier string) bool {
	return slices.Contains(s.modules, specifier)
}

// Markers returns the substrings at least one of which must occur in any
// text the set could match. A call to a.b.c always contains each of its
// segments literally, and a module import always contains the module name.
func (s *Set) Markers() []string {
	markers := []string{DefaultRoot}
	covered := func(word string) bool {
		for _, m := range markers {
			if strings.Contains(word, m) {
				return true
			}
		}
		return false
	}
	for _, m := range s.modules {
		if !covered(m) {
			markers = append(markers, m)
		}
	}
	for _, sig := range s.signatures {
		if !slices.ContainsFunc(sig.Callee, covered) {
			markers = append(markers, sig.Callee[len(sig.Callee)-1])
		}
	}
	return markers
}

func (s *Set) has(callee []string, params []Param) bool {
	for _, sig := range s.signatures {
		if slices.Equal(sig.Callee, callee) && slices.Equal(sig.Params, params) {
			return true
		}
	}
	return false
}

func (s *Set) clone() *Set {
	return &Set{
		signatures: slices.Clone(s.signatures),
		modules:    slices.Clone(s.modules),
	}
}
