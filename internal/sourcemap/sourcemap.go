// Package sourcemap reads, builds, composes and embeds version 3 source maps.
//
// Maps are treated as immutable values: every operation that derives a map
// returns a new one and leaves its inputs untouched.
package sourcemap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrMalformedMap means an embedded map comment exists but cannot be decoded.
	ErrMalformedMap = errors.New("malformed embedded source map")
	// ErrInconsistent means two maps cannot be combined into one.
	ErrInconsistent = errors.New("inconsistent source map")
)

// Version is the only source map revision understood by this package.
const Version = 3

// Map is the JSON form of a source map. Optional fields are pointers or nil
// slices so that "absent" and "empty" stay distinguishable.
type Map struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     *string   `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// Parse decodes the JSON form of a map.
func Parse(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MarshalJSON keeps "<", ">" and "&" unescaped so embedded source text stays readable.
func (m *Map) MarshalJSON() ([]byte, error) {
	type plain Map
	v := plain(*m)
	if v.Sources == nil {
		v.Sources = []string{}
	}
	if v.Names == nil {
		v.Names = []string{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Segments decodes the mappings field.
func (m *Map) Segments() ([]Segment, error) {
	return DecodeMappings(m.Mappings)
}

// Validate checks that the map can be resolved: supported version, decodable
// mappings, and every source and name index in range.
func (m *Map) Validate() ([]Segment, error) {
	if m.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInconsistent, m.Version)
	}
	if m.SourcesContent != nil && len(m.SourcesContent) != len(m.Sources) {
		return nil, fmt.Errorf("%w: %d sourcesContent entries for %d sources",
			ErrInconsistent, len(m.SourcesContent), len(m.Sources))
	}
	segs, err := m.Segments()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInconsistent, err)
	}
	for _, s := range segs {
		if s.Source >= len(m.Sources) {
			return nil, fmt.Errorf("%w: source index %d out of range (%d sources) at %d:%d",
				ErrInconsistent, s.Source, len(m.Sources), s.GenLine+1, s.GenColumn)
		}
		if s.Name >= len(m.Names) {
			return nil, fmt.Errorf("%w: name index %d out of range (%d names) at %d:%d",
				ErrInconsistent, s.Name, len(m.Names), s.GenLine+1, s.GenColumn)
		}
	}
	return segs, nil
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	out := *m
	if m.SourceRoot != nil {
		root := *m.SourceRoot
		out.SourceRoot = &root
	}
	out.Sources = slices.Clone(m.Sources)
	out.Names = slices.Clone(m.Names)
	if m.SourcesContent != nil {
		out.SourcesContent = make([]*string, len(m.SourcesContent))
		for i, c := range m.SourcesContent {
			if c != nil {
				s := *c
				out.SourcesContent[i] = &s
			}
		}
	}
	return &out
}
