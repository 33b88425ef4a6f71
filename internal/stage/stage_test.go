package stage

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/JakeChampion/unassertify/internal/signature"
	"github.com/JakeChampion/unassertify/internal/sourcemap"
	"github.com/JakeChampion/unassertify/internal/transform"
)

const fixture = "var assert = require('assert');\nfunction f(x){ assert(x > 0); return x; }"

func strPtr(s string) *string { return &s }

func TestProcessUnit_RemovesAssertions(t *testing.T) {
	out, err := ProcessUnit("/abs/fixture.js", []byte(fixture), Config{})
	require.NoError(t, err)
	assert.Equal(t, "function f(x){ return x; }", string(out))
}

func TestProcessUnit_Idempotent(t *testing.T) {
	s, err := New(Config{})
	require.NoError(t, err)

	first, err := s.ProcessUnit("fixture.js", []byte(fixture))
	require.NoError(t, err)
	assert.False(t, ShouldTransform("fixture.js", first, s.Markers()))

	second, err := s.ProcessUnit("fixture.js", first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProcessUnit_JSONIsNeverTransformed(t *testing.T) {
	in := []byte(`{"assert": "assert(x);"}`)
	for _, track := range []bool{false, true} {
		out, err := ProcessUnit("package.json", in, Config{TrackPositions: track})
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestProcessUnit_NoMarkerPassesThrough(t *testing.T) {
	// Not valid JavaScript: the parser must never see it.
	in := []byte("this is (not javascript\n//# sourceMappingURL=data:application/json;base64,e30=\n")
	out, err := ProcessUnit("plain.js", in, Config{TrackPositions: true})
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestProcessUnit_Hashbang(t *testing.T) {
	in := "#!/usr/bin/env node\nassert(process.argv.length > 1);\nmain();\n"
	out, err := ProcessUnit("bin/cli.js", []byte(in), Config{})
	require.NoError(t, err)
	assert.Equal(t, "#!/usr/bin/env node\nmain();\n", string(out))
}

func TestProcessUnit_SourceMapWithoutIncoming(t *testing.T) {
	out, err := ProcessUnit("/abs/fixture.js", []byte(fixture), Config{TrackPositions: true})
	require.NoError(t, err)

	text := string(out)
	require.True(t, strings.HasPrefix(text, "function f(x){ return x; }\n"+sourcemap.CommentPrefix), text)
	assert.True(t, strings.HasSuffix(text, "\n"))

	m, err := sourcemap.FromSource(out)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"/abs/fixture.js"}, m.Sources)
	require.Len(t, m.SourcesContent, 1)
	assert.Equal(t, fixture, *m.SourcesContent[0])
	assert.Nil(t, m.SourceRoot)

	segs, err := m.Segments()
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	// "function" on the first output line comes from the second input line.
	assert.Equal(t, sourcemap.Segment{GenLine: 0, GenColumn: 0, Source: 0, OrigLine: 1, OrigColumn: 0, Name: -1}, segs[0])
}

// precompiled returns the text an earlier compile step would have produced
// for fixture.coffee, with that step's map embedded.
func precompiled(t *testing.T) (string, *sourcemap.Map) {
	t.Helper()

	b := sourcemap.NewBuilder("")
	b.AddSource("fixture.coffee", strPtr("assert = require 'assert'\nx = 1\nassert x\n"))
	name := b.AddName("x")
	b.Add(sourcemap.Segment{GenLine: 0, GenColumn: 0, Source: 0, OrigLine: 0, OrigColumn: 0, Name: -1})
	b.Add(sourcemap.Segment{GenLine: 1, GenColumn: 0, Source: 0, OrigLine: 1, OrigColumn: 0, Name: -1})
	b.Add(sourcemap.Segment{GenLine: 1, GenColumn: 4, Source: 0, OrigLine: 1, OrigColumn: 0, Name: name})
	b.Add(sourcemap.Segment{GenLine: 2, GenColumn: 0, Source: 0, OrigLine: 2, OrigColumn: 0, Name: -1})
	incoming := b.Map()
	incoming.SourceRoot = strPtr("/project/src")

	comment, err := incoming.ToComment()
	require.NoError(t, err)
	return "var assert = require('assert');\nvar x = 1;\nassert(x);\n" + comment + "\n", incoming
}

func TestProcessUnit_ComposesIncomingMap(t *testing.T) {
	in, incoming := precompiled(t)

	out, err := ProcessUnit("/abs/fixture.coffee", []byte(in), Config{TrackPositions: true})
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "var x = 1;\n"+sourcemap.CommentPrefix), text)
	assert.Equal(t, 1, strings.Count(text, "sourceMappingURL"), "stale comment must be replaced")

	m, err := sourcemap.FromSource(out)
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.Equal(t, incoming.Sources, m.Sources)
	assert.Equal(t, incoming.SourceRoot, m.SourceRoot)
	assert.Equal(t, incoming.SourcesContent, m.SourcesContent)
	assert.Equal(t, []string{"x"}, m.Names)

	segs, err := m.Segments()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(segs), 2)
	// final 0:0 -> intermediate 1:0 -> original 1:0
	assert.Equal(t, sourcemap.Segment{GenLine: 0, GenColumn: 0, Source: 0, OrigLine: 1, OrigColumn: 0, Name: -1}, segs[0])
	// final 0:4 (x) -> intermediate 1:4 -> original 1:0, named x
	assert.Equal(t, sourcemap.Segment{GenLine: 0, GenColumn: 4, Source: 0, OrigLine: 1, OrigColumn: 0, Name: 0}, segs[1])
}

func TestProcessUnit_IncomingMapDroppedWithoutTracking(t *testing.T) {
	in, _ := precompiled(t)

	out, err := ProcessUnit("/abs/fixture.coffee", []byte(in), Config{})
	require.NoError(t, err)
	assert.Equal(t, "var x = 1;\n", string(out))
}

func TestProcessUnit_MalformedIncomingMapIsIgnored(t *testing.T) {
	in := "assert(x);\nrun();\n//# sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString([]byte("{broken")) + "\n"

	out, err := ProcessUnit("unit.js", []byte(in), Config{TrackPositions: true})
	require.NoError(t, err)

	m, err := sourcemap.FromSource(out)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"unit.js"}, m.Sources)
	assert.True(t, strings.HasPrefix(string(out), "run();\n"))
}

func TestProcessUnit_InconsistentIncomingMap(t *testing.T) {
	bad := `{"version":3,"sources":[],"names":[],"mappings":"AAAA"}`
	in := "assert(x);\nrun();\n//# sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString([]byte(bad)) + "\n"

	_, err := ProcessUnit("unit.js", []byte(in), Config{TrackPositions: true})
	require.ErrorIs(t, err, sourcemap.ErrInconsistent)

	var uerr *UnitError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "unit.js", uerr.Path)
}

func TestProcessUnit_ParseFailure(t *testing.T) {
	_, err := ProcessUnit("broken.js", []byte("assert(;\n"), Config{})
	require.ErrorIs(t, err, transform.ErrParse)

	var uerr *UnitError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, "broken.js", uerr.Path)
	assert.Contains(t, err.Error(), "broken.js")
}

func TestProcessUnit_ExtraMarkers(t *testing.T) {
	cfg := Config{
		ExtraMarkers: []string{"invariant"},
		Patterns:     []string{"invariant(condition, [message])"},
	}
	s, err := New(cfg)
	require.NoError(t, err)
	assert.Contains(t, s.Markers(), "invariant")

	out, err := s.ProcessUnit("unit.js", []byte("const invariant = require('invariant');\ninvariant(x, 'x');\ngo();\n"))
	require.NoError(t, err)
	assert.Equal(t, "go();\n", string(out))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{Patterns: []string{"assert"}})
	require.ErrorIs(t, err, signature.ErrInvalidPattern)
}

func TestNew_CustomBaseSet(t *testing.T) {
	set, err := signature.Default().WithPatterns("check.that(value)")
	require.NoError(t, err)

	s, err := New(Config{Signatures: set})
	require.NoError(t, err)

	out, err := s.ProcessUnit("unit.js", []byte("check.that(x);\nrun();\n"))
	require.NoError(t, err)
	assert.Equal(t, "run();\n", string(out))
}

func TestStage_ConcurrentUnits(t *testing.T) {
	s, err := New(Config{TrackPositions: true})
	require.NoError(t, err)

	const units = 16
	outputs := make([][]byte, units)
	errs := make([]error, units)

	var group errgroup.Group
	for i := 0; i < units; i++ {
		group.Go(func() error {
			path := fmt.Sprintf("unit%d.js", i)
			text := fixture
			if i%4 == 0 {
				text = "assert(;"
			}
			outputs[i], errs[i] = s.ProcessUnit(path, []byte(text))
			return nil
		})
	}
	require.NoError(t, group.Wait())

	for i := 0; i < units; i++ {
		if i%4 == 0 {
			assert.ErrorIs(t, errs[i], transform.ErrParse, "unit %d", i)
			continue
		}
		require.NoError(t, errs[i], "unit %d", i)
		m, err := sourcemap.FromSource(outputs[i])
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("unit%d.js", i)}, m.Sources)
	}
}

func TestShouldTransform(t *testing.T) {
	markers := []string{"assert", "invariant"}
	tests := []struct {
		name string
		path string
		text string
		want bool
	}{
		{"contains assert", "a.js", "assert(x)", true},
		{"contains power-assert", "a.js", "require('power-assert')", true},
		{"false positive is fine", "a.js", "// no assertions here", true},
		{"extra marker", "a.js", "invariant(x)", true},
		{"no marker", "a.js", "console.log(x)", false},
		{"json", "a.json", "assert(x)", false},
		{"upper-case json", "A.JSON", "assert(x)", false},
		{"empty", "a.js", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldTransform(tt.path, []byte(tt.text), markers))
		})
	}
}
