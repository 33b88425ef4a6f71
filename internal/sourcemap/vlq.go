package sourcemap

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqShift    = 5
	vlqBase     = 1 << vlqShift
	vlqMask     = vlqBase - 1
	vlqContinue = vlqBase
)

var base64Index = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(base64Alphabet); i++ {
		t[base64Alphabet[i]] = int8(i)
	}
	return t
}()

var errVLQ = errors.New("invalid base64 VLQ")

func appendVLQ(dst []byte, v int) []byte {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & vlqMask
		u >>= vlqShift
		if u > 0 {
			digit |= vlqContinue
		}
		dst = append(dst, base64Alphabet[digit])
		if u == 0 {
			return dst
		}
	}
}

// decodeVLQ reads one value starting at s[i] and returns it with the index after it.
func decodeVLQ(s string, i int) (int, int, error) {
	result, shift := 0, 0
	for {
		if i >= len(s) {
			return 0, i, fmt.Errorf("%w: unterminated value", errVLQ)
		}
		digit := base64Index[s[i]]
		if digit < 0 {
			return 0, i, fmt.Errorf("%w: unexpected %q at offset %d", errVLQ, s[i], i)
		}
		i++
		result |= int(digit&vlqMask) << shift
		if digit&vlqContinue == 0 {
			break
		}
		shift += vlqShift
		if shift > 31 {
			return 0, i, fmt.Errorf("%w: value overflows 32 bits", errVLQ)
		}
	}
	if result&1 == 1 {
		return -(result >> 1), i, nil
	}
	return result >> 1, i, nil
}

// Segment is one decoded mapping. Lines and columns are zero based, columns
// count UTF-16 code units. Source and Name are -1 when the segment has none.
type Segment struct {
	GenLine    int
	GenColumn  int
	Source     int
	OrigLine   int
	OrigColumn int
	Name       int
}

// HasSource reports whether the segment points into a source.
func (s Segment) HasSource() bool { return s.Source >= 0 }

// DecodeMappings expands the "mappings" field into absolute segments.
func DecodeMappings(mappings string) ([]Segment, error) {
	var (
		segs                               []Segment
		line, source, origLine, origColumn int
		name                               int
	)

	for _, group := range strings.Split(mappings, ";") {
		column := 0
		for _, field := range strings.Split(group, ",") {
			if field == "" {
				continue
			}
			var vals [5]int
			n, i := 0, 0
			for i < len(field) {
				if n == len(vals) {
					return nil, fmt.Errorf("%w: segment %q has more than 5 fields", errVLQ, field)
				}
				v, next, err := decodeVLQ(field, i)
				if err != nil {
					return nil, err
				}
				vals[n] = v
				n++
				i = next
			}
			if n != 1 && n != 4 && n != 5 {
				return nil, fmt.Errorf("%w: segment %q has %d fields", errVLQ, field, n)
			}

			column += vals[0]
			seg := Segment{GenLine: line, GenColumn: column, Source: -1, Name: -1}
			if n >= 4 {
				source += vals[1]
				origLine += vals[2]
				origColumn += vals[3]
				seg.Source, seg.OrigLine, seg.OrigColumn = source, origLine, origColumn
			}
			if n == 5 {
				name += vals[4]
				seg.Name = name
			}
			if column < 0 || source < 0 || origLine < 0 || origColumn < 0 || name < 0 {
				return nil, fmt.Errorf("%w: negative position in segment %q on line %d", errVLQ, field, line+1)
			}
			segs = append(segs, seg)
		}
		line++
	}
	return segs, nil
}

// EncodeMappings serialises segments into the "mappings" field. Segments are
// emitted in generated order regardless of the order given.
func EncodeMappings(segs []Segment) string {
	sorted := slices.Clone(segs)
	slices.SortStableFunc(sorted, compareGenerated)

	var (
		out                                []byte
		line, column                       int
		source, origLine, origColumn, name int
	)
	for i, s := range sorted {
		for line < s.GenLine {
			out = append(out, ';')
			line++
			column = 0
		}
		if i > 0 && sorted[i-1].GenLine == s.GenLine {
			out = append(out, ',')
		}

		out = appendVLQ(out, s.GenColumn-column)
		column = s.GenColumn
		if !s.HasSource() {
			continue
		}
		out = appendVLQ(out, s.Source-source)
		out = appendVLQ(out, s.OrigLine-origLine)
		out = appendVLQ(out, s.OrigColumn-origColumn)
		source, origLine, origColumn = s.Source, s.OrigLine, s.OrigColumn
		if s.Name >= 0 {
			out = appendVLQ(out, s.Name-name)
			name = s.Name
		}
	}
	return string(out)
}

func compareGenerated(a, b Segment) int {
	if a.GenLine != b.GenLine {
		return a.GenLine - b.GenLine
	}
	return a.GenColumn - b.GenColumn
}
