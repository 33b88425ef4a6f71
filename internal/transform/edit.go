package transform

import (
	"slices"
	"sort"
)

type editKind int

const (
	editCall editKind = iota
	editImport
	editComment
)

// edit replaces source[start:end] with text.
type edit struct {
	start int
	end   int
	text  string
	kind  editKind
}

// chunk records where a run of n input bytes landed in the output. For
// inserted text n is 0 and orig is the start of the range it replaces.
type chunk struct {
	orig int
	out  int
	n    int
}

// normalizeEdits sorts edits by position and drops any edit that overlaps
// an earlier one. Overlaps only arise when one removed statement encloses
// another, and the outer one wins.
func normalizeEdits(edits []edit) []edit {
	sorted := slices.Clone(edits)
	slices.SortStableFunc(sorted, func(a, b edit) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return b.end - a.end
	})

	out := sorted[:0]
	for _, e := range sorted {
		if n := len(out); n > 0 && e.start < out[n-1].end {
			continue
		}
		out = append(out, e)
	}
	return out
}

// widen grows a removed range over the blanks that follow it. When the
// range is the only thing on its line, the indentation and the line break
// go as well, so no empty line is left behind.
func widen(source []byte, start, end int) (int, int) {
	lineStart := start
	for lineStart > 0 && isBlank(source[lineStart-1]) {
		lineStart--
	}
	atLineStart := lineStart == 0 || isLineBreak(source[lineStart-1])

	for end < len(source) && isBlank(source[end]) {
		end++
	}
	if !atLineStart {
		return start, end
	}

	switch {
	case end == len(source):
		return lineStart, end
	case source[end] == '\r' && end+1 < len(source) && source[end+1] == '\n':
		return lineStart, end + 2
	case isLineBreak(source[end]):
		return lineStart, end + 1
	}
	return start, end
}

// applyEdits applies normalized edits to the source, producing a new byte
// slice and the chunk table that relates output offsets to input offsets.
func applyEdits(source []byte, edits []edit) ([]byte, chunkTable) {
	if len(edits) == 0 {
		return append([]byte(nil), source...), chunkTable{retained: []chunk{{orig: 0, out: 0, n: len(source)}}}
	}

	result := make([]byte, 0, len(source))
	var table chunkTable

	last := 0
	for _, e := range edits {
		if e.start > last {
			table.retained = append(table.retained, chunk{orig: last, out: len(result), n: e.start - last})
			result = append(result, source[last:e.start]...)
		}
		if e.text != "" {
			table.inserts = append(table.inserts, chunk{orig: e.start, out: len(result)})
			result = append(result, e.text...)
		}
		last = e.end
	}

	if last < len(source) {
		table.retained = append(table.retained, chunk{orig: last, out: len(result), n: len(source) - last})
		result = append(result, source[last:]...)
	}
	return result, table
}

type chunkTable struct {
	retained []chunk
	inserts  []chunk
}

// translate maps an input offset to its output offset. It fails for
// offsets inside removed ranges.
func (t chunkTable) translate(offset int) (int, bool) {
	i := sort.Search(len(t.retained), func(i int) bool {
		return t.retained[i].orig+t.retained[i].n > offset
	})
	if i == len(t.retained) || offset < t.retained[i].orig {
		return 0, false
	}
	c := t.retained[i]
	return c.out + offset - c.orig, true
}

func isBlank(b byte) bool { return b == ' ' || b == '\t' }

func isLineBreak(b byte) bool { return b == '\n' || b == '\r' }
