package sourcemap

import (
	"slices"
	"sort"
	"unicode/utf8"
)

// LineIndex converts byte offsets of a text into zero-based line numbers and
// UTF-16 columns, the coordinate system of source maps.
type LineIndex struct {
	src    []byte
	starts []int

	// cursor for monotonically increasing lookups on the same line
	lastLine, lastOffset, lastColumn int
}

// NewLineIndex indexes the line starts of src. "\n", "\r\n" and a lone "\r"
// all terminate a line.
func NewLineIndex(src []byte) *LineIndex {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '\n':
			starts = append(starts, i+1)
		case '\r':
			if i+1 < len(src) && src[i+1] == '\n' {
				i++
			}
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{src: src, starts: starts, lastLine: -1}
}

// Lines returns the number of lines in the text.
func (ix *LineIndex) Lines() int { return len(ix.starts) }

// Position returns the line and UTF-16 column of a byte offset.
func (ix *LineIndex) Position(offset int) (int, int) {
	offset = min(max(offset, 0), len(ix.src))
	line := sort.Search(len(ix.starts), func(i int) bool { return ix.starts[i] > offset }) - 1

	from, column := ix.starts[line], 0
	if line == ix.lastLine && offset >= ix.lastOffset {
		from, column = ix.lastOffset, ix.lastColumn
	}
	for i := from; i < offset; {
		r, size := utf8.DecodeRune(ix.src[i:])
		if r >= 0x10000 {
			column += 2
		} else {
			column++
		}
		i += size
	}

	ix.lastLine, ix.lastOffset, ix.lastColumn = line, offset, column
	return line, column
}

// Builder accumulates segments and the source and name tables they refer to.
type Builder struct {
	file     string
	sources  []string
	contents []*string
	names    []string
	nameIdx  map[string]int
	segs     []Segment
}

// NewBuilder returns an empty builder for a map describing file.
func NewBuilder(file string) *Builder {
	return &Builder{file: file, nameIdx: make(map[string]int)}
}

// AddSource registers a source and returns its index. content may be nil.
func (b *Builder) AddSource(name string, content *string) int {
	b.sources = append(b.sources, name)
	b.contents = append(b.contents, content)
	return len(b.sources) - 1
}

// AddName interns name and returns its index.
func (b *Builder) AddName(name string) int {
	if i, ok := b.nameIdx[name]; ok {
		return i
	}
	b.names = append(b.names, name)
	b.nameIdx[name] = len(b.names) - 1
	return len(b.names) - 1
}

// Add records a segment. A generated position that was already recorded is
// ignored so that the first mapping for it wins.
func (b *Builder) Add(seg Segment) {
	if n := len(b.segs); n > 0 && b.segs[n-1].GenLine == seg.GenLine && b.segs[n-1].GenColumn == seg.GenColumn {
		return
	}
	b.segs = append(b.segs, seg)
}

// Map freezes the builder into a map. sourcesContent is emitted only when at
// least one source has content.
func (b *Builder) Map() *Map {
	m := &Map{
		Version:  Version,
		File:     b.file,
		Sources:  slices.Clone(b.sources),
		Names:    slices.Clone(b.names),
		Mappings: EncodeMappings(b.segs),
	}
	if m.Names == nil {
		m.Names = []string{}
	}
	if m.Sources == nil {
		m.Sources = []string{}
	}
	if slices.ContainsFunc(b.contents, func(c *string) bool { return c != nil }) {
		m.SourcesContent = slices.Clone(b.contents)
	}
	return m
}
