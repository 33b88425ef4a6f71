package sourcemap

import (
	"fmt"
	"slices"
	"sort"
)

// Compose merges the map of an earlier stage (incoming: original -> intermediate)
// with the map of a later one (outgoing: intermediate -> final) into a single
// map from the final text to the original sources.
//
// Every outgoing segment is resolved through incoming using the closest
// incoming segment at or before the intermediate position on the same line.
// Segments that resolve to nothing are dropped.
//
// sources, sourceRoot and sourcesContent belong to incoming when it defines
// them. Names are taken from incoming, since outgoing names describe the
// intermediate text. With a nil incoming map, outgoing is returned as is.
func Compose(incoming, outgoing *Map) (*Map, error) {
	if outgoing == nil {
		return nil, fmt.Errorf("%w: no outgoing map", ErrInconsistent)
	}
	if incoming == nil {
		return outgoing, nil
	}

	outSegs, err := outgoing.Validate()
	if err != nil {
		return nil, fmt.Errorf("outgoing map: %w", err)
	}
	inSegs, err := incoming.Validate()
	if err != nil {
		return nil, fmt.Errorf("incoming map: %w", err)
	}

	lines := indexByLine(inSegs)
	b := NewBuilder(outgoing.File)
	for _, seg := range outSegs {
		if !seg.HasSource() {
			continue
		}
		orig, ok := lookup(lines, seg.OrigLine, seg.OrigColumn)
		if !ok || !orig.HasSource() {
			continue
		}
		composed := Segment{
			GenLine:    seg.GenLine,
			GenColumn:  seg.GenColumn,
			Source:     orig.Source,
			OrigLine:   orig.OrigLine,
			OrigColumn: orig.OrigColumn,
			Name:       -1,
		}
		if orig.Name >= 0 {
			composed.Name = b.AddName(incoming.Names[orig.Name])
		}
		b.Add(composed)
	}

	out := b.Map()
	out.Sources = slices.Clone(outgoing.Sources)
	if incoming.Sources != nil {
		out.Sources = slices.Clone(incoming.Sources)
	}
	out.SourceRoot = outgoing.SourceRoot
	if incoming.SourceRoot != nil {
		out.SourceRoot = incoming.SourceRoot
	}
	if incoming.SourcesContent != nil {
		out.SourcesContent = incoming.Clone().SourcesContent
	}
	if out.SourceRoot != nil {
		root := *out.SourceRoot
		out.SourceRoot = &root
	}
	return out, nil
}

// indexByLine groups segments by generated line, each group sorted by column.
func indexByLine(segs []Segment) map[int][]Segment {
	lines := make(map[int][]Segment)
	for _, s := range segs {
		lines[s.GenLine] = append(lines[s.GenLine], s)
	}
	for _, group := range lines {
		slices.SortStableFunc(group, compareGenerated)
	}
	return lines
}

// lookup finds the segment with the greatest column not after column on line.
func lookup(lines map[int][]Segment, line, column int) (Segment, bool) {
	group := lines[line]
	i := sort.Search(len(group), func(i int) bool { return group[i].GenColumn > column })
	if i == 0 {
		return Segment{}, false
	}
	return group[i-1], true
}
