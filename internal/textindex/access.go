package textindex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/docanchor/internal/doctree"
	"golang.org/x/net/html"
)

// Corpus returns the flattened text of the indexed tree.
func (ix *Index) Corpus() string {
	ix.ensure()
	return ix.corpus
}

// GetDocLength returns the corpus length in characters.
func (ix *Index) GetDocLength() int {
	ix.ensure()
	return len(ix.runes)
}

// GetContentForRange returns the corpus text in [start, end), clamped to the
// document bounds.
func (ix *Index) GetContentForRange(start, end int) string {
	ix.ensure()
	start, end = clamp(start, 0, len(ix.runes)), clamp(end, 0, len(ix.runes))
	if start >= end {
		return ""
	}
	return string(ix.runes[start:end])
}

// GetContextForRange returns up to the configured window of characters on
// each side of [start, end), trimmed.
func (ix *Index) GetContextForRange(start, end int) (prefix, suffix string) {
	return ix.GetContextForRangeWindow(start, end, ix.contextWindow)
}

// GetContextForRangeWindow is GetContextForRange with an explicit window.
func (ix *Index) GetContextForRangeWindow(start, end, window int) (prefix, suffix string) {
	ix.ensure()
	n := len(ix.runes)
	start, end = clamp(start, 0, n), clamp(end, 0, n)
	prefix = string(ix.runes[clamp(start-window, 0, n):start])
	suffix = string(ix.runes[end:clamp(end+window, 0, n)])
	return strings.TrimSpace(prefix), strings.TrimSpace(suffix)
}

// OffsetOf converts a position inside a leaf node to an absolute corpus
// offset.
func (ix *Index) OffsetOf(n *html.Node, offset int) (int, error) {
	ix.ensure()
	e, ok := ix.byNode[n]
	if !ok {
		return 0, fmt.Errorf("offset: node is not indexed")
	}
	if !e.Atomic {
		return 0, fmt.Errorf("offset: %s is not a leaf", e.Path)
	}
	if offset < 0 || offset > e.Length {
		return 0, fmt.Errorf("offset: %d out of bounds for %s (length %d)", offset, e.Path, e.Length)
	}
	return e.Start + offset, nil
}

// Segment is one leaf's contribution to a mapped range. Start/End are rune
// offsets within the leaf's own content.
type Segment struct {
	Path    string     `json:"path"`
	Node    *html.Node `json:"-"`
	Start   int        `json:"start"`
	End     int        `json:"end"`
	Full    bool       `json:"full"`
	Content string     `json:"content"`
}

// Mapping is the projection of a corpus range onto tree nodes.
type Mapping struct {
	Start    int           `json:"start"`
	End      int           `json:"end"`
	Segments []Segment     `json:"segments"`
	Range    doctree.Range `json:"-"`
}

// MapRange projects [start, end) onto the atomic entries overlapping it. Text
// leaves may be cut; media leaves are always taken whole, which can widen the
// mapped range.
func (ix *Index) MapRange(start, end int) (Mapping, error) {
	ix.ensure()
	if start < 0 || end > len(ix.runes) || start >= end {
		return Mapping{}, fmt.Errorf("map range: [%d,%d) outside document of length %d", start, end, len(ix.runes))
	}

	leaves := ix.leafEntries()
	i := sort.Search(len(leaves), func(i int) bool { return leaves[i].End > start })

	m := Mapping{Start: -1}
	for ; i < len(leaves) && leaves[i].Start < end; i++ {
		e := leaves[i]
		from := max(start, e.Start) - e.Start
		to := min(end, e.End) - e.Start
		full := from == 0 && to == e.Length
		if !full && !doctree.IsText(e.Node) {
			ix.log.Warn("partial selection of a non-text node, taking the whole node",
				"path", e.Path, "from", from, "to", to, "length", e.Length)
			from, to, full = 0, e.Length, true
		}
		if m.Start < 0 {
			m.Start = e.Start + from
		}
		m.End = e.Start + to
		m.Segments = append(m.Segments, Segment{
			Path:    e.Path,
			Node:    e.Node,
			Start:   from,
			End:     to,
			Full:    full,
			Content: string(ix.runes[e.Start+from : e.Start+to]),
		})
	}
	if len(m.Segments) == 0 {
		return Mapping{}, fmt.Errorf("map range: no text nodes in [%d,%d)", start, end)
	}

	first, last := m.Segments[0], m.Segments[len(m.Segments)-1]
	m.Range = doctree.Range{
		StartNode:   first.Node,
		StartOffset: first.Start,
		EndNode:     last.Node,
		EndOffset:   last.End,
	}
	return m, nil
}

// RangeOffsets converts a live range to absolute corpus offsets.
func (ix *Index) RangeOffsets(r doctree.Range) (start, end int, err error) {
	if start, err = ix.OffsetOf(r.StartNode, r.StartOffset); err != nil {
		return 0, 0, fmt.Errorf("range start: %w", err)
	}
	if end, err = ix.OffsetOf(r.EndNode, r.EndOffset); err != nil {
		return 0, 0, fmt.Errorf("range end: %w", err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("range end %d precedes start %d", end, start)
	}
	return start, end, nil
}

type savedSelection struct {
	start, end int
}

func (ix *Index) saveSelection() (savedSelection, bool) {
	if ix.selection == nil {
		return savedSelection{}, false
	}
	r, ok := ix.selection.CurrentSelection()
	if !ok {
		return savedSelection{}, false
	}
	start, end, err := ix.RangeOffsets(r)
	if err != nil {
		ix.log.Debug("could not save selection", "error", err)
		return savedSelection{}, false
	}
	return savedSelection{start: start, end: end}, true
}

func (ix *Index) restoreSelection(s savedSelection) {
	if s.start == s.end {
		return
	}
	m, err := ix.MapRange(s.start, s.end)
	if err != nil {
		ix.log.Debug("could not restore selection", "error", err)
		return
	}
	ix.selection.RestoreSelection(m.Range)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
