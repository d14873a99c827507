package selector

import (
	"fmt"

	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/textindex"
)

// Set is any combination of selectors describing one span. It serializes as
// a JSON array.
type Set []Selector

// Range returns the first range selector in the set.
func (s Set) Range() (RangeSelector, bool) {
	for _, sel := range s {
		if sel.Kind == KindRange && sel.Range != nil {
			return *sel.Range, true
		}
	}
	return RangeSelector{}, false
}

// Quote returns the first quote selector in the set.
func (s Set) Quote() (TextQuoteSelector, bool) {
	for _, sel := range s {
		if sel.Kind == KindQuote && sel.Quote != nil {
			return *sel.Quote, true
		}
	}
	return TextQuoteSelector{}, false
}

// Position returns the first position selector in the set.
func (s Set) Position() (TextPositionSelector, bool) {
	for _, sel := range s {
		if sel.Kind == KindPosition && sel.Position != nil {
			return *sel.Position, true
		}
	}
	return TextPositionSelector{}, false
}

// Build captures span as one selector of each kind. Paths are relative to
// the index root.
func Build(ix *textindex.Index, span doctree.Range) (Set, error) {
	start, end, err := ix.RangeOffsets(span)
	if err != nil {
		return nil, fmt.Errorf("build selectors: %w", err)
	}
	if start == end {
		return nil, fmt.Errorf("build selectors: span is empty")
	}

	root := ix.Root()
	startPath, err := doctree.PathTo(root, span.StartNode)
	if err != nil {
		return nil, fmt.Errorf("build selectors: start: %w", err)
	}
	endPath, err := doctree.PathTo(root, span.EndNode)
	if err != nil {
		return nil, fmt.Errorf("build selectors: end: %w", err)
	}

	mapping, err := ix.MapRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("build selectors: %w", err)
	}
	prefix, suffix := ix.GetContextForRange(start, end)

	return Set{
		FromRange(RangeSelector{
			StartPath:   startPath,
			StartOffset: span.StartOffset,
			EndPath:     endPath,
			EndOffset:   span.EndOffset,
		}),
		FromQuote(TextQuoteSelector{
			Exact:  ix.GetContentForRange(start, end),
			Prefix: prefix,
			Suffix: suffix,
		}),
		FromPosition(TextPositionSelector{Start: mapping.Start, End: mapping.End}),
	}, nil
}
