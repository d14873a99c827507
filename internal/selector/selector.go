// Package selector defines the portable descriptions of a captured text span
// and their JSON form.
package selector

import (
	"encoding/json"
	"fmt"

	"github.com/dgallion1/docanchor/internal/doctree"
	"golang.org/x/net/html"
)

// Kind is the JSON "type" tag of a selector.
type Kind string

const (
	KindRange    Kind = "RangeSelector"
	KindQuote    Kind = "TextQuoteSelector"
	KindPosition Kind = "TextPositionSelector"
)

// RangeSelector addresses a span structurally: a tree path and a rune offset
// within the leaf at each end.
type RangeSelector struct {
	StartPath   string `json:"start_path"`
	StartOffset int    `json:"start_offset"`
	EndPath     string `json:"end_path"`
	EndOffset   int    `json:"end_offset"`
}

// TextQuoteSelector addresses a span by its text and the text around it.
// Exact, Prefix and Suffix hold the document text as captured, whitespace
// included, so they can be searched against the corpus directly. Compare
// quotes with search.Normalize on both sides.
type TextQuoteSelector struct {
	Exact  string `json:"exact"`
	Prefix string `json:"prefix"`
	Suffix string `json:"suffix"`
}

// TextPositionSelector addresses a span by absolute corpus offsets.
type TextPositionSelector struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// MalformedSelectorError reports a selector that cannot be applied to the
// current document or could not be decoded.
type MalformedSelectorError struct {
	Kind   Kind
	Reason string
}

func (e *MalformedSelectorError) Error() string {
	if e.Kind == "" {
		return "malformed selector: " + e.Reason
	}
	return fmt.Sprintf("malformed %s: %s", e.Kind, e.Reason)
}

func malformed(kind Kind, format string, args ...any) error {
	return &MalformedSelectorError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Selector holds exactly one variant, named by Kind.
type Selector struct {
	Kind     Kind
	Range    *RangeSelector
	Quote    *TextQuoteSelector
	Position *TextPositionSelector
}

func FromRange(r RangeSelector) Selector {
	return Selector{Kind: KindRange, Range: &r}
}

func FromQuote(q TextQuoteSelector) Selector {
	return Selector{Kind: KindQuote, Quote: &q}
}

func FromPosition(p TextPositionSelector) Selector {
	return Selector{Kind: KindPosition, Position: &p}
}

// Validate checks that the variant named by Kind is present and the others
// are not.
func (s Selector) Validate() error {
	set := 0
	for _, present := range []bool{s.Range != nil, s.Quote != nil, s.Position != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return malformed(s.Kind, "expected exactly one variant, got %d", set)
	}
	switch s.Kind {
	case KindRange:
		if s.Range == nil {
			return malformed(s.Kind, "missing range fields")
		}
	case KindQuote:
		if s.Quote == nil {
			return malformed(s.Kind, "missing quote fields")
		}
	case KindPosition:
		if s.Position == nil {
			return malformed(s.Kind, "missing position fields")
		}
	default:
		return malformed("", "unknown type %q", s.Kind)
	}
	return nil
}

func (s Selector) MarshalJSON() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Kind {
	case KindRange:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			RangeSelector
		}{s.Kind, *s.Range})
	case KindQuote:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			TextQuoteSelector
		}{s.Kind, *s.Quote})
	default:
		return json.Marshal(struct {
			Type Kind `json:"type"`
			TextPositionSelector
		}{s.Kind, *s.Position})
	}
}

func (s *Selector) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("decode selector: %w", err)
	}

	var out Selector
	switch head.Type {
	case KindRange:
		var r RangeSelector
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("decode %s: %w", head.Type, err)
		}
		out = FromRange(r)
	case KindQuote:
		var q TextQuoteSelector
		if err := json.Unmarshal(data, &q); err != nil {
			return fmt.Errorf("decode %s: %w", head.Type, err)
		}
		out = FromQuote(q)
	case KindPosition:
		var p TextPositionSelector
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", head.Type, err)
		}
		out = FromPosition(p)
	case "":
		return malformed("", "missing type")
	default:
		return malformed("", "unknown type %q", head.Type)
	}
	*s = out
	return nil
}

// Resolve turns the structural paths back into a live range under root.
func (r RangeSelector) Resolve(root *html.Node) (doctree.Range, error) {
	start, err := resolveEndpoint(root, r.StartPath, r.StartOffset)
	if err != nil {
		return doctree.Range{}, malformed(KindRange, "start: %v", err)
	}
	end, err := resolveEndpoint(root, r.EndPath, r.EndOffset)
	if err != nil {
		return doctree.Range{}, malformed(KindRange, "end: %v", err)
	}
	if start == end && r.EndOffset < r.StartOffset {
		return doctree.Range{}, malformed(KindRange, "end offset %d precedes start offset %d", r.EndOffset, r.StartOffset)
	}
	if start != end && doctree.Precedes(end, start) {
		return doctree.Range{}, malformed(KindRange, "end node precedes start node")
	}
	return doctree.Range{
		StartNode:   start,
		StartOffset: r.StartOffset,
		EndNode:     end,
		EndOffset:   r.EndOffset,
	}, nil
}

func resolveEndpoint(root *html.Node, path string, offset int) (*html.Node, error) {
	n, err := doctree.Lookup(root, path)
	if err != nil {
		return nil, err
	}
	if !doctree.Atomic(n) {
		return nil, fmt.Errorf("%s is not a leaf", path)
	}
	if length := doctree.Length(n); offset < 0 || offset > length {
		return nil, fmt.Errorf("offset %d out of bounds for %s (length %d)", offset, path, length)
	}
	return n, nil
}

// Check validates the offsets against a document of docLen characters.
func (p TextPositionSelector) Check(docLen int) error {
	if p.Start < 0 || p.End > docLen || p.Start >= p.End {
		return malformed(KindPosition, "[%d,%d) outside document of length %d", p.Start, p.End, docLen)
	}
	return nil
}
