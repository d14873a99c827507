package selector

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/textindex"
	"golang.org/x/net/html"
)

func newIndex(t *testing.T, src string) *textindex.Index {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return textindex.New(doctree.Body(doc), textindex.Options{Logger: log})
}

func TestMarshalJSON_TypeTag(t *testing.T) {
	set := Set{
		FromRange(RangeSelector{StartPath: "/p[1]/text()[1]", StartOffset: 1, EndPath: "/p[1]/text()[1]", EndOffset: 4}),
		FromQuote(TextQuoteSelector{Exact: "ell", Prefix: "h", Suffix: "o"}),
		FromPosition(TextPositionSelector{Start: 1, End: 4}),
	}
	data, err := json.Marshal(set)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `[{"type":"RangeSelector","start_path":"/p[1]/text()[1]","start_offset":1,"end_path":"/p[1]/text()[1]","end_offset":4},` +
		`{"type":"TextQuoteSelector","exact":"ell","prefix":"h","suffix":"o"},` +
		`{"type":"TextPositionSelector","start":1,"end":4}]`
	if string(data) != want {
		t.Fatalf("expected %s, got %s", want, data)
	}

	var decoded Set
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	q, ok := decoded.Quote()
	if !ok || q.Exact != "ell" {
		t.Errorf("expected quote selector to survive decoding, got %+v", q)
	}
	if p, ok := decoded.Position(); !ok || p.End != 4 {
		t.Errorf("expected position selector to survive decoding, got %+v", p)
	}
}

func TestUnmarshalJSON_Rejects(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"unknown type", `{"type":"CssSelector","value":"p"}`},
		{"missing type", `{"start":1,"end":2}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Selector
			err := json.Unmarshal([]byte(tt.in), &s)
			var malformedErr *MalformedSelectorError
			if !errors.As(err, &malformedErr) {
				t.Fatalf("expected MalformedSelectorError, got %v", err)
			}
		})
	}

	var s Selector
	if err := json.Unmarshal([]byte(`{"type":"TextPositionSelector","start":"x"}`), &s); err == nil {
		t.Error("expected error for mistyped field")
	}
}

func TestMarshalJSON_RejectsMissingVariant(t *testing.T) {
	if _, err := json.Marshal(Selector{Kind: KindQuote}); err == nil {
		t.Error("expected error for selector without a variant")
	}
}

func TestBuild(t *testing.T) {
	ix := newIndex(t, `<p>The cat sat on the mat.</p><p>Then the <b>cat</b> sat on the hat.</p>`)
	b, _ := doctree.Lookup(ix.Root(), "/p[2]/b[1]/text()[1]")
	tail, _ := doctree.Lookup(ix.Root(), "/p[2]/text()[2]")

	set, err := Build(ix, doctree.Range{StartNode: b, StartOffset: 0, EndNode: tail, EndOffset: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r, ok := set.Range()
	if !ok {
		t.Fatal("expected range selector")
	}
	if r.StartPath != "/p[2]/b[1]/text()[1]" || r.EndPath != "/p[2]/text()[2]" || r.EndOffset != 7 {
		t.Errorf("unexpected range selector %+v", r)
	}

	q, _ := set.Quote()
	if q.Exact != "cat sat on" {
		t.Errorf("expected exact %q, got %q", "cat sat on", q.Exact)
	}
	if q.Prefix != "The cat sat on the mat.Then the" {
		t.Errorf("unexpected prefix %q", q.Prefix)
	}
	if q.Suffix != "the hat." {
		t.Errorf("unexpected suffix %q", q.Suffix)
	}

	p, _ := set.Position()
	if p.Start != 32 || p.End != 42 {
		t.Errorf("expected position [32,42), got [%d,%d)", p.Start, p.End)
	}
}

func TestRangeSelectorResolve(t *testing.T) {
	ix := newIndex(t, `<p>hello</p><p>world</p>`)
	root := ix.Root()

	r, err := RangeSelector{StartPath: "/p[1]/text()[1]", StartOffset: 1, EndPath: "/p[2]/text()[1]", EndOffset: 3}.Resolve(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	start, end, err := ix.RangeOffsets(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != 1 || end != 8 {
		t.Errorf("expected [1,8), got [%d,%d)", start, end)
	}

	bad := []RangeSelector{
		{StartPath: "/p[3]/text()[1]", EndPath: "/p[1]/text()[1]"},
		{StartPath: "/p[1]/text()[1]", StartOffset: 9, EndPath: "/p[1]/text()[1]", EndOffset: 9},
		{StartPath: "/p[1]", EndPath: "/p[1]/text()[1]", EndOffset: 1},
		{StartPath: "/p[2]/text()[1]", EndPath: "/p[1]/text()[1]", EndOffset: 1},
		{StartPath: "/p[1]/text()[1]", StartOffset: 3, EndPath: "/p[1]/text()[1]", EndOffset: 2},
	}
	for _, sel := range bad {
		_, err := sel.Resolve(root)
		var malformedErr *MalformedSelectorError
		if !errors.As(err, &malformedErr) {
			t.Errorf("%+v: expected MalformedSelectorError, got %v", sel, err)
		}
	}
}

func TestPositionCheck(t *testing.T) {
	if err := (TextPositionSelector{Start: 0, End: 5}).Check(5); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, p := range []TextPositionSelector{{-1, 2}, {0, 6}, {3, 3}} {
		if err := p.Check(5); err == nil {
			t.Errorf("%+v: expected error", p)
		}
	}
}

func TestBuild_QuoteKeepsRawWhitespace(t *testing.T) {
	ix := newIndex(t, "<p>one\n   two three</p>")
	m, err := ix.MapRange(0, 10)
	if err != nil {
		t.Fatalf("unexpected map error: %v", err)
	}

	set, err := Build(ix, m.Range)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q, _ := set.Quote()
	if q.Exact != "one\n   two" {
		t.Errorf("expected raw exact %q, got %q", "one\n   two", q.Exact)
	}
}
