package matcher

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/textindex"
	"golang.org/x/net/html"
)

const catsHTML = `<p>The cat sat on the mat.</p><p>Then the <b>cat</b> sat on the hat.</p>`

func newMatcher(t *testing.T, src string, stats *Stats) *Matcher {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ix := textindex.New(doctree.Body(doc), textindex.Options{Logger: log})
	return New(ix, log, Config{Stats: stats})
}

func TestParseKind(t *testing.T) {
	for _, s := range []string{"exact", "regex", "fuzzy"} {
		if _, err := ParseKind(s); err != nil {
			t.Errorf("%s: unexpected error: %v", s, err)
		}
	}
	if _, err := ParseKind("context"); err == nil {
		t.Error("expected context to be rejected as a direct engine")
	}
}

func TestSearchExact_MapsEveryHit(t *testing.T) {
	stats := NewStats(0)
	m := newMatcher(t, catsHTML, stats)

	res, err := m.SearchExact("cat sat on", SearchOptions{CaseSensitive: true, Distinct: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	first, second := res.Matches[0], res.Matches[1]
	if first.Start != 4 || first.End != 14 {
		t.Errorf("expected first match [4,14), got [%d,%d)", first.Start, first.End)
	}
	if second.Start != 32 || second.End != 42 {
		t.Errorf("expected second match [32,42), got [%d,%d)", second.Start, second.End)
	}
	if !second.Analysis.Exact || second.Analysis.Found != "cat sat on" {
		t.Errorf("expected exact analysis, got %+v", second.Analysis)
	}
	if len(second.Mapping.Segments) != 2 {
		t.Fatalf("expected hit to span 2 text nodes, got %d", len(second.Mapping.Segments))
	}
	if second.Mapping.Segments[0].Path != "/p[2]/b[1]/text()[1]" {
		t.Errorf("expected mapping to start in the bold text, got %s", second.Mapping.Segments[0].Path)
	}
	if stats.Snapshot()[KindExact].Count != 1 {
		t.Error("expected one recorded exact search")
	}
}

func TestSearchRegex(t *testing.T) {
	m := newMatcher(t, catsHTML, nil)
	res, err := m.SearchRegex(`\b[mh]at\b`, SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(res.Matches))
	}
	if res.Matches[0].Analysis.Found != "mat" || res.Matches[1].Analysis.Found != "hat" {
		t.Errorf("expected mat and hat, got %q and %q", res.Matches[0].Analysis.Found, res.Matches[1].Analysis.Found)
	}
}

func TestSearch_UnknownEngine(t *testing.T) {
	m := newMatcher(t, catsHTML, nil)
	if _, err := m.Search(Kind("soundex"), "cat", nil, SearchOptions{}); err == nil {
		t.Error("expected error for unknown engine")
	}
}

func TestSearchFuzzy_WithComparison(t *testing.T) {
	m := newMatcher(t, `<p>The quick brown fox jumps over the lazy dog</p>`, nil)
	res, err := m.SearchFuzzy("The qick brown fox", nil, SearchOptions{
		MatchDistance:       86,
		WithFuzzyComparison: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(res.Matches))
	}
	got := res.Matches[0]
	if got.Start != 0 || got.End != 19 {
		t.Errorf("expected [0,19), got [%d,%d)", got.Start, got.End)
	}
	if got.Analysis.Exact {
		t.Error("expected inexact analysis")
	}
	if got.Analysis.Comparison == nil || got.Analysis.Comparison.EditDistance != 1 {
		t.Errorf("expected comparison with edit distance 1, got %+v", got.Analysis.Comparison)
	}
}

func TestSearchWithContext_PicksSecondOccurrence(t *testing.T) {
	m := newMatcher(t, catsHTML, nil)
	prefix, suffix := m.Index().GetContextForRange(32, 42)

	res, err := m.SearchWithContext(prefix, suffix, "cat sat on", nil, nil, ContextOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(res.Matches))
	}
	if got := res.Matches[0]; got.Start != 32 || got.End != 42 {
		t.Errorf("expected [32,42), got [%d,%d)", got.Start, got.End)
	}
}

func TestSearchWithContext_PatternDrift(t *testing.T) {
	m := newMatcher(t, catsHTML, nil)
	prefix, suffix := m.Index().GetContextForRange(32, 42)

	res, err := m.SearchWithContext(prefix, suffix, "cat sit on", nil, nil, ContextOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Fatalf("expected drifted pattern to be rejected without fuzzy comparison, got %d matches", len(res.Matches))
	}

	res, err = m.SearchWithContext(prefix, suffix, "cat sit on", nil, nil, ContextOptions{WithFuzzyComparison: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 1 {
		t.Fatalf("expected drifted pattern to be accepted, got %d matches", len(res.Matches))
	}
	got := res.Matches[0]
	if got.Analysis.Found != "cat sat on" || got.Analysis.Comparison == nil {
		t.Errorf("expected found text with comparison, got %+v", got.Analysis)
	}
}

func TestSearchWithContext_MissingAnchor(t *testing.T) {
	m := newMatcher(t, catsHTML, nil)

	res, err := m.SearchWithContext("zzzzqqqqxxxxwwww", "the hat.", "cat sat on", nil, nil, ContextOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Matches) != 0 {
		t.Errorf("expected no match when prefix is absent, got %d", len(res.Matches))
	}

	res, _ = m.SearchWithContext("", "the hat.", "cat sat on", nil, nil, ContextOptions{})
	if len(res.Matches) != 0 {
		t.Errorf("expected no match without a prefix, got %d", len(res.Matches))
	}
}

func TestTrimGap(t *testing.T) {
	runes := []rune("  abc  ")
	if s, e := trimGap(runes, 0, 7, "abc"); s != 2 || e != 5 {
		t.Errorf("expected [2,5), got [%d,%d)", s, e)
	}
	if s, e := trimGap(runes, 0, 7, " abc"); s != 0 || e != 5 {
		t.Errorf("expected leading space kept, got [%d,%d)", s, e)
	}
}
