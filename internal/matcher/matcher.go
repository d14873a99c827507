// Package matcher bridges the search engines to document locations: it runs
// an engine over a text index's corpus and projects every hit back onto the
// tree.
package matcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgallion1/docanchor/internal/search"
	"github.com/dgallion1/docanchor/internal/textindex"
)

// Kind names a search engine.
type Kind string

const (
	KindExact   Kind = "exact"
	KindRegex   Kind = "regex"
	KindFuzzy   Kind = "fuzzy"
	KindContext Kind = "context"
)

// ParseKind validates an engine name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindExact, KindRegex, KindFuzzy:
		return k, nil
	}
	return "", fmt.Errorf("unknown search engine %q", s)
}

// DefaultPatternMatchThreshold is the worst error level at which a span found
// between context anchors is still accepted.
const DefaultPatternMatchThreshold = 0.5

// Config holds matcher-wide defaults.
type Config struct {
	MaxPatternLength      int
	MatchThreshold        float64
	PatternMatchThreshold float64
	// Stats, when set, receives one latency sample per search.
	Stats *Stats
}

// SearchOptions tunes one search call.
type SearchOptions struct {
	CaseSensitive bool
	Distinct      bool
	// MatchDistance overrides the fuzzy engine's distance, in characters, for
	// this call.
	MatchDistance int
	// WithFuzzyComparison attaches a diff to every inexact hit.
	WithFuzzyComparison bool
}

// Analysis compares a hit with the pattern that produced it.
type Analysis struct {
	Exact      bool               `json:"exact"`
	Found      string             `json:"found"`
	Comparison *search.Comparison `json:"comparison,omitempty"`
}

// Match is a raw engine hit merged with its analysis and tree mapping.
type Match struct {
	search.MatchResult
	Analysis Analysis          `json:"analysis"`
	Mapping  textindex.Mapping `json:"mapping"`
}

// Timings records where a search spent its time.
type Timings struct {
	Scan    time.Duration `json:"scan"`
	Search  time.Duration `json:"search"`
	Mapping time.Duration `json:"mapping"`
}

// Result is the outcome of a search.
type Result struct {
	Matches []Match `json:"matches"`
	Timings Timings `json:"timings"`
}

// Matcher owns one instance of each search engine for a document. Like the
// index it wraps, it is not safe for concurrent use.
type Matcher struct {
	index *textindex.Index
	log   *slog.Logger
	cfg   Config
	fuzzy search.FuzzyMatcher
}

func New(index *textindex.Index, log *slog.Logger, cfg Config) *Matcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PatternMatchThreshold <= 0 {
		cfg.PatternMatchThreshold = DefaultPatternMatchThreshold
	}
	return &Matcher{
		index: index,
		log:   log,
		cfg:   cfg,
		fuzzy: search.NewFuzzyMatcher(search.FuzzyOptions{
			MaxPatternLength: cfg.MaxPatternLength,
			MatchThreshold:   cfg.MatchThreshold,
		}),
	}
}

// Index returns the text index the matcher searches.
func (m *Matcher) Index() *textindex.Index {
	return m.index
}

// Engine returns the engine for kind configured with opts.
func (m *Matcher) Engine(kind Kind, opts SearchOptions) (search.Engine, error) {
	switch kind {
	case KindExact:
		return search.ExactMatcher{CaseSensitive: opts.CaseSensitive, Distinct: opts.Distinct}, nil
	case KindRegex:
		return search.RegexMatcher{CaseSensitive: opts.CaseSensitive}, nil
	case KindFuzzy:
		if opts.MatchDistance > 0 {
			return m.fuzzy.WithDistance(opts.MatchDistance), nil
		}
		return m.fuzzy, nil
	}
	return nil, fmt.Errorf("unknown search engine %q", kind)
}

// Search runs the kind engine over the corpus and maps every hit.
func (m *Matcher) Search(kind Kind, pattern string, expected *int, opts SearchOptions) (*Result, error) {
	engine, err := m.Engine(kind, opts)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res := &Result{}

	if m.index.Stale() {
		m.index.Scan()
	}
	res.Timings.Scan = time.Since(start)

	searchStart := time.Now()
	hits, err := engine.Search(m.index.Corpus(), pattern, expected)
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", kind, err)
	}
	res.Timings.Search = time.Since(searchStart)

	mapStart := time.Now()
	for _, hit := range hits {
		match, err := m.buildMatch(hit, pattern, opts.WithFuzzyComparison)
		if err != nil {
			m.log.Warn("dropping unmappable match", "engine", kind, "start", hit.Start, "end", hit.End, "error", err)
			continue
		}
		res.Matches = append(res.Matches, match)
	}
	res.Timings.Mapping = time.Since(mapStart)

	m.cfg.Stats.Record(kind, time.Since(start))
	m.log.Debug("search complete",
		"engine", kind,
		"matches", len(res.Matches),
		"search_us", res.Timings.Search.Microseconds(),
	)
	return res, nil
}

func (m *Matcher) SearchExact(pattern string, opts SearchOptions) (*Result, error) {
	return m.Search(KindExact, pattern, nil, opts)
}

func (m *Matcher) SearchRegex(pattern string, opts SearchOptions) (*Result, error) {
	return m.Search(KindRegex, pattern, nil, opts)
}

func (m *Matcher) SearchFuzzy(pattern string, expected *int, opts SearchOptions) (*Result, error) {
	return m.Search(KindFuzzy, pattern, expected, opts)
}

func (m *Matcher) buildMatch(hit search.MatchResult, pattern string, compare bool) (Match, error) {
	mapping, err := m.index.MapRange(hit.Start, hit.End)
	if err != nil {
		return Match{}, err
	}
	found := m.index.GetContentForRange(hit.Start, hit.End)
	return Match{
		MatchResult: hit,
		Analysis:    analyze(pattern, found, compare),
		Mapping:     mapping,
	}, nil
}

func analyze(pattern, found string, compare bool) Analysis {
	a := Analysis{
		Found: found,
		Exact: search.Normalize(found) == search.Normalize(pattern),
	}
	if !a.Exact && compare {
		c := search.Compare(search.Normalize(pattern), search.Normalize(found))
		a.Comparison = &c
	}
	return a
}
