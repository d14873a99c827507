// Package anchor re-locates saved selectors in the current document using a
// cascade of strategies, from exact structural lookup down to approximate
// text search.
package anchor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/matcher"
	"github.com/dgallion1/docanchor/internal/search"
	"github.com/dgallion1/docanchor/internal/selector"
	"github.com/dgallion1/docanchor/internal/textindex"
)

// Strategy names one step of the resolution cascade.
type Strategy string

const (
	StrategyRange    Strategy = "range"
	StrategyPosition Strategy = "position"
	StrategyContext  Strategy = "context"
	StrategyQuote    Strategy = "quote"
)

// DefaultContextDistanceFactor scales the document length into the match
// distance used by the approximate strategies.
const DefaultContextDistanceFactor = 2

// Config tunes the approximate strategies.
type Config struct {
	PatternMatchThreshold float64
	ContextDistanceFactor int
}

// Anchor is a resolved span in the current document.
type Anchor struct {
	Strategy     Strategy           `json:"strategy"`
	Range        doctree.Range      `json:"-"`
	Start        int                `json:"start"`
	End          int                `json:"end"`
	Quote        string             `json:"quote"`
	QuoteChanged bool               `json:"quote_changed"`
	Comparison   *search.Comparison `json:"comparison,omitempty"`
}

// Attempt records why one strategy did not produce an anchor.
type Attempt struct {
	Strategy Strategy `json:"strategy"`
	Reason   string   `json:"reason"`
}

// AnchoringError reports that no strategy could locate the span.
type AnchoringError struct {
	Attempts []Attempt
}

func (e *AnchoringError) Error() string {
	if len(e.Attempts) == 0 {
		return "anchoring failed: no usable selectors"
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = string(a.Strategy) + ": " + a.Reason
	}
	return "anchoring failed: " + strings.Join(parts, "; ")
}

// Resolver runs the cascade against one document. It shares the document's
// index and matcher and inherits their single-caller contract.
type Resolver struct {
	index   *textindex.Index
	matcher *matcher.Matcher
	log     *slog.Logger
	cfg     Config
}

func NewResolver(index *textindex.Index, m *matcher.Matcher, log *slog.Logger, cfg Config) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	if cfg.ContextDistanceFactor <= 0 {
		cfg.ContextDistanceFactor = DefaultContextDistanceFactor
	}
	if cfg.PatternMatchThreshold <= 0 {
		cfg.PatternMatchThreshold = matcher.DefaultPatternMatchThreshold
	}
	return &Resolver{index: index, matcher: m, log: log, cfg: cfg}
}

// BuildSelectors captures span as a selector set.
func (r *Resolver) BuildSelectors(span doctree.Range) (selector.Set, error) {
	return selector.Build(r.index, span)
}

type strategyFunc func(set selector.Set, savedQuote string) (*Anchor, error)

// errSkip marks a strategy that could not run or did not match. It falls
// through to the next strategy without being logged as a problem.
type errSkip string

func (e errSkip) Error() string { return string(e) }

// Resolve returns the first anchor produced by the range, position, context
// and quote strategies, in that order. savedQuote defaults to the quote
// selector's text; when set, the structural strategies must reproduce it.
func (r *Resolver) Resolve(set selector.Set, savedQuote string) (*Anchor, error) {
	if savedQuote == "" {
		if q, ok := set.Quote(); ok {
			savedQuote = q.Exact
		}
	}

	cascade := []struct {
		strategy Strategy
		run      strategyFunc
	}{
		{StrategyRange, r.fromRange},
		{StrategyPosition, r.fromPosition},
		{StrategyContext, r.fromContext},
		{StrategyQuote, r.fromQuote},
	}

	aerr := &AnchoringError{}
	for _, step := range cascade {
		a, err := step.run(set, savedQuote)
		if err == nil {
			a.Strategy = step.strategy
			r.log.Debug("anchored", "strategy", step.strategy, "start", a.Start, "end", a.End, "quote_changed", a.QuoteChanged)
			return a, nil
		}

		var malformed *selector.MalformedSelectorError
		var skip errSkip
		switch {
		case errors.As(err, &malformed):
			r.log.Warn("skipping malformed selector", "strategy", step.strategy, "error", err)
		case errors.As(err, &skip):
			r.log.Debug("strategy did not match", "strategy", step.strategy, "reason", err)
		default:
			r.log.Error("strategy failed", "strategy", step.strategy, "error", err)
		}
		aerr.Attempts = append(aerr.Attempts, Attempt{Strategy: step.strategy, Reason: err.Error()})
	}
	return nil, aerr
}

func (r *Resolver) fromRange(set selector.Set, savedQuote string) (*Anchor, error) {
	sel, ok := set.Range()
	if !ok {
		return nil, errSkip("no range selector")
	}
	live, err := sel.Resolve(r.index.Root())
	if err != nil {
		return nil, err
	}
	start, end, err := r.index.RangeOffsets(live)
	if err != nil {
		return nil, &selector.MalformedSelectorError{Kind: selector.KindRange, Reason: err.Error()}
	}
	return r.verified(live, start, end, savedQuote)
}

func (r *Resolver) fromPosition(set selector.Set, savedQuote string) (*Anchor, error) {
	sel, ok := set.Position()
	if !ok {
		return nil, errSkip("no position selector")
	}
	if err := sel.Check(r.index.GetDocLength()); err != nil {
		return nil, err
	}
	mapping, err := r.index.MapRange(sel.Start, sel.End)
	if err != nil {
		return nil, &selector.MalformedSelectorError{Kind: selector.KindPosition, Reason: err.Error()}
	}
	return r.verified(mapping.Range, mapping.Start, mapping.End, savedQuote)
}

// verified accepts a structurally located span only if it still reads as
// the saved quote.
func (r *Resolver) verified(live doctree.Range, start, end int, savedQuote string) (*Anchor, error) {
	if start >= end {
		return nil, errSkip("span is empty")
	}
	found := r.index.GetContentForRange(start, end)
	if savedQuote != "" && search.Normalize(found) != search.Normalize(savedQuote) {
		return nil, errSkip("live text no longer matches the saved quote")
	}
	return &Anchor{Range: live, Start: start, End: end, Quote: found}, nil
}

func (r *Resolver) distance() int {
	return r.cfg.ContextDistanceFactor * r.index.GetDocLength()
}

func (r *Resolver) fromContext(set selector.Set, savedQuote string) (*Anchor, error) {
	q, ok := set.Quote()
	if !ok {
		return nil, errSkip("no quote selector")
	}
	if q.Prefix == "" || q.Suffix == "" {
		return nil, errSkip("quote selector has no surrounding context")
	}

	var expectedStart, expectedEnd *int
	if p, ok := set.Position(); ok {
		expectedStart, expectedEnd = &p.Start, &p.End
	}
	res, err := r.matcher.SearchWithContext(q.Prefix, q.Suffix, q.Exact, expectedStart, expectedEnd, matcher.ContextOptions{
		MatchDistance:         r.distance(),
		WithFuzzyComparison:   true,
		PatternMatchThreshold: r.cfg.PatternMatchThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("context search: %w", err)
	}
	if len(res.Matches) == 0 {
		return nil, errSkip("context not found")
	}
	return r.fuzzyAnchor(res.Matches[0], savedQuote), nil
}

func (r *Resolver) fromQuote(set selector.Set, savedQuote string) (*Anchor, error) {
	q, ok := set.Quote()
	if !ok || q.Exact == "" {
		return nil, errSkip("no quote to search for")
	}

	expected := r.index.GetDocLength() / 2
	if p, ok := set.Position(); ok {
		expected = p.Start
	}
	res, err := r.matcher.SearchFuzzy(q.Exact, &expected, matcher.SearchOptions{
		MatchDistance:       r.distance(),
		WithFuzzyComparison: true,
	})
	if err != nil {
		return nil, fmt.Errorf("quote search: %w", err)
	}
	if len(res.Matches) == 0 {
		return nil, errSkip("quote not found")
	}
	return r.fuzzyAnchor(res.Matches[0], savedQuote), nil
}

func (r *Resolver) fuzzyAnchor(m matcher.Match, savedQuote string) *Anchor {
	a := &Anchor{
		Range: m.Mapping.Range,
		Start: m.Mapping.Start,
		End:   m.Mapping.End,
		Quote: r.index.GetContentForRange(m.Mapping.Start, m.Mapping.End),
	}
	if savedQuote != "" && search.Normalize(a.Quote) != search.Normalize(savedQuote) {
		c := search.Compare(search.Normalize(savedQuote), search.Normalize(a.Quote))
		a.QuoteChanged = true
		a.Comparison = &c
	}
	return a
}
