package matcher

import (
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docanchor/internal/search"
)

// defaultSuffixBias is where the suffix is expected, relative to the end of
// the prefix, when neither the pattern nor the expected span gives a length.
const defaultSuffixBias = 64

// ContextOptions tunes SearchWithContext.
type ContextOptions struct {
	// MatchDistance for both stages, in characters. Zero means twice the
	// document length.
	MatchDistance int
	// WithFuzzyComparison accepts a span that differs from the pattern as
	// long as its error level is within the pattern match threshold.
	WithFuzzyComparison bool
	// PatternMatchThreshold overrides the matcher's threshold when positive.
	PatternMatchThreshold float64
}

// SearchWithContext finds the single span enclosed by prefix and suffix. The
// prefix is searched near expectedStart, the suffix right after the prefix.
// Either stage failing, or the enclosed span not matching pattern, yields a
// result with no matches. An empty pattern accepts whatever lies between the
// two anchors.
func (m *Matcher) SearchWithContext(prefix, suffix, pattern string, expectedStart, expectedEnd *int, opts ContextOptions) (*Result, error) {
	start := time.Now()
	res := &Result{}
	if prefix == "" || suffix == "" {
		return res, nil
	}

	if m.index.Stale() {
		m.index.Scan()
	}
	res.Timings.Scan = time.Since(start)

	corpus := m.index.Corpus()
	distance := opts.MatchDistance
	if distance <= 0 {
		distance = 2 * m.index.GetDocLength()
	}
	fuzzy := m.fuzzy.WithDistance(distance)

	searchStart := time.Now()
	prefixLoc := 0
	if expectedStart != nil {
		prefixLoc = max(*expectedStart-utf8.RuneCountInString(prefix), 0)
	}
	hits, err := fuzzy.Search(corpus, prefix, &prefixLoc)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		m.log.Debug("context search: prefix not found")
		return res, nil
	}
	spanStart := hits[0].End

	runes := []rune(corpus)
	rest := string(runes[spanStart:])
	suffixLoc := defaultSuffixBias
	switch {
	case pattern != "":
		suffixLoc = utf8.RuneCountInString(pattern)
	case expectedStart != nil && expectedEnd != nil:
		suffixLoc = *expectedEnd - *expectedStart
	}
	hits, err = fuzzy.Search(rest, suffix, &suffixLoc)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		m.log.Debug("context search: suffix not found", "after", spanStart)
		return res, nil
	}
	spanEnd := spanStart + hits[0].Start
	res.Timings.Search = time.Since(searchStart)

	spanStart, spanEnd = trimGap(runes, spanStart, spanEnd, pattern)
	if spanStart >= spanEnd {
		m.log.Debug("context search: anchors enclose no text", "at", spanStart)
		return res, nil
	}

	found := string(runes[spanStart:spanEnd])
	analysis := Analysis{Found: found}
	if pattern != "" {
		analysis = analyze(pattern, found, true)
		threshold := m.cfg.PatternMatchThreshold
		if opts.PatternMatchThreshold > 0 {
			threshold = opts.PatternMatchThreshold
		}
		accepted := analysis.Exact ||
			(opts.WithFuzzyComparison && analysis.Comparison.ErrorLevel <= threshold)
		if !accepted {
			m.log.Debug("context search: enclosed span does not match pattern",
				"start", spanStart, "end", spanEnd)
			return res, nil
		}
	}

	mapStart := time.Now()
	mapping, err := m.index.MapRange(spanStart, spanEnd)
	if err != nil {
		return nil, err
	}
	res.Timings.Mapping = time.Since(mapStart)

	hit := search.MatchResult{Start: spanStart, End: spanEnd}
	if analysis.Comparison != nil {
		hit.Diff = analysis.Comparison.Diff
		hit.EditDistance = analysis.Comparison.EditDistance
	}
	res.Matches = []Match{{MatchResult: hit, Analysis: analysis, Mapping: mapping}}
	m.cfg.Stats.Record(KindContext, time.Since(start))
	return res, nil
}

// trimGap drops whitespace between the trimmed context anchors and the span,
// unless the pattern itself begins or ends with whitespace.
func trimGap(runes []rune, start, end int, pattern string) (int, int) {
	if pattern == "" {
		return start, end
	}
	first, _ := utf8.DecodeRuneInString(pattern)
	last, _ := utf8.DecodeLastRuneInString(pattern)
	if !unicode.IsSpace(first) {
		for start < end && unicode.IsSpace(runes[start]) {
			start++
		}
	}
	if !unicode.IsSpace(last) {
		for end > start && unicode.IsSpace(runes[end-1]) {
			end--
		}
	}
	return start, end
}
