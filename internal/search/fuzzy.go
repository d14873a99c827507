package search

import (
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Defaults for FuzzyOptions.
const (
	DefaultMaxPatternLength = 32
	DefaultMatchThreshold   = 0.5
)

// FuzzyOptions tunes the approximate matcher.
type FuzzyOptions struct {
	// MaxPatternLength caps the slice handed to a single bitap pass. Longer
	// patterns are searched as a head and a tail slice.
	MaxPatternLength int
	// MatchDistance is how far (in characters) from the expected location a
	// hit may drift before its score doubles. Zero means the corpus length.
	MatchDistance int
	// MatchThreshold is the worst accepted score: 0 is exact, 1 matches
	// anything.
	MatchThreshold float64
}

func (o FuzzyOptions) withDefaults() FuzzyOptions {
	if o.MaxPatternLength <= 0 {
		o.MaxPatternLength = DefaultMaxPatternLength
	}
	if o.MatchThreshold <= 0 {
		o.MatchThreshold = DefaultMatchThreshold
	}
	return o
}

// FuzzyMatcher is a bounded edit-distance matcher biased toward an expected
// location. It returns at most one result.
type FuzzyMatcher struct {
	Options FuzzyOptions
}

// NewFuzzyMatcher returns a matcher with defaults filled in.
func NewFuzzyMatcher(opts FuzzyOptions) FuzzyMatcher {
	return FuzzyMatcher{Options: opts.withDefaults()}
}

// WithDistance returns a copy of m using the given match distance.
func (m FuzzyMatcher) WithDistance(distance int) FuzzyMatcher {
	m.Options.MatchDistance = distance
	return m
}

// Search implements Engine. Without an expected location the search is
// biased toward the middle of the corpus.
func (m FuzzyMatcher) Search(corpus, pattern string, expected *int) ([]MatchResult, error) {
	if pattern == "" {
		return nil, fmt.Errorf("fuzzy search: empty pattern")
	}
	if corpus == "" {
		return nil, nil
	}
	opts := m.Options.withDefaults()

	loc := len(corpus) / 2
	if expected != nil {
		loc = byteOffset(corpus, *expected)
	}

	var start, end int
	var ok bool
	if len(pattern) <= opts.MaxPatternLength {
		start, end, ok = m.searchForSlice(corpus, pattern, loc)
	} else {
		start, end, ok = m.searchSplit(corpus, pattern, loc)
	}
	if !ok {
		return nil, nil
	}

	found := corpus[start:end]
	cmp := Compare(pattern, found)
	return []MatchResult{{
		Start:        runeOffset(corpus, start),
		End:          runeOffset(corpus, end),
		Diff:         cmp.Diff,
		EditDistance: cmp.EditDistance,
	}}, nil
}

// searchSplit locates a pattern longer than one bitap pass by searching its
// head near loc and its tail where the head implies it should end.
func (m FuzzyMatcher) searchSplit(corpus, pattern string, loc int) (int, int, bool) {
	limit := m.Options.withDefaults().MaxPatternLength
	head := pattern[:runeStart(pattern, limit)]
	tail := pattern[runeEnd(pattern, len(pattern)-limit):]

	headStart, _, ok := m.searchForSlice(corpus, head, loc)
	if !ok {
		return 0, 0, false
	}
	_, tailEnd, ok := m.searchForSlice(corpus, tail, headStart+len(pattern)-len(tail))
	if !ok {
		return 0, 0, false
	}

	length := float64(tailEnd - headStart)
	if length < 0.5*float64(len(pattern)) || length > 1.5*float64(len(pattern)) {
		return 0, 0, false
	}
	return headStart, tailEnd, true
}

// searchForSlice finds where slice starts with a forward bitap pass, then
// finds where it ends by running the same search over the reversed corpus
// and slice. Offsets are bytes.
func (m FuzzyMatcher) searchForSlice(text, slice string, loc int) (int, int, bool) {
	dmp := m.dmp(text)

	start := dmp.MatchMain(text, slice, loc)
	if start < 0 {
		return 0, 0, false
	}
	start = runeStart(text, start)

	revText, revSlice := reverse(text), reverse(slice)
	revLoc := len(text) - (start + len(slice))
	if revLoc < 0 {
		revLoc = 0
	}
	revStart := dmp.MatchMain(revText, revSlice, revLoc)
	if revStart < 0 {
		return 0, 0, false
	}
	end := runeEnd(text, len(text)-revStart)
	if end <= start {
		return 0, 0, false
	}
	return start, end, true
}

// dmp configures bitap for corpus. Bitap measures distance in bytes, so the
// character distance is scaled by the corpus's average encoded rune width.
func (m FuzzyMatcher) dmp(corpus string) *diffmatchpatch.DiffMatchPatch {
	opts := m.Options.withDefaults()
	dmp := diffmatchpatch.New()
	dmp.MatchMaxBits = opts.MaxPatternLength
	dmp.MatchThreshold = opts.MatchThreshold
	dmp.MatchDistance = len(corpus)
	if opts.MatchDistance > 0 {
		dmp.MatchDistance = byteDistance(corpus, opts.MatchDistance)
	}
	return dmp
}

// byteDistance converts a distance in runes to bytes of corpus.
func byteDistance(corpus string, runes int) int {
	n := utf8.RuneCountInString(corpus)
	if n == 0 || n == len(corpus) {
		return runes
	}
	return int(math.Ceil(float64(runes) * float64(len(corpus)) / float64(n)))
}

// reverse reverses s byte-wise. Both sides of a reversed search are reversed
// the same way, so multi-byte runes still line up.
func reverse(s string) string {
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b[len(s)-1-i] = s[i]
	}
	return string(b)
}
