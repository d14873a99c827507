package search

import (
	"fmt"
	"regexp"
	"unicode"
)

// ExactMatcher finds literal occurrences of a pattern.
type ExactMatcher struct {
	CaseSensitive bool
	// Distinct resumes scanning after a hit instead of one character later,
	// so reported matches never overlap.
	Distinct bool
}

// Search implements Engine. expected is ignored.
func (m ExactMatcher) Search(corpus, pattern string, _ *int) ([]MatchResult, error) {
	if pattern == "" {
		return nil, fmt.Errorf("exact search: empty pattern")
	}
	text, pat := []rune(corpus), []rune(pattern)
	if !m.CaseSensitive {
		text, pat = foldRunes(text), foldRunes(pat)
	}

	var out []MatchResult
	for i := 0; i+len(pat) <= len(text); {
		if !equalAt(text, pat, i) {
			i++
			continue
		}
		out = append(out, MatchResult{Start: i, End: i + len(pat)})
		if m.Distinct {
			i += len(pat)
		} else {
			i++
		}
	}
	return out, nil
}

func foldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func equalAt(text, pat []rune, at int) bool {
	for j, r := range pat {
		if text[at+j] != r {
			return false
		}
	}
	return true
}

// RegexMatcher finds all non-overlapping matches of a regular expression.
type RegexMatcher struct {
	CaseSensitive bool
}

// Search implements Engine. expected is ignored. Empty matches are dropped.
func (m RegexMatcher) Search(corpus, pattern string, _ *int) ([]MatchResult, error) {
	if !m.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("regex search: %w", err)
	}

	var out []MatchResult
	for _, loc := range re.FindAllStringIndex(corpus, -1) {
		if loc[0] == loc[1] {
			continue
		}
		out = append(out, MatchResult{
			Start: runeOffset(corpus, loc[0]),
			End:   runeOffset(corpus, loc[1]),
		})
	}
	return out, nil
}
