// Package search implements the string search engines used to locate quotes
// in a document corpus: exact substring, regular expression and approximate
// (bitap) matching. All offsets are rune offsets.
package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchResult is one hit in a corpus. Diff and EditDistance are only set by
// engines that can return inexact hits.
type MatchResult struct {
	Start        int    `json:"start"`
	End          int    `json:"end"`
	Diff         string `json:"diff,omitempty"`
	EditDistance int    `json:"edit_distance,omitempty"`
}

// Engine searches corpus for pattern. expected, when non-nil, is the rune
// offset the caller believes the match starts at; engines that rank by
// location use it as a bias.
type Engine interface {
	Search(corpus, pattern string, expected *int) ([]MatchResult, error)
}

// Normalize collapses every run of whitespace to a single space.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				sb.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// runeOffset converts a byte offset within s to a rune offset.
func runeOffset(s string, b int) int {
	if b >= len(s) {
		return utf8.RuneCountInString(s)
	}
	return utf8.RuneCountInString(s[:b])
}

// byteOffset converts a rune offset within s to a byte offset.
func byteOffset(s string, runes int) int {
	if runes <= 0 {
		return 0
	}
	i := 0
	for b := range s {
		if i == runes {
			return b
		}
		i++
	}
	return len(s)
}

// runeStart moves b back to the start of the rune containing it.
func runeStart(s string, b int) int {
	for b > 0 && b < len(s) && !utf8.RuneStart(s[b]) {
		b--
	}
	return b
}

// runeEnd moves b forward to the next rune boundary.
func runeEnd(s string, b int) int {
	for b < len(s) && !utf8.RuneStart(s[b]) {
		b++
	}
	return b
}
