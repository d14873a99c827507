package search

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Comparison describes how far a found string drifted from an expected one.
type Comparison struct {
	// Diff is a word-diff style rendering: deletions as [-text-], insertions
	// as {+text+}.
	Diff         string  `json:"diff"`
	EditDistance int     `json:"edit_distance"`
	ErrorLevel   float64 `json:"error_level"`
}

// Compare diffs b against a. ErrorLevel is the edit distance divided by the
// length of a.
func Compare(a, b string) Comparison {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	distance := dmp.DiffLevenshtein(diffs)

	c := Comparison{Diff: renderDiff(diffs), EditDistance: distance}
	switch n := utf8.RuneCountInString(a); {
	case n > 0:
		c.ErrorLevel = float64(distance) / float64(n)
	case distance > 0:
		c.ErrorLevel = 1
	}
	return c
}

func renderDiff(diffs []diffmatchpatch.Diff) string {
	var sb strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			sb.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			sb.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			sb.WriteString("{+" + d.Text + "+}")
		}
	}
	return sb.String()
}
