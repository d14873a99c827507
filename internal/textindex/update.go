package textindex

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docanchor/internal/doctree"
	"golang.org/x/net/html"
)

// IndexDesyncError reports that an update could not be reconciled with the
// recorded tree shape. The index is marked stale and rescans on next access.
type IndexDesyncError struct {
	Path   string
	Reason string
}

func (e *IndexDesyncError) Error() string {
	if e.Path == "" {
		return "text index desync: " + e.Reason
	}
	return fmt.Sprintf("text index desync at %s: %s", e.Path, e.Reason)
}

// Update reconciles the index after the host reports that n changed. Only the
// subtree under n is rebuilt; following offsets are shifted in place.
func (ix *Index) Update(n *html.Node) error {
	if ix.Stale() {
		// Nothing recorded yet, or a rescan is already pending.
		return nil
	}
	start := time.Now()
	sel, hasSel := ix.saveSelection()

	err := ix.update(n)
	if err != nil {
		ix.stale = true
		ix.log.Error("text index update failed", "error", err)
	} else {
		ix.log.Debug("text index updated", "duration_ms", time.Since(start).Milliseconds())
	}

	if hasSel {
		ix.restoreSelection(sel)
	}
	return err
}

func (ix *Index) update(n *html.Node) error {
	if n == nil {
		return &IndexDesyncError{Reason: "update called with nil node"}
	}
	if !doctree.Contains(ix.root, n) {
		return &IndexDesyncError{Reason: "node is outside the indexed tree"}
	}

	path, err := doctree.PathTo(ix.root, n)
	if err != nil {
		return ix.escalate(n, "", err.Error())
	}
	e, ok := ix.entries[path]
	if !ok || e.Node != n {
		return ix.escalate(n, path, "no entry recorded for node")
	}

	if doctree.Content(n) == e.Content && childrenIntact(n, e) {
		return nil
	}

	if n == ix.root {
		ix.log.Debug("update reached the path start node, rescanning")
		ix.Scan()
		return nil
	}
	return ix.rebuild(n, path, e)
}

// escalate retries the update on n's parent.
func (ix *Index) escalate(n *html.Node, path, reason string) error {
	if n == ix.root {
		ix.Scan()
		return nil
	}
	if n.Parent == nil {
		return &IndexDesyncError{Path: path, Reason: reason + "; no parent to escalate to"}
	}
	ix.log.Debug("escalating index update to parent", "path", path, "reason", reason)
	return ix.update(n.Parent)
}

func childrenIntact(n *html.Node, e *Entry) bool {
	if e.Atomic != doctree.Atomic(n) {
		return false
	}
	kids := doctree.Children(n)
	if len(kids) != len(e.children) {
		return false
	}
	for i, c := range kids {
		if e.children[i] != c {
			return false
		}
	}
	return true
}

// rebuild drops every entry at or below path, re-traverses the subtree and
// positions it from the parent's known offset. Ancestors absorb the length
// change and entries after the subtree are shifted.
func (ix *Index) rebuild(n *html.Node, path string, old *Entry) error {
	parentPath := doctree.ParentPath(path)
	parent, ok := ix.entries[parentPath]
	if !ok {
		return &IndexDesyncError{Path: path, Reason: "no entry recorded for parent " + parentPath}
	}
	oldStart, oldEnd, oldContent := old.Start, old.End, old.Content

	for p, e := range ix.entries {
		if p == path || doctree.IsDescendantPath(p, path) {
			delete(ix.entries, p)
			if ix.byNode[e.Node] == e {
				delete(ix.byNode, e.Node)
			}
		}
	}

	content := ix.traverseSubtree(n, path)
	delta := utf8.RuneCountInString(content) - old.Length

	// Splice the new content into every ancestor, innermost first.
	ancestors := make(map[*Entry]bool)
	for p := parentPath; ; p = doctree.ParentPath(p) {
		a, ok := ix.entries[p]
		if !ok {
			return &IndexDesyncError{Path: p, Reason: "missing ancestor entry"}
		}
		a.Content = splice(a.Content, oldStart-a.Start, oldContent, content)
		a.Length += delta
		a.End += delta
		ancestors[a] = true
		if p == "" {
			break
		}
	}

	rel := oldStart - parent.Start
	byteFrom := byteOffset(parent.Content, rel)
	ix.collectPositions(n, path, parent.Content, parent.Start, byteFrom, rel)

	if delta != 0 {
		for _, e := range ix.entries {
			if ancestors[e] || e.Path == path || doctree.IsDescendantPath(e.Path, path) {
				continue
			}
			if e.Start > oldEnd || (e.Start == oldEnd && doctree.Precedes(n, e.Node) && !doctree.Contains(n, e.Node)) {
				e.Start += delta
				e.End += delta
			}
		}
	}

	ix.setCorpus(ix.entries[""].Content)
	return nil
}

// splice replaces old (located at rune offset at within s) with repl.
func splice(s string, at int, old, repl string) string {
	from := byteOffset(s, at)
	to := from + len(old)
	if to > len(s) {
		to = len(s)
	}
	return s[:from] + repl + s[to:]
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
