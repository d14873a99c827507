// Package textindex maps tree paths to character ranges of a document's
// flattened text and keeps that map current under incremental mutation.
package textindex

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docanchor/internal/doctree"
	"golang.org/x/net/html"
)

// DefaultContextWindow is the number of characters captured on each side of a
// range by GetContextForRange.
const DefaultContextWindow = 32

// Entry is the index record for one node. Offsets are rune offsets into the
// corpus; Start/End describe the node's content as a whole.
type Entry struct {
	Path    string
	Node    *html.Node
	Content string
	Length  int
	Start   int
	End     int
	Atomic  bool

	children []*html.Node
}

// SelectionKeeper is implemented by hosts that track a user selection which
// must survive index rebuilds.
type SelectionKeeper interface {
	CurrentSelection() (doctree.Range, bool)
	RestoreSelection(doctree.Range)
}

// Options configures an Index.
type Options struct {
	Logger        *slog.Logger
	Selection     SelectionKeeper
	ContextWindow int
}

// Index is the path -> entry table for one document. It is not safe for
// concurrent use; callers serialize access.
type Index struct {
	root          *html.Node
	log           *slog.Logger
	selection     SelectionKeeper
	contextWindow int

	entries map[string]*Entry
	byNode  map[*html.Node]*Entry
	leaves  []*Entry
	corpus  string
	runes   []rune
	scanned bool
	stale   bool
}

// New creates an index rooted at root (the path start node). The tree is
// scanned lazily on first access.
func New(root *html.Node, opts Options) *Index {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	return &Index{
		root:          root,
		log:           opts.Logger,
		selection:     opts.Selection,
		contextWindow: opts.ContextWindow,
	}
}

// Root returns the path start node.
func (ix *Index) Root() *html.Node {
	return ix.root
}

// MarkStale forces a full rescan on next access.
func (ix *Index) MarkStale() {
	ix.stale = true
}

// Stale reports whether the next access will rescan.
func (ix *Index) Stale() bool {
	return !ix.scanned || ix.stale
}

func (ix *Index) ensure() {
	if ix.Stale() {
		ix.Scan()
	}
}

// Scan rebuilds the whole index: a content pass over the tree followed by
// the offset pass.
func (ix *Index) Scan() {
	start := time.Now()
	ix.entries = make(map[string]*Entry)
	ix.byNode = make(map[*html.Node]*Entry)

	content := ix.traverseSubtree(ix.root, "")
	ix.collectPositions(ix.root, "", content, 0, 0, 0)

	ix.setCorpus(content)
	ix.scanned = true
	ix.stale = false
	ix.log.Debug("text index scanned",
		"entries", len(ix.entries),
		"length", len(ix.runes),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (ix *Index) setCorpus(content string) {
	ix.corpus = content
	ix.runes = []rune(content)
	ix.leaves = nil
}

type child struct {
	node *html.Node
	path string
}

// childPaths returns the indexable children of n with their paths. Ordinals
// are counted in one pass instead of per child.
func childPaths(n *html.Node, path string) []child {
	kids := doctree.Children(n)
	if len(kids) == 0 {
		return nil
	}
	out := make([]child, 0, len(kids))
	seen := make(map[string]int, 4)
	for _, c := range kids {
		name := doctree.StepName(c)
		seen[name]++
		out = append(out, child{node: c, path: path + "/" + name + "[" + strconv.Itoa(seen[name]) + "]"})
	}
	return out
}

// traverseSubtree records content for n and every indexable descendant and
// returns n's content. Offsets are left for collectPositions.
func (ix *Index) traverseSubtree(n *html.Node, path string) string {
	e := &Entry{Path: path, Node: n, Atomic: doctree.Atomic(n)}
	if e.Atomic {
		e.Content = doctree.Content(n)
	} else {
		var sb strings.Builder
		for _, c := range childPaths(n, path) {
			e.children = append(e.children, c.node)
			sb.WriteString(ix.traverseSubtree(c.node, c.path))
		}
		e.Content = sb.String()
	}
	e.Length = utf8.RuneCountInString(e.Content)
	ix.entries[path] = e
	ix.byNode[n] = e
	return e.Content
}

// collectPositions locates n's content inside parentContent starting at
// byte offset searchFrom (rune offset searchFromRunes) and assigns absolute
// offsets relative to parentOffset, then recurses with the residual search
// position. It returns the search position following n.
func (ix *Index) collectPositions(n *html.Node, path, parentContent string, parentOffset, searchFrom, searchFromRunes int) (int, int) {
	e := ix.entries[path]
	if e == nil {
		return searchFrom, searchFromRunes
	}
	byteStart, runeStart := searchFrom, searchFromRunes
	if idx := strings.Index(parentContent[searchFrom:], e.Content); idx >= 0 {
		byteStart += idx
		runeStart += utf8.RuneCountInString(parentContent[searchFrom : searchFrom+idx])
	} else {
		ix.log.Warn("node content not found in parent", "path", path)
	}
	e.Start = parentOffset + runeStart
	e.End = e.Start + e.Length

	from, fromRunes := 0, 0
	for _, c := range childPaths(n, path) {
		from, fromRunes = ix.collectPositions(c.node, c.path, e.Content, e.Start, from, fromRunes)
	}
	return byteStart + len(e.Content), runeStart + e.Length
}

// Entry returns a copy of the entry recorded for path.
func (ix *Index) Entry(path string) (Entry, bool) {
	ix.ensure()
	e, ok := ix.entries[path]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// EntryFor returns a copy of the entry recorded for node.
func (ix *Index) EntryFor(n *html.Node) (Entry, bool) {
	ix.ensure()
	e, ok := ix.byNode[n]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies of all entries ordered by path.
func (ix *Index) Entries() []Entry {
	ix.ensure()
	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// leafEntries returns the non-empty atomic entries ordered by start offset.
func (ix *Index) leafEntries() []*Entry {
	if ix.leaves != nil {
		return ix.leaves
	}
	leaves := make([]*Entry, 0, len(ix.entries)/2)
	for _, e := range ix.entries {
		if e.Atomic && e.Length > 0 {
			leaves = append(leaves, e)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].Start < leaves[j].Start })
	ix.leaves = leaves
	return leaves
}
