// Package highlight wraps anchored spans in <mark> elements and removes them
// again, keeping the text index in step with every structural change.
package highlight

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dgallion1/docanchor/internal/doctree"
	"github.com/dgallion1/docanchor/internal/textindex"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const (
	DefaultClass   = "docanchor-highlight"
	ActiveClass    = "docanchor-active"
	TemporaryClass = "docanchor-temporary"
)

// Highlight is the set of markers created for one span.
type Highlight struct {
	ID        string `json:"id"`
	Class     string `json:"class"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
	Active    bool   `json:"active"`
	Temporary bool   `json:"temporary"`

	marks []*html.Node
}

// Marks returns the marker elements created for the highlight.
func (h *Highlight) Marks() []*html.Node {
	return h.marks
}

// Manager owns the highlights of one document.
type Manager struct {
	index      *textindex.Index
	log        *slog.Logger
	highlights map[string]*Highlight
}

func New(index *textindex.Index, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{index: index, log: log, highlights: make(map[string]*Highlight)}
}

// Get returns a live highlight by ID.
func (m *Manager) Get(id string) (*Highlight, bool) {
	h, ok := m.highlights[id]
	return h, ok
}

// List returns every live highlight.
func (m *Manager) List() []*Highlight {
	out := make([]*Highlight, 0, len(m.highlights))
	for _, h := range m.highlights {
		out = append(out, h)
	}
	return out
}

// Highlight wraps every text leaf under span in a <mark class="class">.
// Partially covered leaves are split first; whitespace-only pieces are left
// alone.
func (m *Manager) Highlight(span doctree.Range, class string) (*Highlight, error) {
	if class == "" {
		class = DefaultClass
	}
	start, end, err := m.index.RangeOffsets(span)
	if err != nil {
		return nil, fmt.Errorf("highlight: %w", err)
	}
	mapping, err := m.index.MapRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("highlight: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("highlight: %w", err)
	}
	h := &Highlight{ID: id.String(), Class: class, Start: mapping.Start, End: mapping.End}

	for _, seg := range mapping.Segments {
		if !doctree.IsText(seg.Node) || isBlank(seg.Content) {
			continue
		}
		target := split(seg.Node, seg.Start, seg.End)
		parent := target.Parent

		mark := doctree.Element("mark", "class", class)
		parent.InsertBefore(mark, target)
		parent.RemoveChild(target)
		mark.AppendChild(target)
		h.marks = append(h.marks, mark)

		if err := m.index.Update(parent); err != nil {
			m.discard(h)
			return nil, fmt.Errorf("highlight: %w", err)
		}
	}
	if len(h.marks) == 0 {
		return nil, fmt.Errorf("highlight: span [%d,%d) contains no text", start, end)
	}

	m.highlights[h.ID] = h
	m.log.Debug("highlight created", "id", h.ID, "marks", len(h.marks), "start", h.Start, "end", h.End)
	return h, nil
}

// discard unwraps the markers of a highlight that failed partway. The index
// is left to rescan.
func (m *Manager) discard(h *Highlight) {
	for _, mark := range h.marks {
		if mark.Parent != nil {
			unwrap(mark)
		}
	}
	h.marks = nil
	m.index.MarkStale()
}

// split cuts text node n so that runes [from, to) sit in a node of their own
// and returns that node.
func split(n *html.Node, from, to int) *html.Node {
	runes := []rune(n.Data)
	if to < len(runes) {
		n.Parent.InsertBefore(doctree.Text(string(runes[to:])), n.NextSibling)
		n.Data = string(runes[:to])
	}
	if from > 0 {
		mid := doctree.Text(string(runes[from:to]))
		n.Parent.InsertBefore(mid, n.NextSibling)
		n.Data = string(runes[:from])
		return mid
	}
	return n
}

func isBlank(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

// Remove unwraps every marker of h and merges the freed text back into its
// neighbours. Markers that were already detached are skipped.
func (m *Manager) Remove(h *Highlight) error {
	root := m.index.Root()
	var errs []error
	for _, mark := range h.marks {
		parent := mark.Parent
		if parent == nil || !doctree.Contains(root, parent) {
			m.log.Debug("skipping detached marker", "id", h.ID)
			continue
		}
		unwrap(mark)
		if err := m.index.Update(parent); err != nil {
			errs = append(errs, err)
		}
	}
	h.marks = nil
	delete(m.highlights, h.ID)

	if len(errs) > 0 {
		return fmt.Errorf("remove highlight %s: %w", h.ID, errs[0])
	}
	m.log.Debug("highlight removed", "id", h.ID)
	return nil
}

func unwrap(mark *html.Node) {
	parent := mark.Parent
	first, last := mark.FirstChild, mark.LastChild
	for c := mark.FirstChild; c != nil; c = mark.FirstChild {
		mark.RemoveChild(c)
		parent.InsertBefore(c, mark)
	}
	parent.RemoveChild(mark)
	if first == nil {
		return
	}

	if prev := first.PrevSibling; doctree.IsText(prev) && doctree.IsText(first) {
		prev.Data += first.Data
		parent.RemoveChild(first)
		if last == first {
			last = prev
		}
	}
	if next := last.NextSibling; doctree.IsText(last) && doctree.IsText(next) {
		last.Data += next.Data
		parent.RemoveChild(next)
	}
}

// SetActive toggles the active class on every marker of h.
func (m *Manager) SetActive(h *Highlight, active bool) {
	h.Active = active
	toggleClass(h.marks, ActiveClass, active)
}

// SetTemporary toggles the temporary class on every marker of h.
func (m *Manager) SetTemporary(h *Highlight, temporary bool) {
	h.Temporary = temporary
	toggleClass(h.marks, TemporaryClass, temporary)
}

func toggleClass(marks []*html.Node, class string, on bool) {
	for _, mark := range marks {
		classes := strings.Fields(doctree.Attr(mark, "class"))
		kept := classes[:0]
		for _, c := range classes {
			if c != class {
				kept = append(kept, c)
			}
		}
		if on {
			kept = append(kept, class)
		}
		doctree.SetAttr(mark, "class", strings.Join(kept, " "))
	}
}
